/*
Copyright © 2019 the sospriors authors.
This file is part of sospriors.

sospriors is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

sospriors is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with sospriors.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package priorsutil contains the command-line interface for staging priors
// and writing them into SoS files.
package priorsutil

import (
	"context"
	"fmt"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/sospriors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

// Log receives the messages of all commands.
var Log logrus.FieldLogger = logrus.StandardLogger()

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to sospriors.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "layout",
			usage: `
              layout specifies a TOML file that adds to or replaces the
              default mapping of data sources to SoS groups and of priors
              to their second axis.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "verbose",
			usage: `
              verbose turns on debug logging.`,
			shorthand:  "v",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "author",
			usage: `
              author is the name of the person producing the staging file.
              It is recorded in the file and used to name it.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{createCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "email",
			usage: `
              email is the contact address recorded in the staging file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{createCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "target_file",
			usage: `
              target_file is the SoS file the priors are meant for. For
              overwrite, it may also be the directory holding the SoS files,
              in which case the file named in the staging file is used.`,
			shorthand:  "t",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{createCmd.Flags(), overwriteCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "priors",
			usage: `
              priors lists the JSON files holding prior records, in the form
              {"<source>": {"<prior>": <record> or [<record>, ...]}}.
              Files may be in blob storage (file://, gs://, s3://).`,
			shorthand:  "p",
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{createCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "output_dir",
			usage: `
              output_dir is the directory where the staging file and the
              modified SoS file are written. It may be a blob storage
              location (file://, gs://, s3://).`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{createCmd.Flags(), overwriteCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "staging",
			usage: `
              staging is the staging file to write into the SoS file. It may
              be in blob storage.`,
			shorthand:  "s",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{overwriteCmd.Flags()},
		},
		{
			name: "inplace",
			usage: `
              inplace modifies target_file itself instead of a copy in
              output_dir.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{overwriteCmd.Flags(), runCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("SOSPRIORS")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(createCmd)
	Root.AddCommand(overwriteCmd)
	Root.AddCommand(runCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets the log level.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return configError("problem reading configuration file: %v", err)
		}
	}
	if Cfg.GetBool("verbose") {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "sospriors",
	Short: "Stage river discharge priors and write them into SoS files.",
	Long: `sospriors collects prior records from external data providers into a
staging file and writes staged priors into SWORD of Science (SoS) files.
Use the subcommands specified below to access the functionality.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'SOSPRIORS_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of sospriors.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("sospriors v%s\n", sospriors.Version)
	},
	DisableAutoGenTag: true,
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a staging file from prior records.",
	Long: `create validates the prior records in the files listed by --priors
and writes them to a staging file in output_dir, named after the author
and the SoS file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := Create(context.TODO(), Cfg, Log)
		if err != nil {
			return err
		}
		cmd.Printf("staging file: %s\n", path)
		return nil
	},
	DisableAutoGenTag: true,
}

var overwriteCmd = &cobra.Command{
	Use:   "overwrite",
	Short: "Write staged priors into an SoS file.",
	Long: `overwrite writes every prior in the staging file into the matching slots
of the SoS file. Rows are located by reach or node identifier; slots that are
not named in the staging file keep their values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := Overwrite(context.TODO(), Cfg, Log)
		if err != nil {
			return err
		}
		cmd.Printf("SoS file: %s\n", path)
		return nil
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a staging file and write it into the SoS file.",
	Long:  `run is create followed by overwrite with the new staging file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.TODO()
		staging, err := Create(ctx, Cfg, Log)
		if err != nil {
			return err
		}
		Cfg.Set("staging", staging)
		path, err := Overwrite(ctx, Cfg, Log)
		if err != nil {
			return fmt.Errorf("priorsutil: staging file %s was written but not applied: %w", staging, err)
		}
		cmd.Printf("staging file: %s\nSoS file: %s\n", staging, path)
		return nil
	},
	DisableAutoGenTag: true,
}
