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

package sospriors

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by this package matches exactly one of
// them with errors.Is.
var (
	ErrValidation        = errors.New("invalid prior record")
	ErrBuild             = errors.New("cannot build staging file")
	ErrFormat            = errors.New("unexpected file structure")
	ErrGroupMismatch     = errors.New("run type group missing from target")
	ErrUnknownVariable   = errors.New("unknown destination variable")
	ErrUnknownIdentifier = errors.New("unknown identifier")
	ErrConflict          = errors.New("slot written twice")
	ErrNotFound          = errors.New("file not found")
	ErrIO                = errors.New("i/o failure")
	ErrConfig            = errors.New("configuration error")
)

// Error describes a failure with enough context to find the offending
// record without re-running.
type Error struct {
	Kind    error
	Source  string
	Prior   string
	RunType RunType
	Detail  string
	Err     error // underlying cause, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("sospriors: ")
	b.WriteString(e.Kind.Error())
	if e.Source != "" || e.Prior != "" {
		fmt.Fprintf(&b, " [%s/%s", e.Source, e.Prior)
		if e.RunType != 0 {
			fmt.Fprintf(&b, " %s", e.RunType)
		}
		b.WriteString("]")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Is reports whether target is the kind of e.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func newError(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// recordError attaches the identity of r to a new error.
func recordError(kind error, r *Record, format string, args ...interface{}) *Error {
	e := newError(kind, format, args...)
	e.Source, e.Prior, e.RunType = r.Source, r.Prior, r.RunType
	return e
}
