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

// Package sospriors stages river discharge priors from external data
// providers and writes them into SWORD of Science (SoS) files.
//
// A PriorStore collects validated records from each data source and
// writes them to a NetCDF staging file. An Overwrite loads a staging file
// and places every staged value into the matching slot of an SoS file,
// locating rows through the SoS's own reach and node identifier lists.
package sospriors

// Version gives the version number.
const Version = "0.3.0"
