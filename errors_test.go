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
	"io"
	"testing"
)

func TestError(t *testing.T) {
	e := &Error{Kind: ErrUnknownIdentifier, Source: "grdc", Prior: "grdc_q", RunType: Constrained,
		Detail: "reach identifier 99 is not in constrained.model.grdc.grdc_reach_id"}
	want := "sospriors: unknown identifier [grdc/grdc_q constrained]: reach identifier 99 is not in constrained.model.grdc.grdc_reach_id"
	if e.Error() != want {
		t.Errorf("%s\n!=\n%s", e, want)
	}
	wrapped := fmt.Errorf("applying priors: %w", e)
	if !errors.Is(wrapped, ErrUnknownIdentifier) || errors.Is(wrapped, ErrConflict) {
		t.Error("errors.Is does not match the kind")
	}
	cause := &Error{Kind: ErrIO, Err: io.ErrUnexpectedEOF}
	if !errors.Is(cause, io.ErrUnexpectedEOF) {
		t.Error("cause is not unwrapped")
	}
	if cause.Error() != "sospriors: i/o failure: unexpected EOF" {
		t.Errorf("got %s", cause)
	}
}

func TestParse(t *testing.T) {
	for s, want := range map[string]RunType{"constrained": Constrained, "unconstrained": Unconstrained} {
		got, err := ParseRunType(s)
		if err != nil || got != want || got.String() != s {
			t.Errorf("ParseRunType(%s) = %v, %v", s, got, err)
		}
	}
	if _, err := ParseRunType("Constrained"); err == nil {
		t.Error("run types are case sensitive")
	}
	for s, want := range map[string]DataType{"i4": Integer, "I8": Integer, "f8": Float, "double": Float} {
		if got, err := ParseDataType(s); err != nil || got != want {
			t.Errorf("ParseDataType(%s) = %v, %v", s, got, err)
		}
	}
	if _, err := ParseDataType("S1"); err == nil {
		t.Error("string data types are not supported")
	}
	for _, k := range []IDKind{Reach, Node} {
		if got, err := ParseIDKind(k.String()); err != nil || got != k {
			t.Errorf("ParseIDKind(%s) = %v, %v", k, got, err)
		}
	}
}
