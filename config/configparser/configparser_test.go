/*
   waketimer - Configuration parser tests.

   Copyright (c) 2025, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

package configparser

import (
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	var got [][]Option
	RegisterModel("timer", func(opts []Option) error {
		got = append(got, opts)
		return nil
	})

	conf := `
# comment line
timer rate=100 wakeup=on
TIMER name="wake timer" noalarmirq   # trailing comment
`
	if err := LoadConfig(strings.NewReader(conf)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 model lines got: %d", len(got))
	}

	first := got[0]
	if len(first) != 2 || first[0].Name != "rate" || first[0].EqualOpt != "100" {
		t.Errorf("Unexpected options: %+v", first)
	}
	if first[1].Name != "wakeup" || first[1].EqualOpt != "on" {
		t.Errorf("Unexpected options: %+v", first)
	}

	second := got[1]
	if len(second) != 2 || second[0].EqualOpt != "wake timer" {
		t.Errorf("Quoted value not parsed: %+v", second)
	}
	if second[1].Name != "noalarmirq" || second[1].EqualOpt != "" {
		t.Errorf("Bare option not parsed: %+v", second)
	}
}

func TestLogFileDirective(t *testing.T) {
	var got []string
	SetLogFileFunc(func(path string) error {
		got = append(got, path)
		return nil
	})

	conf := `
logfile plain.log
LOGFILE "spaced name.log"   # quoted path
`
	if err := LoadConfig(strings.NewReader(conf)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(got) != 2 || got[0] != "plain.log" || got[1] != "spaced name.log" {
		t.Errorf("Unexpected paths: %v", got)
	}

	if err := LoadConfig(strings.NewReader("logfile\n")); err == nil {
		t.Error("Missing file name should fail")
	}
}

func TestUnknownModel(t *testing.T) {
	err := LoadConfig(strings.NewReader("nonesuch rate=1\n"))
	if err == nil {
		t.Fatal("Unknown model should fail")
	}
	if !strings.Contains(err.Error(), "line 1") {
		t.Errorf("Error should carry the line number: %v", err)
	}
}

func TestUnterminatedQuote(t *testing.T) {
	RegisterModel("quoted", func([]Option) error { return nil })
	err := LoadConfig(strings.NewReader(`quoted name="oops`))
	if err == nil {
		t.Error("Unterminated quote should fail")
	}
}

func TestMissingValue(t *testing.T) {
	RegisterModel("missing", func([]Option) error { return nil })
	if err := LoadConfig(strings.NewReader("missing name=")); err == nil {
		t.Error("Missing value after = should fail")
	}
}
