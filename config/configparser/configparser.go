/*
   waketimer - Configuration file parser.

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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

/* Configuration file format:
 *
 * '#' indicates comment, rest of line is ignored.
 * <line> := <model> *(<whitespace> <option>) |
 *            'logfile' <quoteopt>
 * <option> ::= <string> | <string> '=' <quoteopt>
 * <quoteopt> ::= <string> | '"' *(<letter> | <whitespace>) '"'
 * <string> ::= *(<letter> | <number>)
 */

// One option from a model line.
type Option struct {
	Name     string // Name of option.
	EqualOpt string // Value of string after =.
}

// Models are registered with a creation function that receives the
// options from their configuration line.
type CreateFunc func(opts []Option) error

var models = map[string]CreateFunc{}

// Handler for the logfile directive.
var logFile func(path string) error

var lineNumber int

// Current option line being parsed.
type optionLine struct {
	line string // Current option line.
	pos  int    // Current position in line.
}

// RegisterModel should be called before loading the configuration.
func RegisterModel(model string, create CreateFunc) {
	models[strings.ToLower(model)] = create
}

// SetLogFileFunc installs the handler called with the path from a
// logfile directive.
func SetLogFileFunc(fn func(path string) error) {
	logFile = fn
}

// LoadConfigFile reads a configuration file and creates the models it
// names.
func LoadConfigFile(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()
	return LoadConfig(file)
}

// LoadConfig processes one configuration stream.
func LoadConfig(rd io.Reader) error {
	scanner := bufio.NewScanner(rd)
	lineNumber = 0
	for scanner.Scan() {
		lineNumber++
		if err := parseLine(scanner.Text()); err != nil {
			return fmt.Errorf("line %d: %w", lineNumber, err)
		}
	}
	return scanner.Err()
}

// Process one line of configuration.
func parseLine(text string) error {
	line := optionLine{line: text}
	model := line.getWord()
	if model == "" {
		return nil
	}

	if strings.EqualFold(model, "logfile") {
		return line.logFileLine()
	}

	create, ok := models[strings.ToLower(model)]
	if !ok {
		return fmt.Errorf("unknown model: %s", model)
	}

	var opts []Option
	for {
		opt, ok, err := line.getOption()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		opts = append(opts, opt)
	}
	return create(opts)
}

// Process a logfile directive.
func (line *optionLine) logFileLine() error {
	line.skipSpace()
	if line.isEOL() {
		return fmt.Errorf("logfile needs a file name")
	}
	path, err := line.parseQuoteString()
	if err != nil {
		return err
	}
	if logFile == nil {
		return nil
	}
	return logFile(path)
}

// Skip forward over line until none whitespace character found.
func (line *optionLine) skipSpace() {
	for line.pos < len(line.line) {
		if !unicode.IsSpace(rune(line.line[line.pos])) {
			return
		}
		line.pos++
	}
}

// Check if at end of line.
func (line *optionLine) isEOL() bool {
	if line.pos >= len(line.line) {
		return true
	}
	return line.line[line.pos] == '#'
}

// Return next word, empty string if end of line.
func (line *optionLine) getWord() string {
	line.skipSpace()
	start := line.pos
	for !line.isEOL() {
		by := line.line[line.pos]
		if unicode.IsSpace(rune(by)) || by == '=' {
			break
		}
		line.pos++
	}
	return line.line[start:line.pos]
}

// Parse string that is "string" or just string.
func (line *optionLine) parseQuoteString() (string, error) {
	if line.isEOL() {
		return "", fmt.Errorf("missing value after =")
	}
	if line.line[line.pos] != '"' {
		return line.getWord(), nil
	}

	line.pos++
	value := ""
	for {
		if line.pos >= len(line.line) {
			return "", fmt.Errorf("unterminated quoted string")
		}
		by := line.line[line.pos]
		line.pos++
		if by == '"' {
			return value, nil
		}
		value += string(by)
	}
}

// Return next option, second result false at end of line.
func (line *optionLine) getOption() (Option, bool, error) {
	name := line.getWord()
	if name == "" {
		return Option{}, false, nil
	}
	opt := Option{Name: name}
	if !line.isEOL() && line.line[line.pos] == '=' {
		line.pos++
		value, err := line.parseQuoteString()
		if err != nil {
			return Option{}, false, err
		}
		opt.EqualOpt = value
	}
	return opt, true, nil
}
