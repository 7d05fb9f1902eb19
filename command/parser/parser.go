/*
   waketimer - Console command processing.

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

package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	power "github.com/rcornwell/waketimer/emu/power"
	rtc "github.com/rcornwell/waketimer/emu/rtc"
	simtmr "github.com/rcornwell/waketimer/emu/simtmr"
)

// Target is what console commands operate on.
type Target struct {
	Name  string
	RTC   *rtc.Device
	Power *power.Manager
	Sim   *simtmr.Block
}

type cmd struct {
	Name    string // Command name.
	Min     int    // Minimum match size.
	Help    string
	Process func(*cmdLine, *Target) (bool, error)
}

type cmdLine struct {
	line string // Current command.
	pos  int    // Position in line.
}

var cmdList = []cmd{
	{Name: "time", Min: 1, Help: "show device time", Process: timeCmd},
	{Name: "settime", Min: 4, Help: "settime <unix-secs|RFC3339>", Process: setTimeCmd},
	{Name: "alarm", Min: 1, Help: "show alarm state", Process: alarmCmd},
	{Name: "setalarm", Min: 4, Help: "setalarm <+secs|unix-secs|RFC3339> [off]", Process: setAlarmCmd},
	{Name: "enable", Min: 2, Help: "enable alarm events", Process: enableCmd},
	{Name: "disable", Min: 2, Help: "disable alarm events", Process: disableCmd},
	{Name: "wake", Min: 2, Help: "wake <on|off>, wake capability", Process: wakeCmd},
	{Name: "suspend", Min: 2, Help: "suspend the system", Process: suspendCmd},
	{Name: "advance", Min: 2, Help: "advance <secs>, step the simulation", Process: advanceCmd},
	{Name: "poweroff", Min: 5, Help: "run power-off transition and exit", Process: powerOffCmd},
	{Name: "help", Min: 1, Help: "show commands", Process: nil},
	{Name: "quit", Min: 1, Help: "exit", Process: quitCmd},
}

// helpCmd iterates cmdList, so it is wired up here to avoid an
// initialization cycle in the cmdList literal.
func init() {
	for i := range cmdList {
		if cmdList[i].Name == "help" {
			cmdList[i].Process = helpCmd
		}
	}
}

// ProcessCommand executes the command line given. The first result is
// true when the console should exit.
func ProcessCommand(commandLine string, target *Target) (bool, error) {
	line := cmdLine{line: commandLine}
	command := line.getWord()
	if command == "" {
		return false, nil
	}

	match := matchList(command)
	if len(match) == 0 {
		return false, errors.New("command not found: " + command)
	}
	if len(match) > 1 {
		return false, errors.New("unique command not found: " + command)
	}
	return match[0].Process(&line, target)
}

// CompleteCmd returns the commands the line could start.
func CompleteCmd(line string) []string {
	var out []string
	for _, m := range cmdList {
		if strings.HasPrefix(m.Name, strings.ToLower(line)) {
			out = append(out, m.Name)
		}
	}
	return out
}

// Check if command matches at least to minimum length.
func matchCommand(match cmd, command string) bool {
	if len(command) < match.Min || len(command) > len(match.Name) {
		return false
	}
	return strings.HasPrefix(match.Name, command)
}

// Check if command matches one of the commands.
func matchList(command string) []cmd {
	command = strings.ToLower(command)
	var match []cmd
	for _, m := range cmdList {
		if matchCommand(m, command) {
			match = append(match, m)
		}
	}
	return match
}

// Skip forward over line until none whitespace character found.
func (line *cmdLine) skipSpace() {
	for line.pos < len(line.line) {
		if !unicode.IsSpace(rune(line.line[line.pos])) {
			return
		}
		line.pos++
	}
}

// Return next word, empty string at end of line.
func (line *cmdLine) getWord() string {
	line.skipSpace()
	start := line.pos
	for line.pos < len(line.line) && !unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
	return line.line[start:line.pos]
}

// Parse an absolute time, either unix seconds or RFC3339.
func parseTime(word string) (time.Time, error) {
	if sec, err := strconv.ParseInt(word, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	when, err := time.Parse(time.RFC3339, word)
	if err != nil {
		return time.Time{}, errors.New("expected unix seconds or RFC3339 time: " + word)
	}
	return when.UTC(), nil
}

func timeCmd(_ *cmdLine, target *Target) (bool, error) {
	now, err := target.RTC.ReadTime()
	if err != nil {
		return false, err
	}
	fmt.Printf("%s (%d)\n", now.Format(time.RFC3339Nano), now.Unix())
	return false, nil
}

func setTimeCmd(line *cmdLine, target *Target) (bool, error) {
	word := line.getWord()
	if word == "" {
		return false, errors.New("settime needs a time")
	}
	when, err := parseTime(word)
	if err != nil {
		return false, err
	}
	return false, target.RTC.SetTime(when)
}

func alarmCmd(_ *cmdLine, target *Target) (bool, error) {
	alarm, err := target.RTC.ReadAlarm()
	if err != nil {
		return false, err
	}
	fmt.Printf("alarm %s enabled=%v pending=%v\n",
		alarm.Time.Format(time.RFC3339), alarm.Enabled, alarm.Pending)
	return false, nil
}

func setAlarmCmd(line *cmdLine, target *Target) (bool, error) {
	word := line.getWord()
	if word == "" {
		return false, errors.New("setalarm needs a time")
	}

	var when time.Time
	if strings.HasPrefix(word, "+") {
		secs, err := strconv.ParseInt(word[1:], 10, 64)
		if err != nil {
			return false, errors.New("bad relative time: " + word)
		}
		now, err := target.RTC.ReadTime()
		if err != nil {
			return false, err
		}
		when = now.Add(time.Duration(secs) * time.Second)
	} else {
		var err error
		when, err = parseTime(word)
		if err != nil {
			return false, err
		}
	}

	enabled := true
	if opt := line.getWord(); opt != "" {
		switch strings.ToLower(opt) {
		case "off":
			enabled = false
		case "on":
		default:
			return false, errors.New("expected on or off: " + opt)
		}
	}
	return false, target.RTC.SetAlarm(rtc.Alarm{Time: when, Enabled: enabled})
}

func enableCmd(_ *cmdLine, target *Target) (bool, error) {
	return false, target.RTC.AlarmEnable(true)
}

func disableCmd(_ *cmdLine, target *Target) (bool, error) {
	return false, target.RTC.AlarmEnable(false)
}

func wakeCmd(line *cmdLine, target *Target) (bool, error) {
	switch strings.ToLower(line.getWord()) {
	case "on":
		target.Power.SetMayWakeup(target.Name, true)
	case "off":
		target.Power.SetMayWakeup(target.Name, false)
	default:
		return false, errors.New("wake needs on or off")
	}
	return false, nil
}

func suspendCmd(_ *cmdLine, target *Target) (bool, error) {
	if err := target.Power.Suspend(); err != nil {
		return false, err
	}
	fmt.Println("suspended, waiting for wake event")
	return false, nil
}

func advanceCmd(line *cmdLine, target *Target) (bool, error) {
	word := line.getWord()
	secs, err := strconv.ParseUint(word, 10, 32)
	if err != nil {
		return false, errors.New("advance needs a second count")
	}
	target.Sim.Tick(secs * uint64(target.Sim.Rate()))
	return false, nil
}

func powerOffCmd(_ *cmdLine, target *Target) (bool, error) {
	target.Power.Shutdown(power.PowerOff)
	return true, nil
}

func helpCmd(_ *cmdLine, _ *Target) (bool, error) {
	for _, m := range cmdList {
		fmt.Printf("%-10s %s\n", m.Name, m.Help)
	}
	return false, nil
}

func quitCmd(_ *cmdLine, _ *Target) (bool, error) {
	return true, nil
}
