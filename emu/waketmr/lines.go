/*
   waketimer - Interrupt line configurations.

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

package waketmr

import (
	irq "github.com/rcornwell/waketimer/emu/irq"
)

// Session state of the dedicated alarm line. Every enable of the line
// below is balanced by exactly one disable; a fire while wake-armed
// leaves the line in lineOwed, where one enable is owed and is paid
// either by the acknowledge path or by the next alarm-enable.
type lineState int

const (
	lineIdle  lineState = iota // Delivery off, nothing owed.
	lineArmed                  // Delivery on.
	lineOwed                   // Delivery off, one enable owed.
)

// lineConfig is the interrupt wiring of a device. Two configurations
// exist: a single wake line carrying all alarm semantics, or a wake
// line plus a dedicated alarm line. Methods are total for both, so
// the dispatch and balance logic never tests for a missing line.
// Callers hold the device lock.
type lineConfig interface {
	// alarmOn starts an alarm delivery session, paying back an owed
	// enable first.
	alarmOn()
	// alarmOff ends the session.
	alarmOff()
	// clearOwed pays back an owed enable once the alarm condition has
	// been acknowledged.
	clearOwed()
	// owed reports whether a deferred disable is outstanding.
	owed() bool
	// armWake requests wake-capable delivery ahead of suspend. A
	// partial failure is unwound before the error returns.
	armWake(alarmEnabled bool) error
	// disarmWake revokes wake-capable delivery on resume.
	disarmWake(alarmEnabled bool)
	// onWake services a wake line interrupt. Called with no device
	// lock held.
	onWake(t *Timer)
	// free releases the lines.
	free(ctl *irq.Controller)
}

// singleLine carries all alarm semantics on the wake line. The line
// is never gated, so enable-balance tracking degenerates to no-ops.
type singleLine struct {
	wake *irq.Line
}

func (s *singleLine) alarmOn()   {}
func (s *singleLine) alarmOff()  {}
func (s *singleLine) clearOwed() {}
func (s *singleLine) owed() bool { return false }

func (s *singleLine) armWake(bool) error {
	return s.wake.EnableWake()
}

func (s *singleLine) disarmWake(bool) {
	s.wake.DisableWake()
}

// onWake is the only wake reporting point without a second line.
func (s *singleLine) onWake(t *Timer) {
	t.pm.WakeupEvent(t.name)
}

func (s *singleLine) free(ctl *irq.Controller) {
	ctl.Free(s.wake)
}

// dualLine adds a dedicated alarm comparator line, requested disabled
// and gated per delivery session.
type dualLine struct {
	wake  *irq.Line
	alarm *irq.Line
	state lineState
}

func (d *dualLine) alarmOn() {
	if d.state == lineOwed {
		// Pay the deferred disable before opening the new session.
		_ = d.alarm.Enable()
	}
	_ = d.alarm.Enable()
	d.state = lineArmed
}

func (d *dualLine) alarmOff() {
	switch d.state {
	case lineArmed:
		d.alarm.Disable()
		d.state = lineIdle
	case lineOwed:
		// Session ends but the deferred disable is still owed.
		d.alarm.Disable()
	case lineIdle:
	}
}

func (d *dualLine) clearOwed() {
	if d.state == lineOwed {
		_ = d.alarm.Enable()
		d.state = lineIdle
	}
}

func (d *dualLine) owed() bool {
	return d.state == lineOwed
}

// deferDisable stops further delivery without acknowledging the
// hardware condition. Runs from the alarm handler while the device is
// a wake source; the matching enable is owed from here on.
func (d *dualLine) deferDisable() {
	d.alarm.Disable()
	d.state = lineOwed
}

func (d *dualLine) armWake(alarmEnabled bool) error {
	if err := d.wake.EnableWake(); err != nil {
		return err
	}
	if alarmEnabled {
		if err := d.alarm.EnableWake(); err != nil {
			d.wake.DisableWake()
			return err
		}
	}
	return nil
}

func (d *dualLine) disarmWake(alarmEnabled bool) {
	d.wake.DisableWake()
	if alarmEnabled {
		d.alarm.DisableWake()
	}
}

// onWake has nothing to do; the dedicated alarm line reports events.
func (d *dualLine) onWake(*Timer) {}

func (d *dualLine) free(ctl *irq.Controller) {
	ctl.Free(d.alarm)
	ctl.Free(d.wake)
}
