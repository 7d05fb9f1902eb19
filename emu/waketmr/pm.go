/*
   waketimer - Power transition hooks.

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
	power "github.com/rcornwell/waketimer/emu/power"
)

// prepareSuspend arms wake-capable delivery if the device may wake
// the system. A partial arming is unwound before the error returns.
// Caller holds the lock.
func (t *Timer) prepareSuspend() error {
	if !t.pm.MayWakeup(t.name) {
		return nil
	}
	return t.lines.armWake(t.alarmEn)
}

// Suspend is the prepare phase of a system suspend.
func (t *Timer) Suspend() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prepareSuspend()
}

// SuspendLate runs just before quiescence. An alarm that fired after
// wake arming left a deferred disable owed; the wake the caller is
// about to sleep for has in effect already happened, so the
// transition is rejected.
func (t *Timer) SuspendLate() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lines.owed() && t.pm.MayWakeup(t.name) {
		return ErrSuspendBusy
	}
	return nil
}

// Resume revokes wake-capable delivery and leaves the alarm register
// in a clean, non-firing state.
func (t *Timer) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.pm.MayWakeup(t.name) {
		return nil
	}
	t.lines.disarmWake(t.alarmEn)
	t.clearAlarm()
	return nil
}

// reboot arms the timer on a power-off transition so a configured
// alarm can still wake the system from a powered-off state.
func (t *Timer) reboot(action power.Action) error {
	if action != power.PowerOff {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prepareSuspend()
}
