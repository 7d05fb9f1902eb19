/*
   waketimer - Wake-alarm timer device core.

   A free-running seconds counter with a sub-second prescaler and an
   alarm comparator. The counter keeps time; the comparator can raise
   a wake-capable interrupt and arm the system to resume from a low
   power state at a target second.

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
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	clock "github.com/rcornwell/waketimer/emu/clock"
	irq "github.com/rcornwell/waketimer/emu/irq"
	mmio "github.com/rcornwell/waketimer/emu/mmio"
	power "github.com/rcornwell/waketimer/emu/power"
	rtc "github.com/rcornwell/waketimer/emu/rtc"
)

// DefaultRate is the prescaler input in ticks per second when no
// clock provider is present.
const DefaultRate = 27000000

// Poll bounds. The hardware converges within a read or two; hitting
// either bound means the device is not counting.
const (
	maxReadRetries = 16
	maxArmRetries  = 4096
)

var (
	ErrHardwareFault = errors.New("waketmr: hardware fault")
	ErrAlarmInPast   = errors.New("waketmr: alarm time not in the future")
	ErrSuspendBusy   = errors.New("waketmr: alarm fired while entering suspend")
	ErrNoWakeIRQ     = errors.New("waketmr: wake interrupt line required")
)

// Config describes one physical unit.
type Config struct {
	Name     string
	Bus      mmio.Bus         // Register block, exclusive to this device.
	Clock    clock.Clock      // Optional; DefaultRate applies when nil.
	Intr     *irq.Controller
	WakeIRQ  int              // Always-present wake line.
	AlarmIRQ int              // Dedicated alarm line, zero when absent.
	Power    *power.Manager
	RTC      *rtc.Device
}

// Timer is one wake-alarm timer unit. One mutex guards all shared
// state; interrupt handlers take it like any other caller.
type Timer struct {
	mu    sync.Mutex
	name  string
	regs  regs
	rate  uint32
	clk   clock.Clock
	lines lineConfig
	pm    *power.Manager
	rtc   *rtc.Device

	alarmEn   bool   // Alarm events are reported to callers.
	alarmTime uint32 // Last requested alarm, kept for read-back.
	notifyID  int    // Reboot notifier handle.
}

// New creates a device: resolves the clock rate, requests the
// interrupt lines, clears any pre-existing alarm condition and
// registers with the power manager and RTC framework. On error no
// partial device is left behind.
func New(cfg Config) (*Timer, error) {
	if cfg.WakeIRQ == 0 {
		return nil, ErrNoWakeIRQ
	}

	t := &Timer{
		name: cfg.Name,
		regs: regs{bus: cfg.Bus},
		rate: DefaultRate,
		pm:   cfg.Power,
		rtc:  cfg.RTC,
	}

	if cfg.Clock != nil {
		if err := cfg.Clock.Enable(); err != nil {
			return nil, fmt.Errorf("waketmr: clock enable: %w", err)
		}
		t.clk = cfg.Clock
		if hz := clock.Hertz(cfg.Clock.Rate()); hz != 0 {
			t.rate = hz
		}
	}

	// Wake capability is set before the wake line is requested so a
	// boot-time wakeup can be attributed to the device.
	t.pm.SetMayWakeup(t.name, true)

	wake, err := cfg.Intr.Request(cfg.WakeIRQ, t.name, 0, t.wakeInterrupt)
	if err != nil {
		t.unwindNew()
		return nil, err
	}

	t.mu.Lock()
	if cfg.AlarmIRQ != 0 {
		dual := &dualLine{wake: wake}
		alarm, aerr := cfg.Intr.Request(cfg.AlarmIRQ, t.name+"-rtc",
			irq.NoAutoEnable, func() { t.alarmInterrupt(dual) })
		if aerr != nil {
			// Fall back to carrying alarm semantics on the wake line.
			slog.Warn("waketmr: no alarm interrupt for " + t.name + ": " + aerr.Error())
			t.lines = &singleLine{wake: wake}
		} else {
			dual.alarm = alarm
			t.lines = dual
		}
	} else {
		t.lines = &singleLine{wake: wake}
	}
	t.clearAlarm()
	t.mu.Unlock()

	t.pm.Register(t.name, t)
	t.notifyID = t.pm.RegisterRebootNotifier(t.reboot)

	t.rtc.SetOps(t)
	t.rtc.SetRangeMax(math.MaxUint32)
	if err := t.rtc.Register(); err != nil {
		t.pm.UnregisterRebootNotifier(t.notifyID)
		t.pm.Unregister(t.name)
		t.mu.Lock()
		t.lines.free(cfg.Intr)
		t.mu.Unlock()
		t.unwindNew()
		return nil, err
	}

	return t, nil
}

func (t *Timer) unwindNew() {
	t.pm.SetMayWakeup(t.name, false)
	if t.clk != nil {
		t.clk.Disable()
	}
}

// Close detaches the device: withdraws it from the RTC framework and
// power manager, releases the interrupt lines and drops the clock.
func (t *Timer) Close(ctl *irq.Controller) {
	t.rtc.Unregister()
	t.pm.UnregisterRebootNotifier(t.notifyID)
	t.pm.Unregister(t.name)
	t.mu.Lock()
	t.lines.free(ctl)
	t.mu.Unlock()
	if t.clk != nil {
		t.clk.Disable()
	}
}

// Rate returns the prescaler ticks per second in use.
func (t *Timer) Rate() uint32 {
	return t.rate
}

// readTime samples the counter and prescaler. The pair cannot be read
// atomically: if the counter increments mid-read the prescaler value
// can show a position at or past the divisor, so the sample is
// retried until the value is strictly below the rate.
func (t *Timer) readTime() (sec uint32, ticks uint32, err error) {
	for i := 0; i < maxReadRetries; i++ {
		sec = t.regs.counter()
		val := t.regs.prescalerVal()
		if val < t.rate {
			return sec, t.rate - val, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: prescaler read did not converge", ErrHardwareFault)
}

// clearAlarm disables alarm delivery, parks the compare register on
// an already-passed second and acknowledges the alarm condition.
// Safe to call repeatedly. Caller holds the lock.
func (t *Timer) clearAlarm() {
	if t.alarmEn {
		t.lines.alarmOff()
	}
	t.alarmEn = false
	t.regs.setAlarm(t.regs.counter() - 1)
	t.regs.ack()
	// The acknowledge must reach the device before the owed enable
	// can re-open delivery.
	t.regs.sync()
	t.lines.clearOwed()
}

// setAlarm arms the comparator at secs. A compare value at or before
// the live counter may never latch, so the target is walked forward a
// second at a time until it is provably in the future or the hardware
// reports the event latched anyway. Caller holds the lock.
func (t *Timer) setAlarm(secs uint32) error {
	t.clearAlarm()

	// Make sure we are actually counting in seconds.
	t.regs.setPrescaler(t.rate)

	t.regs.setAlarm(secs)
	now := t.regs.counter()

	for retry := 0; int32(secs-now) <= 0 && !t.regs.pending(); retry++ {
		if retry >= maxArmRetries {
			return fmt.Errorf("%w: alarm would not arm", ErrHardwareFault)
		}
		secs = now + 1
		t.regs.setAlarm(secs)
		now = t.regs.counter()
	}
	return nil
}

// alarmEnable is the Disabled/Enabled state machine. Enabling demands
// a target still in the future, or an already-latched event the
// caller wants delivered. Self transitions are no-ops. Caller holds
// the lock.
func (t *Timer) alarmEnable(enabled bool) error {
	switch {
	case enabled && !t.alarmEn:
		if int32(t.regs.counter()-t.regs.alarm()) >= 0 && !t.regs.pending() {
			return ErrAlarmInPast
		}
		t.alarmEn = true
		t.lines.alarmOn()
	case !enabled && t.alarmEn:
		t.lines.alarmOff()
		t.alarmEn = false
	}
	return nil
}

// wakeInterrupt services the wake line. With a dedicated alarm line
// fitted that line carries the alarm semantics, and this one only
// needs to exist; otherwise the wake event is reported here. No
// register is acknowledged, the read-alarm path reports the latch.
func (t *Timer) wakeInterrupt() {
	t.mu.Lock()
	lines := t.lines
	t.mu.Unlock()
	lines.onWake(t)
}

// alarmInterrupt services the dedicated alarm line. While the device
// is a wake source the latch is left asserted for the power manager
// to observe, and delivery is disabled instead; the matching enable
// is owed until the next alarm-enable or acknowledge.
func (t *Timer) alarmInterrupt(lines *dualLine) {
	t.mu.Lock()
	if !t.regs.pending() {
		t.mu.Unlock()
		slog.Debug("waketmr: spurious alarm interrupt on " + t.name)
		return
	}

	fired := false
	if t.alarmEn {
		if t.pm.MayWakeup(t.name) {
			lines.deferDisable()
		} else {
			t.regs.ack()
		}
		fired = true
	} else {
		t.regs.ack()
	}
	t.mu.Unlock()

	if fired {
		t.rtc.UpdateIRQ()
	}
}

// ReadTime returns the current counter as calendar time, sub-second
// phase included.
func (t *Timer) ReadTime() (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sec, ticks, err := t.readTime()
	if err != nil {
		return time.Time{}, err
	}
	return rtc.Time(sec, ticks, t.rate), nil
}

// SetTime writes the counter. The prescaler keeps its phase; the
// sub-second component immediately after a write is whatever phase
// the prescaler was in.
func (t *Timer) SetTime(tm time.Time) error {
	sec, err := rtc.Seconds(tm)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.regs.setCounter(sec)
	t.mu.Unlock()
	return nil
}

// ReadAlarm reports the last requested alarm time, even when the
// compare register was advanced past it while arming.
func (t *Timer) ReadAlarm() (rtc.Alarm, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return rtc.Alarm{
		Time:    rtc.Time(t.alarmTime, 0, 0),
		Enabled: t.alarmEn,
		Pending: t.regs.pending(),
	}, nil
}

// SetAlarm arms the comparator and applies the requested enable
// state.
func (t *Timer) SetAlarm(alarm rtc.Alarm) error {
	sec, err := rtc.Seconds(alarm.Time)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alarmTime = sec
	if err := t.setAlarm(sec); err != nil {
		return err
	}
	return t.alarmEnable(alarm.Enabled)
}

// AlarmEnable turns alarm event reporting on or off.
func (t *Timer) AlarmEnable(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alarmEnable(enabled)
}
