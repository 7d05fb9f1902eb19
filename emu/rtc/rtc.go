/*
   waketimer - Generic RTC framework.

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

package rtc

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	master "github.com/rcornwell/waketimer/emu/master"
)

var (
	ErrRange        = errors.New("rtc: time outside device range")
	ErrUnregistered = errors.New("rtc: device not registered")
	ErrNoOps        = errors.New("rtc: device has no operations")
)

// Alarm is a wake alarm as seen by callers.
type Alarm struct {
	Time    time.Time // Requested alarm time.
	Enabled bool      // Alarm events are reported.
	Pending bool      // Hardware alarm condition is asserted.
}

// Ops are implemented by a device core. The framework serializes all
// calls; at most one operation is in flight per device.
type Ops interface {
	ReadTime() (time.Time, error)
	SetTime(time.Time) error
	ReadAlarm() (Alarm, error)
	SetAlarm(Alarm) error
	AlarmEnable(bool) error
}

// Device wraps a core behind the framework contract: call
// serialization, range checking and alarm event delivery.
type Device struct {
	mu       sync.Mutex
	name     string
	ops      Ops
	rangeMax uint32
	open     bool
	master   chan<- master.Packet
}

// NewDevice allocates a device. Operations fail until the device has
// been given ops and registered.
func NewDevice(name string, masterChannel chan<- master.Packet) *Device {
	return &Device{name: name, rangeMax: math.MaxUint32, master: masterChannel}
}

// SetOps installs the device core.
func (d *Device) SetOps(ops Ops) {
	d.mu.Lock()
	d.ops = ops
	d.mu.Unlock()
}

// SetRangeMax bounds the representable time in seconds since the
// epoch.
func (d *Device) SetRangeMax(maximum uint32) {
	d.mu.Lock()
	d.rangeMax = maximum
	d.mu.Unlock()
}

// Register makes the device available to callers.
func (d *Device) Register() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ops == nil {
		return ErrNoOps
	}
	d.open = true
	return nil
}

// Unregister withdraws the device.
func (d *Device) Unregister() {
	d.mu.Lock()
	d.open = false
	d.mu.Unlock()
}

func (d *Device) Name() string {
	return d.name
}

// UpdateIRQ reports an alarm-fired event upward. Called by the core
// from interrupt context; delivery must not re-enter the core.
func (d *Device) UpdateIRQ() {
	d.mu.Lock()
	ch := d.master
	open := d.open
	d.mu.Unlock()
	if ch != nil && open {
		ch <- master.Packet{Msg: master.AlarmEvent, Name: d.name}
	}
}

func (d *Device) ReadTime() (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return time.Time{}, ErrUnregistered
	}
	return d.ops.ReadTime()
}

func (d *Device) SetTime(t time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return ErrUnregistered
	}
	if _, err := d.seconds(t); err != nil {
		return err
	}
	return d.ops.SetTime(t)
}

func (d *Device) ReadAlarm() (Alarm, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return Alarm{}, ErrUnregistered
	}
	return d.ops.ReadAlarm()
}

func (d *Device) SetAlarm(alarm Alarm) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return ErrUnregistered
	}
	if _, err := d.seconds(alarm.Time); err != nil {
		return err
	}
	return d.ops.SetAlarm(alarm)
}

func (d *Device) AlarmEnable(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return ErrUnregistered
	}
	return d.ops.AlarmEnable(enabled)
}

func (d *Device) seconds(t time.Time) (uint32, error) {
	sec := t.Unix()
	if sec < 0 || sec > int64(d.rangeMax) {
		return 0, fmt.Errorf("%w: %v", ErrRange, t.UTC())
	}
	return uint32(sec), nil
}

// Seconds converts a calendar time to device seconds.
func Seconds(t time.Time) (uint32, error) {
	sec := t.Unix()
	if sec < 0 || sec > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %v", ErrRange, t.UTC())
	}
	return uint32(sec), nil
}

// Time converts device seconds and sub-second ticks at the given rate
// to a calendar time.
func Time(sec uint32, ticks uint32, rate uint32) time.Time {
	var nsec int64
	if rate != 0 {
		nsec = int64(ticks) * int64(time.Second) / int64(rate)
	}
	return time.Unix(int64(sec), nsec).UTC()
}
