/*
   waketimer - Power management and reboot notification.

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

package power

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	master "github.com/rcornwell/waketimer/emu/master"
)

// Reboot notifier actions.
type Action int

const (
	Restart Action = iota // System restarting.
	PowerOff              // Power being removed.
)

var ErrSuspended = errors.New("power: system already suspended")

// Ops are the transition hooks a device registers. Suspend is the
// prepare phase, SuspendLate the last check before quiescence, and
// Resume runs on the way back up.
type Ops interface {
	Suspend() error
	SuspendLate() error
	Resume() error
}

type entry struct {
	name string
	ops  Ops
}

type notifier struct {
	id int
	fn func(Action) error
}

// Manager tracks wakeup capability per device, orders suspend and
// resume over the registered devices, and runs reboot notifiers.
type Manager struct {
	mu       sync.Mutex
	master   chan<- master.Packet
	wakeup   map[string]bool
	devices  []entry
	notify   []notifier
	notifyID int
	asleep   bool
	wakes    uint64
}

// New creates a power manager. The master channel may be nil when no
// front end is listening; events are then dropped.
func New(masterChannel chan<- master.Packet) *Manager {
	return &Manager{master: masterChannel, wakeup: map[string]bool{}}
}

// SetMayWakeup configures whether a device may wake the system.
func (m *Manager) SetMayWakeup(name string, may bool) {
	m.mu.Lock()
	m.wakeup[name] = may
	m.mu.Unlock()
}

// MayWakeup reports whether a device may wake the system.
func (m *Manager) MayWakeup(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wakeup[name]
}

// WakeupEvent records a wake-capable event from a device and forwards
// it to the front end.
func (m *Manager) WakeupEvent(name string) {
	m.mu.Lock()
	m.wakes++
	ch := m.master
	m.mu.Unlock()
	if ch != nil {
		ch <- master.Packet{Msg: master.WakeEvent, Name: name}
	}
}

// WakeupCount returns the number of wake events seen.
func (m *Manager) WakeupCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wakes
}

// Register adds a device to the suspend ordering.
func (m *Manager) Register(name string, ops Ops) {
	m.mu.Lock()
	m.devices = append(m.devices, entry{name: name, ops: ops})
	m.mu.Unlock()
}

// Unregister removes a device.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	m.devices = slices.DeleteFunc(m.devices, func(e entry) bool {
		return e.name == name
	})
	delete(m.wakeup, name)
	m.mu.Unlock()
}

// RegisterRebootNotifier adds a callback run on reboot transitions
// and returns a handle for unregistering it. Notifier errors are
// logged, never fatal.
func (m *Manager) RegisterRebootNotifier(fn func(Action) error) int {
	m.mu.Lock()
	m.notifyID++
	id := m.notifyID
	m.notify = append(m.notify, notifier{id: id, fn: fn})
	m.mu.Unlock()
	return id
}

// UnregisterRebootNotifier removes a notifier by its handle.
func (m *Manager) UnregisterRebootNotifier(id int) {
	m.mu.Lock()
	m.notify = slices.DeleteFunc(m.notify, func(n notifier) bool {
		return n.id == id
	})
	m.mu.Unlock()
}

// Suspend runs the prepare phase over every device, then the late
// phase. Any failure unwinds devices already suspended and returns
// the error with the system still awake.
func (m *Manager) Suspend() error {
	m.mu.Lock()
	if m.asleep {
		m.mu.Unlock()
		return ErrSuspended
	}
	devices := slices.Clone(m.devices)
	m.mu.Unlock()

	for i, d := range devices {
		if err := d.ops.Suspend(); err != nil {
			slog.Error("power: suspend rejected by " + d.name + ": " + err.Error())
			m.unwind(devices[:i])
			return err
		}
	}
	for _, d := range devices {
		if err := d.ops.SuspendLate(); err != nil {
			slog.Error("power: late suspend rejected by " + d.name + ": " + err.Error())
			m.unwind(devices)
			return err
		}
	}

	m.mu.Lock()
	m.asleep = true
	m.mu.Unlock()
	return nil
}

// Resume brings the system back up, resuming devices in reverse
// registration order.
func (m *Manager) Resume() {
	m.mu.Lock()
	if !m.asleep {
		m.mu.Unlock()
		return
	}
	m.asleep = false
	devices := slices.Clone(m.devices)
	m.mu.Unlock()
	m.unwind(devices)
}

// Asleep reports whether a suspend transition completed.
func (m *Manager) Asleep() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.asleep
}

// Shutdown runs the reboot notifier chain and tells the front end the
// power is going away. Notifier errors are logged and ignored so a
// late failure cannot block the power-off.
func (m *Manager) Shutdown(action Action) {
	m.mu.Lock()
	notify := slices.Clone(m.notify)
	ch := m.master
	m.mu.Unlock()

	for _, n := range notify {
		if err := n.fn(action); err != nil {
			slog.Error("power: reboot notifier: " + err.Error())
		}
	}
	if ch != nil && action == PowerOff {
		ch <- master.Packet{Msg: master.PowerDown}
	}
}

func (m *Manager) unwind(devices []entry) {
	for i := len(devices) - 1; i >= 0; i-- {
		if err := devices[i].ops.Resume(); err != nil {
			slog.Error("power: resume failed for " + devices[i].name + ": " + err.Error())
		}
	}
}
