/*
   waketimer - Power manager tests.

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
	"testing"

	master "github.com/rcornwell/waketimer/emu/master"
)

// Scriptable device recording the hooks run on it.
type testDevice struct {
	log         *[]string
	name        string
	failSuspend bool
	failLate    bool
}

func (d *testDevice) Suspend() error {
	*d.log = append(*d.log, d.name+":suspend")
	if d.failSuspend {
		return errors.New("no")
	}
	return nil
}

func (d *testDevice) SuspendLate() error {
	*d.log = append(*d.log, d.name+":late")
	if d.failLate {
		return errors.New("no")
	}
	return nil
}

func (d *testDevice) Resume() error {
	*d.log = append(*d.log, d.name+":resume")
	return nil
}

func expectLog(t *testing.T, got []string, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected %v got: %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected %v got: %v", want, got)
		}
	}
}

func TestSuspendOrder(t *testing.T) {
	m := New(nil)
	var log []string
	m.Register("a", &testDevice{log: &log, name: "a"})
	m.Register("b", &testDevice{log: &log, name: "b"})

	if err := m.Suspend(); err != nil {
		t.Fatalf("Suspend failed: %v", err)
	}
	if !m.Asleep() {
		t.Error("System should be asleep")
	}
	expectLog(t, log, []string{"a:suspend", "b:suspend", "a:late", "b:late"})

	log = nil
	m.Resume()
	if m.Asleep() {
		t.Error("System should be awake")
	}
	expectLog(t, log, []string{"b:resume", "a:resume"})
}

func TestSuspendWhileAsleep(t *testing.T) {
	m := New(nil)
	if err := m.Suspend(); err != nil {
		t.Fatalf("Suspend failed: %v", err)
	}
	if err := m.Suspend(); !errors.Is(err, ErrSuspended) {
		t.Errorf("Expected already-suspended error got: %v", err)
	}
}

// A prepare failure unwinds only the devices already suspended.
func TestSuspendPrepareUnwind(t *testing.T) {
	m := New(nil)
	var log []string
	m.Register("a", &testDevice{log: &log, name: "a"})
	m.Register("b", &testDevice{log: &log, name: "b", failSuspend: true})
	m.Register("c", &testDevice{log: &log, name: "c"})

	if err := m.Suspend(); err == nil {
		t.Fatal("Suspend should fail")
	}
	if m.Asleep() {
		t.Error("System must stay awake")
	}
	expectLog(t, log, []string{"a:suspend", "b:suspend", "a:resume"})
}

// A late failure unwinds every device; the prepare phase completed
// for all of them.
func TestSuspendLateUnwind(t *testing.T) {
	m := New(nil)
	var log []string
	m.Register("a", &testDevice{log: &log, name: "a"})
	m.Register("b", &testDevice{log: &log, name: "b", failLate: true})

	if err := m.Suspend(); err == nil {
		t.Fatal("Suspend should fail")
	}
	expectLog(t, log, []string{"a:suspend", "b:suspend", "a:late", "b:late",
		"b:resume", "a:resume"})
}

func TestUnregister(t *testing.T) {
	m := New(nil)
	var log []string
	m.Register("a", &testDevice{log: &log, name: "a"})
	m.SetMayWakeup("a", true)
	m.Unregister("a")

	if m.MayWakeup("a") {
		t.Error("Wake capability should go with the device")
	}
	if err := m.Suspend(); err != nil {
		t.Fatalf("Suspend failed: %v", err)
	}
	expectLog(t, log, nil)
}

func TestWakeupEvents(t *testing.T) {
	ch := make(chan master.Packet, 2)
	m := New(ch)
	m.WakeupEvent("a")
	m.WakeupEvent("a")
	if m.WakeupCount() != 2 {
		t.Errorf("Expected 2 wake events got: %d", m.WakeupCount())
	}
	pkt := <-ch
	if pkt.Msg != master.WakeEvent || pkt.Name != "a" {
		t.Errorf("Unexpected packet: %+v", pkt)
	}
}

func TestUnregisterRebootNotifier(t *testing.T) {
	m := New(nil)
	var ran []string
	id := m.RegisterRebootNotifier(func(Action) error {
		ran = append(ran, "a")
		return nil
	})
	m.RegisterRebootNotifier(func(Action) error {
		ran = append(ran, "b")
		return nil
	})

	m.UnregisterRebootNotifier(id)
	m.Shutdown(Restart)
	if len(ran) != 1 || ran[0] != "b" {
		t.Errorf("Expected only the remaining notifier got: %v", ran)
	}
}

func TestRebootNotifiers(t *testing.T) {
	ch := make(chan master.Packet, 1)
	m := New(ch)
	var actions []Action
	m.RegisterRebootNotifier(func(a Action) error {
		actions = append(actions, a)
		return nil
	})
	// Notifier errors are logged, never fatal.
	m.RegisterRebootNotifier(func(Action) error {
		return errors.New("no")
	})

	m.Shutdown(Restart)
	select {
	case <-ch:
		t.Error("Restart must not report power down")
	default:
	}

	m.Shutdown(PowerOff)
	pkt := <-ch
	if pkt.Msg != master.PowerDown {
		t.Errorf("Expected power down packet got: %+v", pkt)
	}
	if len(actions) != 2 || actions[0] != Restart || actions[1] != PowerOff {
		t.Errorf("Unexpected notifier actions: %v", actions)
	}
}
