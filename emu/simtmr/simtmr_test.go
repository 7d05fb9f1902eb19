/*
   waketimer - Simulated timer block tests.

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

package simtmr

import (
	"testing"
	"time"

	"periph.io/x/periph/conn/physic"

	clock "github.com/rcornwell/waketimer/emu/clock"
	irq "github.com/rcornwell/waketimer/emu/irq"
	master "github.com/rcornwell/waketimer/emu/master"
	power "github.com/rcornwell/waketimer/emu/power"
	rtc "github.com/rcornwell/waketimer/emu/rtc"
	waketmr "github.com/rcornwell/waketimer/emu/waketmr"
)

func TestTickRollover(t *testing.T) {
	sim := New(10)
	sim.Tick(5)
	if sim.Counter() != 0 {
		t.Errorf("Expected counter 0 got: %d", sim.Counter())
	}
	sim.Tick(5)
	if sim.Counter() != 1 {
		t.Errorf("Expected counter 1 got: %d", sim.Counter())
	}
}

func TestTickChunked(t *testing.T) {
	sim := New(10)
	sim.Tick(35)
	if sim.Counter() != 3 {
		t.Errorf("Expected counter 3 got: %d", sim.Counter())
	}
	if v := sim.Read32(waketmr.RegPrescalerVal); v != 4 {
		t.Errorf("Expected downcount 4 got: %d", v)
	}
}

func TestComparatorEdge(t *testing.T) {
	sim := New(10)
	sim.Write32(waketmr.RegAlarm, 2)
	sim.Tick(19)
	if sim.Pending() {
		t.Error("Latch should not set before the compare second")
	}
	sim.Tick(1)
	if !sim.Pending() {
		t.Error("Latch should set when the increment lands on compare")
	}
	if sim.Counter() != 2 {
		t.Errorf("Expected counter 2 got: %d", sim.Counter())
	}
}

// A compare value the counter is already past never fires.
func TestComparatorPassed(t *testing.T) {
	sim := New(10)
	sim.Write32(waketmr.RegCounter, 5)
	sim.Write32(waketmr.RegAlarm, 2)
	sim.Tick(30)
	if sim.Pending() {
		t.Error("Passed compare value must not latch")
	}
}

// Writing the counter equal to the compare value does not latch; only
// an increment landing on the compare does.
func TestComparatorWriteEqual(t *testing.T) {
	sim := New(10)
	sim.Write32(waketmr.RegAlarm, 2)
	sim.Write32(waketmr.RegCounter, 2)
	sim.Tick(5)
	if sim.Pending() {
		t.Error("Counter write must not latch the comparator")
	}
}

func TestAcknowledge(t *testing.T) {
	sim := New(10)
	sim.Write32(waketmr.RegAlarm, 1)
	sim.Tick(10)
	if !sim.Pending() {
		t.Fatal("Latch should be set")
	}
	sim.Write32(waketmr.RegEvent, waketmr.AlarmEvent)
	if sim.Pending() {
		t.Error("Latch should be acknowledged")
	}
}

func TestDivisorWriteResetsPhase(t *testing.T) {
	sim := New(10)
	sim.Tick(3)
	if v := sim.Read32(waketmr.RegPrescalerVal); v != 6 {
		t.Fatalf("Expected downcount 6 got: %d", v)
	}
	sim.Write32(waketmr.RegPrescaler, 10)
	if v := sim.Read32(waketmr.RegPrescalerVal); v != 9 {
		t.Errorf("Expected downcount reset to 9 got: %d", v)
	}
	// Zero divisor is refused.
	sim.Write32(waketmr.RegPrescaler, 0)
	if sim.Rate() != 10 {
		t.Errorf("Zero divisor should be ignored, rate: %d", sim.Rate())
	}
}

func TestCounterWriteKeepsPhase(t *testing.T) {
	sim := New(10)
	sim.Tick(3)
	sim.Write32(waketmr.RegCounter, 100)
	if v := sim.Read32(waketmr.RegPrescalerVal); v != 6 {
		t.Errorf("Counter write changed the downcount: %d", v)
	}
}

// The latch raises the connected lines once per edge.
func TestRaiseOnce(t *testing.T) {
	sim := New(10)
	ctl := irq.NewController()
	raised := 0
	_, err := ctl.Request(1, "test", 0, func() { raised++ })
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	sim.Connect(ctl.Line(1), nil)
	sim.Write32(waketmr.RegAlarm, 1)

	sim.Tick(10)
	sim.Tick(10)
	if raised != 1 {
		t.Errorf("Expected one raise got: %d", raised)
	}
}

func TestFreeRun(t *testing.T) {
	sim := New(1000)
	sim.FreeRun(time.Millisecond)
	sim.Start()
	time.Sleep(50 * time.Millisecond)
	sim.Stop()
	// Let a tick already queued at the stop drain out.
	time.Sleep(10 * time.Millisecond)
	pos := 999 - sim.Read32(waketmr.RegPrescalerVal)
	if sim.Counter() == 0 && pos == 0 {
		t.Error("Free run made no progress")
	}
	time.Sleep(20 * time.Millisecond)
	if sim.Counter() == 0 && 999-sim.Read32(waketmr.RegPrescalerVal) != pos {
		t.Error("Stopped block kept ticking")
	}
	sim.Shutdown()
}

// Full unit: simulated block, interrupt lines, power manager, RTC
// framework and the device core wired the way main does it.
type unit struct {
	sim *Block
	ctl *irq.Controller
	pm  *power.Manager
	dev *rtc.Device
	tmr *waketmr.Timer
	ch  chan master.Packet
}

func newUnit(t *testing.T, rate uint32) *unit {
	t.Helper()
	u := &unit{
		sim: New(rate),
		ctl: irq.NewController(),
		ch:  make(chan master.Packet, 4),
	}
	u.pm = power.New(u.ch)
	u.dev = rtc.NewDevice("wktmr", u.ch)
	tmr, err := waketmr.New(waketmr.Config{
		Name:     "wktmr",
		Bus:      u.sim,
		Clock:    clock.NewFixed(physic.Frequency(rate) * physic.Hertz),
		Intr:     u.ctl,
		WakeIRQ:  1,
		AlarmIRQ: 2,
		Power:    u.pm,
		RTC:      u.dev,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	u.tmr = tmr
	u.sim.Connect(u.ctl.Line(1), u.ctl.Line(2))
	return u
}

func (u *unit) expectEvent(t *testing.T, msg int) {
	t.Helper()
	select {
	case pkt := <-u.ch:
		if pkt.Msg != msg {
			t.Errorf("Expected event %d got: %d", msg, pkt.Msg)
		}
	default:
		t.Error("Expected an event")
	}
}

func TestUnitTimekeeping(t *testing.T) {
	u := newUnit(t, 10)
	err := u.dev.SetTime(time.Unix(1000, 0).UTC())
	if err != nil {
		t.Fatalf("SetTime failed: %v", err)
	}

	// A fresh block is one tick into its second, so reading straight
	// back shows a tenth of a second at rate 10.
	now, err := u.dev.ReadTime()
	if err != nil {
		t.Fatalf("ReadTime failed: %v", err)
	}
	if now.Unix() != 1000 || now.Nanosecond() != 100000000 {
		t.Errorf("Expected 1000s + 100ms got: %v", now)
	}

	u.sim.Tick(25)
	now, err = u.dev.ReadTime()
	if err != nil {
		t.Fatalf("ReadTime failed: %v", err)
	}
	if now.Unix() != 1002 {
		t.Errorf("Expected 1002 seconds got: %d", now.Unix())
	}
}

// Alarm fires and is acknowledged immediately because the device is
// not a wake source; the event still reaches the front end.
func TestUnitAlarmFires(t *testing.T) {
	u := newUnit(t, 10)
	u.pm.SetMayWakeup("wktmr", false)
	if err := u.dev.SetTime(time.Unix(1000, 0).UTC()); err != nil {
		t.Fatalf("SetTime failed: %v", err)
	}
	err := u.dev.SetAlarm(rtc.Alarm{Time: time.Unix(1002, 0).UTC(), Enabled: true})
	if err != nil {
		t.Fatalf("SetAlarm failed: %v", err)
	}

	// Arming rewrote the divisor, so the phase is fresh: two full
	// seconds of ticks reach the compare value.
	u.sim.Tick(19)
	if u.sim.Pending() {
		t.Error("Alarm should not have fired yet")
	}
	u.sim.Tick(1)
	u.expectEvent(t, master.AlarmEvent)
	if u.sim.Pending() {
		t.Error("Handler should have acknowledged the latch")
	}

	alarm, err := u.dev.ReadAlarm()
	if err != nil {
		t.Fatalf("ReadAlarm failed: %v", err)
	}
	if !alarm.Enabled || alarm.Pending {
		t.Errorf("Expected enabled, not pending got: %+v", alarm)
	}
}

// Alarm fires between the suspend prepare phase and quiescence; the
// suspend fails, unwinds and the system stays awake.
func TestUnitSuspendRace(t *testing.T) {
	u := newUnit(t, 10)
	if err := u.dev.SetTime(time.Unix(1000, 0).UTC()); err != nil {
		t.Fatalf("SetTime failed: %v", err)
	}
	err := u.dev.SetAlarm(rtc.Alarm{Time: time.Unix(1002, 0).UTC(), Enabled: true})
	if err != nil {
		t.Fatalf("SetAlarm failed: %v", err)
	}

	// Fire while wake capable: the latch is left asserted.
	u.sim.Tick(20)
	u.expectEvent(t, master.AlarmEvent)
	if !u.sim.Pending() {
		t.Fatal("Latch should stay asserted for the power manager")
	}

	if err := u.pm.Suspend(); err == nil {
		t.Fatal("Suspend should be rejected")
	}
	if u.pm.Asleep() {
		t.Error("System must stay awake")
	}
	// The unwind resumed the device, clearing the alarm condition.
	if u.sim.Pending() {
		t.Error("Unwind should have cleared the latch")
	}
}

// Suspend completes, the alarm fires during sleep and the front end
// resumes the system.
func TestUnitSuspendWake(t *testing.T) {
	u := newUnit(t, 10)
	if err := u.dev.SetTime(time.Unix(1000, 0).UTC()); err != nil {
		t.Fatalf("SetTime failed: %v", err)
	}
	err := u.dev.SetAlarm(rtc.Alarm{Time: time.Unix(1002, 0).UTC(), Enabled: true})
	if err != nil {
		t.Fatalf("SetAlarm failed: %v", err)
	}

	if err := u.pm.Suspend(); err != nil {
		t.Fatalf("Suspend failed: %v", err)
	}
	if !u.ctl.Line(1).Wake() || !u.ctl.Line(2).Wake() {
		t.Error("Both lines should be wake armed")
	}

	u.sim.Tick(20)
	u.expectEvent(t, master.AlarmEvent)
	if !u.sim.Pending() {
		t.Error("Latch should stay asserted while suspended")
	}

	u.pm.Resume()
	if u.pm.Asleep() {
		t.Error("System should be awake")
	}
	if u.sim.Pending() {
		t.Error("Resume should clear the alarm condition")
	}
	if u.ctl.Line(1).Wake() || u.ctl.Line(2).Wake() {
		t.Error("Wake arming should be revoked")
	}
}
