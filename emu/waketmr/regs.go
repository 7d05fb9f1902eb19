package waketmr

import (
	mmio "github.com/rcornwell/waketimer/emu/mmio"
)

// Register block layout.
const (
	RegEvent        = 0x00 // Event status, bit 0 is the alarm latch.
	RegCounter      = 0x04 // Free-running seconds counter.
	RegAlarm        = 0x08 // Alarm compare value.
	RegPrescaler    = 0x0C // Prescaler divisor, ticks per second.
	RegPrescalerVal = 0x10 // Prescaler current downcount.
)

// AlarmEvent is the alarm latch bit in the event register. Writing it
// back acknowledges the event.
const AlarmEvent = 1 << 0

// regs gives the core typed access to the register block. No logic
// beyond read and write lives here.
type regs struct {
	bus mmio.Bus
}

func (r regs) counter() uint32 {
	return r.bus.Read32(RegCounter)
}

func (r regs) setCounter(sec uint32) {
	r.bus.Write32(RegCounter, sec)
}

func (r regs) alarm() uint32 {
	return r.bus.Read32(RegAlarm)
}

func (r regs) setAlarm(sec uint32) {
	r.bus.Write32(RegAlarm, sec)
}

func (r regs) setPrescaler(rate uint32) {
	r.bus.Write32(RegPrescaler, rate)
}

func (r regs) prescalerVal() uint32 {
	return r.bus.Read32(RegPrescalerVal)
}

func (r regs) pending() bool {
	return (r.bus.Read32(RegEvent) & AlarmEvent) != 0
}

func (r regs) ack() {
	r.bus.Write32(RegEvent, AlarmEvent)
}

// sync forces the event write out by reading the register back.
func (r regs) sync() {
	_ = r.bus.Read32(RegEvent)
}
