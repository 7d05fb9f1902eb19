/*
   waketimer - Simulated wake-timer register block.

   Models the hardware the device core drives: a free-running seconds
   counter fed by a prescaler downcount, an edge-detecting alarm
   comparator with an event latch, and two interrupt outputs.

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
	"log/slog"
	"sync"
	"time"

	irq "github.com/rcornwell/waketimer/emu/irq"
	waketmr "github.com/rcornwell/waketimer/emu/waketmr"
)

// Block is one simulated register block. It implements mmio.Bus.
//
// The prescaler downcount holds the ticks remaining in the current
// second; the tick that finds it at zero increments the counter and
// reloads it with divisor-1. The comparator is edge detecting: the
// event latch sets only when an increment lands the counter exactly
// on the compare value, so a compare value already passed never
// fires. Writing the divisor resets the downcount, writing the
// counter does not.
type Block struct {
	mu    sync.Mutex
	rate  uint32 // Prescaler divisor.
	val   uint32 // Downcount, ticks left in this second.
	count uint32 // Seconds counter.
	alarm uint32 // Compare value.
	event uint32 // Event latch.

	wake      *irq.Line
	alarmLine *irq.Line

	wg     sync.WaitGroup
	run    chan bool     // Enable or disable free running.
	done   chan struct{} // Stop free-run task.
	ticker *time.Ticker
}

// New creates a block with the divisor preloaded and the counter at
// zero.
func New(rate uint32) *Block {
	return &Block{
		rate: rate,
		val:  rate - 1,
		run:  make(chan bool, 1),
		done: make(chan struct{}),
	}
}

// Connect routes the interrupt outputs. The alarm line may be nil for
// a single-line unit.
func (b *Block) Connect(wake *irq.Line, alarm *irq.Line) {
	b.mu.Lock()
	b.wake = wake
	b.alarmLine = alarm
	b.mu.Unlock()
}

// Read32 implements mmio.Bus.
func (b *Block) Read32(offset uint32) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch offset {
	case waketmr.RegEvent:
		return b.event
	case waketmr.RegCounter:
		return b.count
	case waketmr.RegAlarm:
		return b.alarm
	case waketmr.RegPrescaler:
		return b.rate
	case waketmr.RegPrescalerVal:
		return b.val
	}
	slog.Warn("simtmr: read of unknown register", "offset", offset)
	return 0
}

// Write32 implements mmio.Bus.
func (b *Block) Write32(offset uint32, value uint32) {
	b.mu.Lock()
	switch offset {
	case waketmr.RegEvent:
		// Writing the latch bit acknowledges it.
		b.event &^= value & waketmr.AlarmEvent
	case waketmr.RegCounter:
		b.count = value
	case waketmr.RegAlarm:
		b.alarm = value
	case waketmr.RegPrescaler:
		if value == 0 {
			slog.Warn("simtmr: ignoring zero prescaler divisor")
		} else {
			b.rate = value
			b.val = value - 1
		}
	default:
		slog.Warn("simtmr: write to unknown register", "offset", offset)
	}
	b.mu.Unlock()
}

// Tick advances the prescaler input by n ticks, raising the interrupt
// outputs when the comparator latches.
func (b *Block) Tick(n uint64) {
	b.mu.Lock()
	fired := false
	for n > 0 {
		if uint64(b.val) >= n {
			b.val -= uint32(n)
			break
		}
		// Consume the rest of this second plus the increment tick.
		n -= uint64(b.val) + 1
		b.count++
		b.val = b.rate - 1
		if b.count == b.alarm && (b.event&waketmr.AlarmEvent) == 0 {
			b.event |= waketmr.AlarmEvent
			fired = true
		}
	}
	wake, alarm := b.wake, b.alarmLine
	b.mu.Unlock()

	// Raise outside the lock; handlers read registers back.
	if fired {
		if wake != nil {
			wake.Raise()
		}
		if alarm != nil {
			alarm.Raise()
		}
	}
}

// Rate returns the prescaler divisor.
func (b *Block) Rate() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rate
}

// Counter returns the current seconds count.
func (b *Block) Counter() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Pending reports the event latch.
func (b *Block) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return (b.event & waketmr.AlarmEvent) != 0
}

// FreeRun starts a task advancing the block in real time, one tick
// batch every interval. Use Start and Stop to gate it and Shutdown to
// end it.
func (b *Block) FreeRun(interval time.Duration) {
	b.mu.Lock()
	ticks := uint64(b.rate) * uint64(interval) / uint64(time.Second)
	b.mu.Unlock()
	b.wg.Add(1)
	go b.freeRun(interval, ticks)
}

// Start resumes free running.
func (b *Block) Start() {
	b.run <- true
}

// Stop pauses free running.
func (b *Block) Stop() {
	b.run <- false
}

// Shutdown stops the free-run task, waiting up to a second for it.
func (b *Block) Shutdown() {
	close(b.done)
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("simtmr: free-run task did not stop")
	}
}

func (b *Block) freeRun(interval time.Duration, ticks uint64) {
	defer b.wg.Done()
	b.ticker = time.NewTicker(interval)
	defer b.ticker.Stop()
	running := true
	for {
		select {
		case <-b.done:
			return
		case running = <-b.run:
		case <-b.ticker.C:
			if running {
				b.Tick(ticks)
			}
		}
	}
}
