/*
   waketimer - Interrupt line management.

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

package irq

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Request flags.
type Flags int

const (
	// NoAutoEnable leaves the line disabled until the first Enable call.
	NoAutoEnable Flags = 1 << iota
)

var (
	ErrInUse      = errors.New("irq: line already requested")
	ErrUnbalanced = errors.New("irq: unbalanced enable")
	ErrNoWake     = errors.New("irq: line cannot wake the system")
)

// Handler runs on the goroutine that raised the line. It must not
// block on the raising hardware.
type Handler func()

// Controller hands out interrupt lines by number.
type Controller struct {
	mu    sync.Mutex
	lines map[int]*Line
}

func NewController() *Controller {
	return &Controller{lines: map[int]*Line{}}
}

// Request claims a line and installs its handler. The line starts
// enabled unless NoAutoEnable is given.
func (c *Controller) Request(num int, name string, flags Flags, handler Handler) (*Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lines[num]; ok {
		return nil, fmt.Errorf("%w: %d", ErrInUse, num)
	}
	line := &Line{num: num, name: name, handler: handler, wakeable: true}
	if (flags & NoAutoEnable) != 0 {
		line.depth = 1
	}
	c.lines[num] = line
	return line, nil
}

// Free releases a line. Raising a freed line is a no-op.
func (c *Controller) Free(line *Line) {
	if line == nil {
		return
	}
	c.mu.Lock()
	delete(c.lines, line.num)
	c.mu.Unlock()
	line.mu.Lock()
	line.handler = nil
	line.mu.Unlock()
}

// Line raises a number to a claimed line, for hardware models.
func (c *Controller) Line(num int) *Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines[num]
}

// Line is one interrupt line. Delivery is level styled: a raise while
// disabled is held pending and delivered when the line is re-enabled.
type Line struct {
	mu       sync.Mutex
	num      int
	name     string
	handler  Handler
	depth    int  // Disable nesting, zero means delivery enabled.
	pending  bool // Raised while disabled.
	wake     bool // Armed to wake the system.
	wakeable bool // Hardware can route this line as a wake source.

	enables  uint64 // Lifetime enable count.
	disables uint64 // Lifetime disable count.
}

// Disable stops delivery. Calls nest; each one must be balanced by an
// Enable. Does not wait for a running handler.
func (l *Line) Disable() {
	l.mu.Lock()
	l.depth++
	l.disables++
	l.mu.Unlock()
}

// Enable undoes one Disable. Enabling an already enabled line is an
// error and leaves the line unchanged. A raise held pending while the
// line was disabled is redelivered asynchronously, as hardware would;
// Enable is callable from inside a handler.
func (l *Line) Enable() error {
	l.mu.Lock()
	if l.depth == 0 {
		l.mu.Unlock()
		slog.Warn("irq: unbalanced enable for " + l.name)
		return ErrUnbalanced
	}
	l.depth--
	l.enables++
	var handler Handler
	if l.depth == 0 && l.pending {
		l.pending = false
		handler = l.handler
	}
	l.mu.Unlock()
	if handler != nil {
		go handler()
	}
	return nil
}

// EnableWake arms the line as a system wake source.
func (l *Line) EnableWake() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.wakeable {
		return fmt.Errorf("%w: %s", ErrNoWake, l.name)
	}
	l.wake = true
	return nil
}

// DisableWake disarms the line as a wake source.
func (l *Line) DisableWake() {
	l.mu.Lock()
	l.wake = false
	l.mu.Unlock()
}

// Wake reports whether the line is armed as a wake source.
func (l *Line) Wake() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wake
}

// SetWakeable configures whether the hardware can route this line as
// a wake source. Lines are wakeable unless told otherwise.
func (l *Line) SetWakeable(ok bool) {
	l.mu.Lock()
	l.wakeable = ok
	l.mu.Unlock()
}

// Raise asserts the line from the hardware side. The handler runs on
// the caller's goroutine with no line lock held.
func (l *Line) Raise() {
	l.mu.Lock()
	if l.depth != 0 {
		l.pending = true
		l.mu.Unlock()
		return
	}
	handler := l.handler
	l.mu.Unlock()
	if handler != nil {
		handler()
	}
}

// Depth returns the current disable nesting.
func (l *Line) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth
}

// Balance returns the lifetime enable and disable counts.
func (l *Line) Balance() (enables uint64, disables uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enables, l.disables
}
