/*
   waketimer - Clock provider.

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

package clock

import (
	"log/slog"
	"sync"

	"periph.io/x/periph/conn/physic"
)

// Clock feeds a device with a tick rate. Enable and Disable are
// reference counted by the provider, not by consumers.
type Clock interface {
	Rate() physic.Frequency
	Enable() error
	Disable()
}

// Fixed is a clock with a constant rate.
type Fixed struct {
	mu   sync.Mutex
	rate physic.Frequency
	refs int
}

func NewFixed(rate physic.Frequency) *Fixed {
	return &Fixed{rate: rate}
}

func (c *Fixed) Rate() physic.Frequency {
	return c.rate
}

func (c *Fixed) Enable() error {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
	return nil
}

func (c *Fixed) Disable() {
	c.mu.Lock()
	if c.refs == 0 {
		slog.Warn("clock: disable without matching enable")
	} else {
		c.refs--
	}
	c.mu.Unlock()
}

// Refs returns the current enable count.
func (c *Fixed) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// Hertz converts a rate to whole cycles per second.
func Hertz(rate physic.Frequency) uint32 {
	return uint32(rate / physic.Hertz)
}
