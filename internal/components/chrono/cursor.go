package chrono

import (
	"fmt"
	"time"
)

// Cursor is the running "current day" handed out while scheduling content.
// It only ever moves forward by whole days.
type Cursor struct {
	date Date
}

func NewCursor(start Date) *Cursor {
	return &Cursor{date: start}
}

func (c *Cursor) Date() Date {
	return c.date
}

// Peek returns the date `days` ahead of the cursor without moving it.
func (c *Cursor) Peek(days int) Date {
	return Advance(c.date, days)
}

// Align moves the cursor forward onto the next `target` weekday, it does
// nothing if the cursor is already there.
func (c *Cursor) Align(target time.Weekday) {
	c.date = AdjustToWeekday(c.date, target)
}

func (c *Cursor) Advance(days int) {
	if days < 0 {
		panic(fmt.Sprintf("chrono: cursor cannot move backwards (%d days)", days))
	}
	c.date = Advance(c.date, days)
}
