package vepoll

import (
	"github.com/parasim/parasim/internal/calendar"
	"github.com/parasim/parasim/internal/vtime"
)

func testCalendar() *calendar.Calendar {
	return calendar.New(calendar.DefaultConfig())
}

type vtimeNow vtime.Time

func (n vtimeNow) get() vtime.Time { return vtime.Time(n) }
