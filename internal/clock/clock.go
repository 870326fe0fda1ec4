// Package clock implements byoyomi time control. Nothing here reads the wall
// clock: the host calls Tick with the elapsed milliseconds of each step.
package clock

import (
	"errors"
	"time"

	"github.com/park285/baduk-omok-server/internal/board"
)

var ErrAlreadyExpired = errors.New("clock already expired")

type State int

const (
	StateMain State = iota
	StateOvertime
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateOvertime:
		return "overtime"
	case StateExpired:
		return "expired"
	default:
		return "main"
	}
}

// TimeControl configures both players' clocks.
type TimeControl struct {
	MainTime   time.Duration `yaml:"main_time"`
	PeriodTime time.Duration `yaml:"period_time"`
	Periods    int           `yaml:"periods"`
}

// PlayerClock is one side's clock.
type PlayerClock struct {
	MainTimeRemainingMs      int64
	OvertimeRemainingMs      int64
	OvertimeBudgetMs         int64
	OvertimePeriodsRemaining int
	InOvertime               bool
	Expired                  bool
}

func NewPlayerClock(tc TimeControl) PlayerClock {
	periods := tc.Periods
	if periods < 0 {
		periods = 0
	}
	return PlayerClock{
		MainTimeRemainingMs:      nonNegative(tc.MainTime.Milliseconds()),
		OvertimeBudgetMs:         nonNegative(tc.PeriodTime.Milliseconds()),
		OvertimePeriodsRemaining: periods,
	}
}

func (c *PlayerClock) State() State {
	switch {
	case c.Expired:
		return StateExpired
	case c.InOvertime:
		return StateOvertime
	default:
		return StateMain
	}
}

// Tick consumes elapsedMs. It returns expired=true exactly on the call that
// moves the clock into StateExpired; later calls fail with ErrAlreadyExpired.
//
// Time left over after main time runs out is dropped rather than charged to
// the first overtime period, and overtime never carries across periods.
func (c *PlayerClock) Tick(elapsedMs int64) (expired bool, err error) {
	if c.Expired {
		return false, ErrAlreadyExpired
	}
	if elapsedMs <= 0 {
		return false, nil
	}

	if !c.InOvertime {
		c.MainTimeRemainingMs -= elapsedMs
		if c.MainTimeRemainingMs > 0 {
			return false, nil
		}
		c.MainTimeRemainingMs = 0
		c.InOvertime = true
		c.OvertimeRemainingMs = c.OvertimeBudgetMs
		if c.OvertimeRemainingMs > 0 {
			return false, nil
		}
		// no overtime budget at all: fall through to period handling
	} else {
		c.OvertimeRemainingMs -= elapsedMs
		if c.OvertimeRemainingMs > 0 {
			return false, nil
		}
		c.OvertimeRemainingMs = 0
	}

	if c.OvertimePeriodsRemaining > 0 && c.OvertimeBudgetMs > 0 {
		c.OvertimePeriodsRemaining--
		c.OvertimeRemainingMs = c.OvertimeBudgetMs
		return false, nil
	}
	c.OvertimePeriodsRemaining = 0
	c.Expired = true
	return true, nil
}

// Reset is called after the owner completes a move. In overtime the current
// period is refilled; main time is never refilled.
func (c *PlayerClock) Reset() {
	if c.InOvertime && !c.Expired {
		c.OvertimeRemainingMs = c.OvertimeBudgetMs
	}
}

// Clocks holds both players' clocks. Only the side on move is ticked.
type Clocks struct {
	Black PlayerClock
	White PlayerClock
}

func NewClocks(tc TimeControl) Clocks {
	return Clocks{Black: NewPlayerClock(tc), White: NewPlayerClock(tc)}
}

func (c *Clocks) For(color board.Cell) *PlayerClock {
	if color == board.White {
		return &c.White
	}
	return &c.Black
}

// Tick advances the clock of active only; the idle side stays frozen.
func (c *Clocks) Tick(active board.Cell, elapsedMs int64) (bool, error) {
	return c.For(active).Tick(elapsedMs)
}

func (c *Clocks) Reset(mover board.Cell) {
	c.For(mover).Reset()
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
