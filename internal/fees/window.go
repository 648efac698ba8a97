package fees

import (
	"fmt"
	"math"
	"time"
)

// MaxHours is the longest lookback whose duration fits in a time.Duration.
const MaxHours = math.MaxInt64 / int64(time.Hour)

// Window is the lookback interval [Now-Hours, Now].
type Window struct {
	Now   time.Time `json:"now"`
	Hours int       `json:"hours"`
}

// NewWindow validates hours and normalises now to UTC.
func NewWindow(now time.Time, hours int) (Window, error) {
	if hours <= 0 {
		return Window{}, fmt.Errorf("hours must be a positive integer, got %d", hours)
	}
	if int64(hours) > MaxHours {
		return Window{}, fmt.Errorf("hours must be at most %d, got %d", MaxHours, hours)
	}
	return Window{Now: now.UTC(), Hours: hours}, nil
}

// Cutoff is the oldest instant still inside the window.
func (w Window) Cutoff() time.Time {
	return w.Now.Add(-time.Duration(w.Hours) * time.Hour)
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Cutoff()) && !t.After(w.Now)
}
