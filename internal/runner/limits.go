package runner

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// SessionWindow: торговое окно в локальном времени tz, границы включительно.
// End раньше Start означает окно через полночь.
type SessionWindow struct {
	Enabled    bool
	start, end int // минуты от полуночи
	loc        *time.Location
}

func ParseSession(enabled bool, start, end, tz string) (SessionWindow, error) {
	w := SessionWindow{Enabled: enabled, loc: time.UTC}
	if !enabled {
		return w, nil
	}
	if tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return w, fmt.Errorf("session tz %q: %w", tz, err)
		}
		w.loc = loc
	}
	var err error
	if w.start, err = clockMinutes(start); err != nil {
		return w, err
	}
	if w.end, err = clockMinutes(end); err != nil {
		return w, err
	}
	return w, nil
}

func clockMinutes(raw string) (int, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("session time %q: %w", raw, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (w SessionWindow) Contains(t time.Time) bool {
	if !w.Enabled {
		return true
	}
	lt := t.In(w.loc)
	m := lt.Hour()*60 + lt.Minute()
	if w.start <= w.end {
		return m >= w.start && m <= w.end
	}
	return m >= w.start || m <= w.end
}

// hourLimiter считает входы в текущем часе (по часам loc); счётчик сбрасывается со сменой часа.
type hourLimiter struct {
	max    int
	loc    *time.Location
	bucket time.Time
	count  int
}

func (l *hourLimiter) roll(now time.Time) {
	h := now.In(l.loc).Truncate(time.Hour)
	if !h.Equal(l.bucket) {
		l.bucket, l.count = h, 0
	}
}

func (l *hourLimiter) Allow(now time.Time) bool {
	if l.max <= 0 {
		return true
	}
	l.roll(now)
	return l.count < l.max
}

func (l *hourLimiter) Record(now time.Time) {
	l.roll(now)
	l.count++
}

// inCooldown: после входа на свече entryBar следующие cooldownBars свечей пропускаются.
func inCooldown(entryBar, bar time.Time, cooldownBars int, interval time.Duration) bool {
	if cooldownBars <= 0 || entryBar.IsZero() || interval <= 0 {
		return false
	}
	bars := int(bar.Sub(entryBar) / interval)
	return bars <= cooldownBars
}
