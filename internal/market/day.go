package market

import "time"

const secondsPerDay = 86400

// StartDay returns the configured calendar offset: the epoch day that slot
// index 0 corresponds to.
func (m *Market) StartDay() int64 {
	return m.startDay
}

// CurrentDay maps a wall-clock instant to a slot index. The second return
// value is false when the instant falls outside the arena.
func (m *Market) CurrentDay(now time.Time) (int, bool) {
	day := now.Unix()/secondsPerDay - m.startDay
	if day < 0 || day >= int64(len(m.slots)) {
		return 0, false
	}
	return int(day), true
}
