package progress

import "time"

// StreakWindowDays bounds how far back login days are considered.
const StreakWindowDays = 30

type day struct {
	year  int
	month time.Month
	day   int
}

func dayOf(t time.Time, loc *time.Location) day {
	y, m, d := t.In(loc).Date()
	return day{y, m, d}
}

// StreakWindowStart returns the first instant whose logins count toward the
// streak evaluated at now.
func StreakWindowStart(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, -(StreakWindowDays - 1))
}

// Streak counts consecutive calendar days (in loc) with at least one login,
// ending today, or yesterday when there is no login yet today. Only the last
// StreakWindowDays days are considered.
func Streak(logins []time.Time, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	start := StreakWindowStart(now, loc)
	days := make(map[day]struct{}, len(logins))
	for _, login := range logins {
		if login.Before(start) || login.After(now) {
			continue
		}
		days[dayOf(login, loc)] = struct{}{}
	}

	y, m, d := now.In(loc).Date()
	cursor := time.Date(y, m, d, 12, 0, 0, 0, loc)
	if _, ok := days[dayOf(cursor, loc)]; !ok {
		cursor = cursor.AddDate(0, 0, -1)
	}

	streak := 0
	for streak < StreakWindowDays {
		if _, ok := days[dayOf(cursor, loc)]; !ok {
			break
		}
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}
