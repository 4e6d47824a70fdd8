package reminder

import (
	"fmt"
	"sort"
	"time"

	"github.com/benvon/taskbot/internal/validation"
)

// TimeOfDay is a wall-clock time in the schedule's location
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) before(o TimeOfDay) bool {
	return t.Hour < o.Hour || (t.Hour == o.Hour && t.Minute < o.Minute)
}

// Schedule is a set of daily fire times
type Schedule struct {
	Times    []TimeOfDay
	Location *time.Location
}

// ParseSchedule builds a schedule from HH:MM strings. Times are sorted and
// duplicates dropped.
func ParseSchedule(times []string, loc *time.Location) (Schedule, error) {
	if len(times) == 0 {
		return Schedule{}, fmt.Errorf("schedule needs at least one time")
	}
	if loc == nil {
		loc = time.UTC
	}

	seen := make(map[TimeOfDay]bool, len(times))
	parsed := make([]TimeOfDay, 0, len(times))
	for _, raw := range times {
		if err := validation.ValidateTimeOfDay(raw); err != nil {
			return Schedule{}, err
		}
		clock, _ := time.Parse("15:04", raw)
		t := TimeOfDay{Hour: clock.Hour(), Minute: clock.Minute()}
		if seen[t] {
			continue
		}
		seen[t] = true
		parsed = append(parsed, t)
	}
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].before(parsed[j]) })

	return Schedule{Times: parsed, Location: loc}, nil
}

// Next returns the first fire instant strictly after the given time
func (s Schedule) Next(after time.Time) time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	local := after.In(loc)

	// Two days always contain a fire time; a third covers DST edge cases
	for day := 0; day < 3; day++ {
		for _, t := range s.Times {
			candidate := time.Date(local.Year(), local.Month(), local.Day()+day, t.Hour, t.Minute, 0, 0, loc)
			if candidate.After(after) {
				return candidate
			}
		}
	}
	return time.Time{}
}

// Strings renders the schedule's times as HH:MM
func (s Schedule) Strings() []string {
	out := make([]string, len(s.Times))
	for i, t := range s.Times {
		out[i] = t.String()
	}
	return out
}

// Interval returns the shortest gap between two consecutive fire times,
// wrapping past midnight. A reminder older than this has been superseded
// by the next round.
func (s Schedule) Interval() time.Duration {
	const day = 24 * time.Hour
	if len(s.Times) < 2 {
		return day
	}
	sinceMidnight := func(t TimeOfDay) time.Duration {
		return time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute
	}
	shortest := day
	for i := range s.Times {
		next := (i + 1) % len(s.Times)
		gap := sinceMidnight(s.Times[next]) - sinceMidnight(s.Times[i])
		if gap <= 0 {
			gap += day
		}
		if gap < shortest {
			shortest = gap
		}
	}
	return shortest
}
