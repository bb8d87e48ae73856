package allocations

import (
	"math"
	"time"
)

func ValidatePercentage(percentage int) error {
	if percentage < 0 || percentage > MaxCapacity {
		return ErrInvalidPercentage
	}
	return nil
}

func ValidateDates(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return ErrInvalidDateRange
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !dateOnly(aEnd).Before(dateOnly(bStart)) && !dateOnly(bEnd).Before(dateOnly(aStart))
}

// PeakLoad returns the highest summed percentage on any day in [from, to]
// across active allocations.
func PeakLoad(allocs []Allocation, from, to time.Time) int {
	peak := 0
	for _, day := range DailyLoad(allocs, from, to) {
		if day.Percentage > peak {
			peak = day.Percentage
		}
	}
	return peak
}

// DailyLoad sums the active allocations for each day in [from, to].
func DailyLoad(allocs []Allocation, from, to time.Time) []DayLoad {
	from, to = dateOnly(from), dateOnly(to)
	if to.Before(from) {
		return nil
	}
	var out []DayLoad
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		total := 0
		for _, a := range allocs {
			if a.Status != StatusActive {
				continue
			}
			if overlaps(a.StartDate, a.EndDate, day, day) {
				total += a.Percentage
			}
		}
		out = append(out, DayLoad{Date: day, Percentage: total})
	}
	return out
}

// CheckCapacity verifies candidate fits next to the user's other allocations.
// An allocation with the candidate's id is ignored so updates can be checked.
func CheckCapacity(existing []Allocation, candidate Allocation) error {
	others := make([]Allocation, 0, len(existing))
	for _, a := range existing {
		if candidate.ID != "" && a.ID == candidate.ID {
			continue
		}
		if a.UserID != candidate.UserID {
			continue
		}
		if overlaps(a.StartDate, a.EndDate, candidate.StartDate, candidate.EndDate) {
			others = append(others, a)
		}
	}
	if PeakLoad(others, candidate.StartDate, candidate.EndDate)+candidate.Percentage > MaxCapacity {
		return ErrOverCapacity
	}
	return nil
}

// Summarize computes the per-day load, the peak and the average for a range.
func Summarize(userID string, allocs []Allocation, from, to time.Time) Utilization {
	days := DailyLoad(allocs, from, to)
	out := Utilization{UserID: userID, From: dateOnly(from), To: dateOnly(to), Days: days}
	if len(days) == 0 {
		return out
	}
	sum := 0
	for _, d := range days {
		sum += d.Percentage
		if d.Percentage > out.Peak {
			out.Peak = d.Percentage
		}
	}
	out.Average = math.Round(float64(sum)/float64(len(days))*10) / 10
	return out
}

// EndDateFor clamps an allocation's end date to today when ending it early.
func EndDateFor(current, today time.Time) time.Time {
	today = dateOnly(today)
	if dateOnly(current).After(today) {
		return today
	}
	return current
}
