package allocations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func d(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func alloc(id string, pct int, start, end string) Allocation {
	return Allocation{ID: id, UserID: "u1", Percentage: pct, StartDate: d(start), EndDate: d(end), Status: StatusActive}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, ValidatePercentage(0))
	assert.NoError(t, ValidatePercentage(100))
	assert.ErrorIs(t, ValidatePercentage(-1), ErrInvalidPercentage)
	assert.ErrorIs(t, ValidatePercentage(101), ErrInvalidPercentage)

	assert.NoError(t, ValidateDates(d("2026-01-01"), d("2026-01-01")))
	assert.ErrorIs(t, ValidateDates(d("2026-01-02"), d("2026-01-01")), ErrInvalidDateRange)
	assert.ErrorIs(t, ValidateDates(time.Time{}, d("2026-01-01")), ErrInvalidDateRange)
}

func TestCheckCapacity(t *testing.T) {
	existing := []Allocation{
		alloc("a", 50, "2026-01-01", "2026-01-31"),
		alloc("b", 30, "2026-01-20", "2026-02-28"),
		{ID: "c", UserID: "u1", Percentage: 90, StartDate: d("2026-01-01"), EndDate: d("2026-12-31"), Status: StatusEnded},
		{ID: "d", UserID: "u2", Percentage: 100, StartDate: d("2026-01-01"), EndDate: d("2026-12-31"), Status: StatusActive},
	}

	assert.NoError(t, CheckCapacity(existing, alloc("", 50, "2026-01-01", "2026-01-19")))
	assert.ErrorIs(t, CheckCapacity(existing, alloc("", 30, "2026-01-15", "2026-01-25")), ErrOverCapacity)
	assert.NoError(t, CheckCapacity(existing, alloc("", 20, "2026-01-15", "2026-01-25")))
	assert.NoError(t, CheckCapacity(existing, alloc("", 70, "2026-02-01", "2026-02-10")))

	// updating "a" to 70 leaves room next to "b" only until b starts
	assert.ErrorIs(t, CheckCapacity(existing, alloc("a", 71, "2026-01-01", "2026-01-31")), ErrOverCapacity)
	assert.NoError(t, CheckCapacity(existing, alloc("a", 70, "2026-01-01", "2026-01-31")))
}

func TestSummarize(t *testing.T) {
	allocs := []Allocation{
		alloc("a", 50, "2026-03-01", "2026-03-02"),
		alloc("b", 25, "2026-03-02", "2026-03-04"),
	}
	u := Summarize("u1", allocs, d("2026-03-01"), d("2026-03-04"))
	assert.Len(t, u.Days, 4)
	assert.Equal(t, 75, u.Peak)
	assert.Equal(t, []int{50, 75, 25, 25}, []int{u.Days[0].Percentage, u.Days[1].Percentage, u.Days[2].Percentage, u.Days[3].Percentage})
	assert.InDelta(t, 43.8, u.Average, 0.01)

	empty := Summarize("u1", allocs, d("2026-03-05"), d("2026-03-01"))
	assert.Zero(t, empty.Peak)
	assert.Empty(t, empty.Days)
}

func TestEndDateFor(t *testing.T) {
	today := time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, d("2026-05-10"), EndDateFor(d("2026-06-30"), today))
	assert.Equal(t, d("2026-05-01"), EndDateFor(d("2026-05-01"), today))
}
