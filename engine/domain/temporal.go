package domain

import "sort"

// EndDate returns when a policy's coverage ended: cancellation date if set,
// else expiration date, else nil for open-ended coverage.
func EndDate(p InsurancePolicy) *Date {
	if p.CancellationDate != nil {
		return p.CancellationDate
	}
	if p.ExpirationDate != nil {
		return p.ExpirationDate
	}
	return nil
}

// PolicyStatus derives the policy state as of today. CANCELLED takes
// precedence over date-based EXPIRED whenever a cancellation date is set.
func PolicyStatus(p InsurancePolicy, today Date) FilingStatus {
	if p.CancellationDate != nil {
		return StatusCancelled
	}
	if p.ExpirationDate != nil && p.ExpirationDate.Before(today) {
		return StatusExpired
	}
	return StatusActive
}

// GapDays returns the days between the end of earlier and the start of
// later, clamped to zero. An open-ended earlier policy cannot leave a gap
// after it, so nil is returned.
func GapDays(earlier, later InsurancePolicy) *int {
	end := EndDate(earlier)
	if end == nil {
		return nil
	}
	gap := end.DaysUntil(later.EffectiveDate)
	if gap < 0 {
		gap = 0
	}
	return &gap
}

// OngoingSentinel marks an open-ended coverage period's duration.
const OngoingSentinel = -1

// DurationDays returns the days between from and to, or OngoingSentinel
// when to is nil.
func DurationDays(from Date, to *Date) int {
	if to == nil {
		return OngoingSentinel
	}
	return from.DaysUntil(*to)
}

// Period is one coverage interval. A nil To means still open.
type Period struct {
	From Date  `json:"from"`
	To   *Date `json:"to,omitempty"`
}

// Overlaps reports whether a starts before b and is still in force when b
// begins. Callers wanting unordered-pair semantics should also test the
// reverse orientation.
func Overlaps(a, b Period) bool {
	if !a.From.Before(b.From) {
		return false
	}
	return a.To == nil || a.To.After(b.From)
}

// OverlapDays returns the length of the overlap between a and b in days,
// with open-ended periods clamped to today. Zero when they do not overlap.
func OverlapDays(a, b Period, today Date) int {
	if !Overlaps(a, b) {
		return 0
	}
	aEnd := today
	if a.To != nil {
		aEnd = *a.To
	}
	bEnd := today
	if b.To != nil {
		bEnd = *b.To
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	days := b.From.DaysUntil(end)
	if days < 0 {
		return 0
	}
	return days
}

// MergePeriods sorts periods by start date and coalesces overlapping or
// touching intervals, so covered days are never double counted.
func MergePeriods(periods []Period) []Period {
	if len(periods) == 0 {
		return nil
	}
	sorted := make([]Period, len(periods))
	copy(sorted, periods)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].From.Before(sorted[j].From)
	})

	merged := []Period{sorted[0]}
	for _, p := range sorted[1:] {
		last := &merged[len(merged)-1]
		if last.To == nil {
			// Open-ended interval absorbs everything after it.
			continue
		}
		if !p.From.After(*last.To) {
			// Overlapping or touching: extend.
			if p.To == nil {
				last.To = nil
			} else if p.To.After(*last.To) {
				end := *p.To
				last.To = &end
			}
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

// clampToWindow trims a period to [start, end], returning false when the
// period falls entirely outside the window. An open period occupies the
// whole remainder of the window.
func clampToWindow(p Period, start, end Date) (Period, bool) {
	from := p.From
	if from.Before(start) {
		from = start
	}
	to := end
	if p.To != nil && p.To.Before(end) {
		to = *p.To
	}
	if to.Before(from) {
		return Period{}, false
	}
	return Period{From: from, To: &to}, true
}

// CoveredDays returns the number of days in [windowStart, windowEnd]
// covered by at least one period, after merging overlaps.
func CoveredDays(periods []Period, windowStart, windowEnd Date) int {
	if windowEnd.Before(windowStart) {
		return 0
	}
	var clamped []Period
	for _, p := range MergePeriods(periods) {
		if c, ok := clampToWindow(p, windowStart, windowEnd); ok {
			clamped = append(clamped, c)
		}
	}
	covered := 0
	for _, c := range MergePeriods(clamped) {
		covered += c.From.DaysUntil(*c.To)
	}
	return covered
}

// UncoveredDays returns the days in [windowStart, windowEnd] not covered by
// any period. UncoveredDays + CoveredDays always equals the window length.
func UncoveredDays(periods []Period, windowStart, windowEnd Date) int {
	if windowEnd.Before(windowStart) {
		return 0
	}
	return windowStart.DaysUntil(windowEnd) - CoveredDays(periods, windowStart, windowEnd)
}
