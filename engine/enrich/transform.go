package enrich

import (
	"fmt"
	"sort"
	"strings"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/searchcarriers"
)

// formCodes maps the provider's numeric filing form codes to policy types.
var formCodes = map[string]string{
	"34":  "BMC-34",
	"84":  "BMC-84",
	"91":  "BMC-91",
	"91X": "BMC-91X",
	"32":  "BMC-32",
}

// PolicyType resolves a provider form code to a filing type. Unknown codes
// keep the BMC prefix; a missing code defaults to BMC-91.
func PolicyType(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "BMC-91"
	}
	if t, ok := formCodes[code]; ok {
		return t
	}
	return "BMC-" + code
}

// squashProvider normalizes a provider name for use inside ids: spaces,
// commas, and dots removed, uppercased, first ten characters.
func squashProvider(name string) string {
	s := strings.ToUpper(strings.NewReplacer(" ", "", ",", "", ".", "").Replace(name))
	if len(s) > 10 {
		s = s[:10]
	}
	return s
}

// PolicyIDFor builds the deterministic policy id. Re-enriching the same
// record always lands on the same id, keeping upserts convergent.
func PolicyIDFor(usdot int64, provider string, effective domain.Date) string {
	return fmt.Sprintf("POL-%d-%s-%s", usdot, squashProvider(provider), effective.Time().Format("20060102"))
}

// EventIDFor builds the deterministic event id.
func EventIDFor(usdot int64, date domain.Date, eventType domain.EventType) string {
	return fmt.Sprintf("EVT-%d-%s-%s", usdot, date.Time().Format("20060102"), eventType)
}

// MapRecord converts one raw provider record into a policy. An unparseable
// effective date is a data-quality failure; the record is skipped upstream.
func MapRecord(usdot int64, rec searchcarriers.InsuranceRecord) (domain.InsurancePolicy, error) {
	effective, ok := searchcarriers.ParseRecordDate(rec.EffectiveDate)
	if !ok {
		return domain.InsurancePolicy{}, domain.NewDataQualityError("effective_date", rec.EffectiveDate, "unparseable date")
	}

	provider := strings.TrimSpace(rec.NameCompany)
	if provider == "" {
		provider = "Unknown"
	}

	p := domain.InsurancePolicy{
		CarrierUSDOT:   usdot,
		ProviderName:   provider,
		ProviderID:     domain.ProviderIDFor(provider),
		PolicyType:     PolicyType(rec.InsFormCode),
		PolicyNumber:   strings.TrimSpace(rec.PolicyNo),
		CoverageAmount: searchcarriers.CoverageAmount(rec.MaxCovAmount),
		EffectiveDate:  domain.DateOf(effective),
		DataSource:     "searchcarriers",
		SourceRecordID: rec.ID,
	}
	p.PolicyID = PolicyIDFor(usdot, provider, p.EffectiveDate)

	if exp, ok := searchcarriers.ParseRecordDate(rec.ExpirationDate); ok {
		d := domain.DateOf(exp)
		p.ExpirationDate = &d
	}
	if cancel, ok := searchcarriers.ParseRecordDate(rec.CancellationDate); ok {
		d := domain.DateOf(cancel)
		p.CancellationDate = &d
		p.CancellationReason = strings.TrimSpace(rec.CancellationReason)
	}

	p.FilingStatus = domain.PolicyStatus(p, domain.Today())
	p.RequiredMinimum = domain.DefaultFederalMinimum
	p.MeetsFederalMin = p.CoverageAmount >= p.RequiredMinimum
	p.IsCompliant = p.MeetsFederalMin && p.FilingStatus == domain.StatusActive
	return p, nil
}

// DeriveEvents rebuilds the carrier's event history from its time-sorted
// policies. The first policy is the baseline and produces no transition
// event; every later policy yields a RENEWAL or PROVIDER_CHANGE carrying
// the coverage delta and any coverage gap, and every cancelled policy
// additionally yields a CANCELLATION.
func DeriveEvents(usdot int64, policies []domain.InsurancePolicy) []domain.InsuranceEvent {
	sorted := make([]domain.InsurancePolicy, len(policies))
	copy(sorted, policies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].EffectiveDate.Before(sorted[j].EffectiveDate)
	})

	var events []domain.InsuranceEvent
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]

		eventType := domain.EventRenewal
		if !strings.EqualFold(prev.ProviderName, cur.ProviderName) {
			eventType = domain.EventProviderChange
		}

		prevCov, curCov := prev.CoverageAmount, cur.CoverageAmount
		change := curCov - prevCov
		e := domain.InsuranceEvent{
			EventID:          EventIDFor(usdot, cur.EffectiveDate, eventType),
			CarrierUSDOT:     usdot,
			EventType:        eventType,
			EventDate:        cur.EffectiveDate,
			PreviousProvider: prev.ProviderName,
			NewProvider:      cur.ProviderName,
			PreviousCoverage: &prevCov,
			NewCoverage:      &curCov,
			CoverageChange:   &change,
			PreviousPolicyID: prev.PolicyID,
			NewPolicyID:      cur.PolicyID,
			DataSource:       "searchcarriers",
		}
		if gap := domain.GapDays(prev, cur); gap != nil && *gap > 0 {
			e.DaysWithoutCoverage = gap
			if *gap > 30 {
				e.ComplianceViolation = true
				e.ViolationReason = fmt.Sprintf("%d days without coverage", *gap)
			}
		}
		tagEvent(&e)
		events = append(events, e)
	}

	for _, p := range sorted {
		if p.CancellationDate == nil {
			continue
		}
		e := domain.InsuranceEvent{
			EventID:          EventIDFor(usdot, *p.CancellationDate, domain.EventCancellation),
			CarrierUSDOT:     usdot,
			EventType:        domain.EventCancellation,
			EventDate:        *p.CancellationDate,
			PreviousProvider: p.ProviderName,
			PreviousPolicyID: p.PolicyID,
			Reason:           p.CancellationReason,
			DataSource:       "searchcarriers",
		}
		cov := p.CoverageAmount
		e.PreviousCoverage = &cov
		tagEvent(&e)
		events = append(events, e)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].EventDate.Before(events[j].EventDate)
	})
	return events
}

func tagEvent(e *domain.InsuranceEvent) {
	e.FraudIndicators = domain.FraudPatterns(*e)
	e.IsSuspicious = len(e.FraudIndicators) > 0
}
