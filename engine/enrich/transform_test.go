package enrich

import (
	"errors"
	"testing"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/searchcarriers"
)

func TestPolicyType(t *testing.T) {
	cases := []struct {
		code string
		want string
	}{
		{"34", "BMC-34"},
		{"84", "BMC-84"},
		{"91", "BMC-91"},
		{"91X", "BMC-91X"},
		{"32", "BMC-32"},
		{"77", "BMC-77"},
		{"", "BMC-91"},
		{"  ", "BMC-91"},
	}
	for _, tc := range cases {
		if got := PolicyType(tc.code); got != tc.want {
			t.Errorf("PolicyType(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestPolicyIDForSquashesProvider(t *testing.T) {
	got := PolicyIDFor(12345, "Progressive Casualty Ins. Co.", domain.MustDate("2023-06-01"))
	if got != "POL-12345-PROGRESSIV-20230601" {
		t.Errorf("id = %q", got)
	}
	// same inputs, same id
	again := PolicyIDFor(12345, "Progressive Casualty Ins. Co.", domain.MustDate("2023-06-01"))
	if got != again {
		t.Error("policy ids must be deterministic")
	}
}

func TestEventIDFor(t *testing.T) {
	got := EventIDFor(12345, domain.MustDate("2023-07-15"), domain.EventProviderChange)
	if got != "EVT-12345-20230715-PROVIDER_CHANGE" {
		t.Errorf("id = %q", got)
	}
}

func TestMapRecord(t *testing.T) {
	rec := searchcarriers.InsuranceRecord{
		ID:             "rec-1",
		NameCompany:    "Progressive",
		MaxCovAmount:   "750",
		PolicyNo:       "PX-100",
		InsFormCode:    "91",
		EffectiveDate:  "2023-06-01 00:00:00",
		ExpirationDate: "2024-06-01 00:00:00",
	}
	p, err := MapRecord(12345, rec)
	if err != nil {
		t.Fatalf("MapRecord: %v", err)
	}
	if p.CoverageAmount != 750000 {
		t.Errorf("coverage = %v, amounts arrive in thousands", p.CoverageAmount)
	}
	if p.PolicyType != "BMC-91" {
		t.Errorf("policy_type = %q", p.PolicyType)
	}
	if p.EffectiveDate.String() != "2023-06-01" {
		t.Errorf("effective = %s", p.EffectiveDate)
	}
	if p.ExpirationDate == nil || p.ExpirationDate.String() != "2024-06-01" {
		t.Errorf("expiration = %v", p.ExpirationDate)
	}
	if p.PolicyID != "POL-12345-PROGRESSIV-20230601" {
		t.Errorf("policy_id = %q", p.PolicyID)
	}
}

func TestMapRecordBlankProvider(t *testing.T) {
	rec := searchcarriers.InsuranceRecord{
		MaxCovAmount:  "750",
		EffectiveDate: "2023-06-01 00:00:00",
	}
	p, err := MapRecord(12345, rec)
	if err != nil {
		t.Fatalf("MapRecord: %v", err)
	}
	if p.ProviderName != "Unknown" {
		t.Errorf("provider = %q", p.ProviderName)
	}
}

func TestMapRecordBadDate(t *testing.T) {
	rec := searchcarriers.InsuranceRecord{
		NameCompany:   "Progressive",
		EffectiveDate: "not a date",
	}
	_, err := MapRecord(12345, rec)
	var dq *domain.DataQualityError
	if !errors.As(err, &dq) {
		t.Fatalf("want DataQualityError, got %v", err)
	}
	if dq.Field != "effective_date" {
		t.Errorf("field = %q", dq.Field)
	}
}

func mapped(t *testing.T, usdot int64, recs ...searchcarriers.InsuranceRecord) []domain.InsurancePolicy {
	t.Helper()
	var out []domain.InsurancePolicy
	for _, rec := range recs {
		p, err := MapRecord(usdot, rec)
		if err != nil {
			t.Fatalf("MapRecord: %v", err)
		}
		out = append(out, p)
	}
	return out
}

func TestDeriveEventsGapAndProviderChange(t *testing.T) {
	policies := mapped(t, 12345,
		searchcarriers.InsuranceRecord{
			NameCompany:      "Progressive",
			MaxCovAmount:     "1000",
			EffectiveDate:    "2023-01-01 00:00:00",
			CancellationDate: "2023-06-01 00:00:00",
		},
		searchcarriers.InsuranceRecord{
			NameCompany:   "Geico",
			MaxCovAmount:  "750",
			EffectiveDate: "2023-07-15 00:00:00",
		},
	)

	events := DeriveEvents(12345, policies)
	if len(events) != 2 {
		t.Fatalf("want 2 events (cancellation + transition), got %d", len(events))
	}

	var transition, cancellation *domain.InsuranceEvent
	for i := range events {
		switch events[i].EventType {
		case domain.EventProviderChange:
			transition = &events[i]
		case domain.EventCancellation:
			cancellation = &events[i]
		}
	}
	if transition == nil || cancellation == nil {
		t.Fatalf("events = %+v", events)
	}

	if transition.DaysWithoutCoverage == nil || *transition.DaysWithoutCoverage != 44 {
		t.Errorf("gap = %v, want 44", transition.DaysWithoutCoverage)
	}
	if !transition.ComplianceViolation {
		t.Error("a 44 day gap is a compliance violation")
	}
	if transition.CoverageChange == nil || *transition.CoverageChange != -250000 {
		t.Errorf("coverage change = %v", transition.CoverageChange)
	}
	wantTags := map[string]bool{
		domain.PatternExtendedGap:       true,
		domain.PatternProviderShopping:  true,
		domain.PatternCoverageReduction: true,
	}
	for _, tag := range transition.FraudIndicators {
		if !wantTags[tag] {
			t.Errorf("unexpected tag %q", tag)
		}
		delete(wantTags, tag)
	}
	for tag := range wantTags {
		t.Errorf("missing tag %q", tag)
	}
	if !transition.IsSuspicious {
		t.Error("tagged event must be suspicious")
	}

	if cancellation.EventDate.String() != "2023-06-01" {
		t.Errorf("cancellation date = %s", cancellation.EventDate)
	}
}

func TestDeriveEventsRenewalSameProvider(t *testing.T) {
	policies := mapped(t, 12345,
		searchcarriers.InsuranceRecord{
			NameCompany:    "Progressive",
			MaxCovAmount:   "750",
			EffectiveDate:  "2022-06-01 00:00:00",
			ExpirationDate: "2023-06-01 00:00:00",
		},
		searchcarriers.InsuranceRecord{
			NameCompany:   "Progressive",
			MaxCovAmount:  "750",
			EffectiveDate: "2023-06-01 00:00:00",
		},
	)

	events := DeriveEvents(12345, policies)
	if len(events) != 1 {
		t.Fatalf("want 1 event, got %d", len(events))
	}
	e := events[0]
	if e.EventType != domain.EventRenewal {
		t.Errorf("type = %s", e.EventType)
	}
	if e.DaysWithoutCoverage != nil {
		t.Errorf("back-to-back renewal has no gap, got %v", *e.DaysWithoutCoverage)
	}
	if e.IsSuspicious {
		t.Error("clean renewal must not be suspicious")
	}
}

func TestDeriveEventsSinglePolicy(t *testing.T) {
	policies := mapped(t, 12345, searchcarriers.InsuranceRecord{
		NameCompany:   "Progressive",
		MaxCovAmount:  "750",
		EffectiveDate: "2023-06-01 00:00:00",
	})
	if events := DeriveEvents(12345, policies); len(events) != 0 {
		t.Fatalf("first policy is the baseline, got %d events", len(events))
	}
}

func TestDeriveEventsDeterministic(t *testing.T) {
	policies := mapped(t, 12345,
		searchcarriers.InsuranceRecord{
			NameCompany:      "Progressive",
			MaxCovAmount:     "750",
			EffectiveDate:    "2023-01-01 00:00:00",
			CancellationDate: "2023-06-01 00:00:00",
		},
		searchcarriers.InsuranceRecord{
			NameCompany:   "Geico",
			MaxCovAmount:  "750",
			EffectiveDate: "2023-07-15 00:00:00",
		},
	)
	a := DeriveEvents(12345, policies)
	b := DeriveEvents(12345, policies)
	if len(a) != len(b) {
		t.Fatal("derivation must be deterministic")
	}
	for i := range a {
		if a[i].EventID != b[i].EventID {
			t.Errorf("event %d: %q vs %q", i, a[i].EventID, b[i].EventID)
		}
	}
}
