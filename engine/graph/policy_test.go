package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
)

func testStore(sess *mockSession) *GraphStore {
	g := NewWithOpener(mockOpener{sess: sess}, nil)
	g.now = func() time.Time {
		return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	}
	return g
}

func testPolicy() domain.InsurancePolicy {
	exp := domain.MustDate("2024-06-01")
	return domain.InsurancePolicy{
		PolicyID:       "POL-12345-PROGRESSIV-20230601",
		CarrierUSDOT:   12345,
		ProviderName:   "Progressive",
		PolicyType:     "BMC-91",
		CoverageAmount: 750000,
		EffectiveDate:  domain.MustDate("2023-06-01"),
		ExpirationDate: &exp,
		FilingStatus:   domain.StatusActive,
	}
}

func TestCreatePolicyDuplicate(t *testing.T) {
	sess := &mockSession{results: []*mockResult{
		newMockResult(makeRecord([]string{"ip.policy_id"}, []any{"POL-12345-PROGRESSIV-20230601"})),
	}}
	g := testStore(sess)

	err := g.CreatePolicy(context.Background(), testPolicy())
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
	if len(sess.queries) != 1 {
		t.Fatalf("expected no CREATE after duplicate check, got %d queries", len(sess.queries))
	}
}

func TestCreatePolicyWritesNode(t *testing.T) {
	sess := &mockSession{}
	g := testStore(sess)

	if err := g.CreatePolicy(context.Background(), testPolicy()); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	if len(sess.queries) != 2 {
		t.Fatalf("want 2 queries (exists check + create), got %d", len(sess.queries))
	}
	if !strings.Contains(sess.queries[1], "CREATE (ip:InsurancePolicy") {
		t.Errorf("second query should create the policy node, got %q", sess.queries[1])
	}
	props := sess.params[1]["props"].(map[string]any)
	if props["effective_date"] != "2023-06-01" {
		t.Errorf("effective_date = %v", props["effective_date"])
	}
	if props["coverage_amount"] != 750000.0 {
		t.Errorf("coverage_amount = %v", props["coverage_amount"])
	}
}

func TestCreatePolicyRejectsInvalid(t *testing.T) {
	sess := &mockSession{}
	g := testStore(sess)

	p := testPolicy()
	p.EffectiveDate = domain.Date{}
	err := g.CreatePolicy(context.Background(), p)
	if !errors.Is(err, domain.ErrMissingEffectiveDate) {
		t.Fatalf("want ErrMissingEffectiveDate, got %v", err)
	}
	if len(sess.queries) != 0 {
		t.Fatal("invalid policy must not reach the session")
	}
}

func TestLinkCoveragePeriodMergesEdge(t *testing.T) {
	sess := &mockSession{results: []*mockResult{
		newMockResult(makeRecord([]string{"r.status"}, []any{"CANCELLED"})),
	}}
	g := testStore(sess)

	p := testPolicy()
	cancel := domain.MustDate("2023-11-15")
	p.CancellationDate = &cancel

	if err := g.LinkCoveragePeriod(context.Background(), 12345, p); err != nil {
		t.Fatalf("LinkCoveragePeriod: %v", err)
	}

	q := sess.queries[0]
	if !strings.Contains(q, "MERGE (c)-[r:HAD_INSURANCE]->(ip)") {
		t.Errorf("expected MERGE on HAD_INSURANCE, got %q", q)
	}
	if !strings.Contains(q, "ON CREATE SET") || !strings.Contains(q, "ON MATCH SET") {
		t.Error("edge upsert must set properties on both create and match")
	}

	params := sess.params[0]
	if params["to_date"] != "2023-11-15" {
		t.Errorf("to_date should come from the cancellation date, got %v", params["to_date"])
	}
	if params["status"] != "CANCELLED" {
		t.Errorf("status = %v", params["status"])
	}
	// 2023-06-01 to 2023-11-15
	if params["duration_days"] != 167 {
		t.Errorf("duration_days = %v", params["duration_days"])
	}
}

func TestLinkCoveragePeriodIdempotent(t *testing.T) {
	sess := &mockSession{results: []*mockResult{
		newMockResult(makeRecord([]string{"r.status"}, []any{"ACTIVE"})),
		newMockResult(makeRecord([]string{"r.status"}, []any{"ACTIVE"})),
		newMockResult(makeRecord([]string{"r.status"}, []any{"ACTIVE"})),
	}}
	g := testStore(sess)
	p := testPolicy()
	p.ExpirationDate = nil

	for i := 0; i < 3; i++ {
		if err := g.LinkCoveragePeriod(context.Background(), 12345, p); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	for i, q := range sess.queries {
		if !strings.Contains(q, "MERGE (c)-[r:HAD_INSURANCE]->(ip)") {
			t.Fatalf("call %d did not MERGE", i)
		}
	}
	for i, p := range sess.params {
		if p["to_date"] != nil {
			t.Errorf("call %d: open-ended policy must link a nil to_date", i)
		}
		if p["duration_days"] != domain.OngoingSentinel {
			t.Errorf("call %d: duration_days = %v", i, p["duration_days"])
		}
	}
}

func TestLinkSuccessionCarriesGap(t *testing.T) {
	sess := &mockSession{results: []*mockResult{
		newMockResult(makeRecord([]string{"r.gap_days"}, []any{int64(44)})),
	}}
	g := testStore(sess)

	if err := g.LinkSuccession(context.Background(), "POL-B", "POL-A", 44); err != nil {
		t.Fatalf("LinkSuccession: %v", err)
	}
	q := sess.queries[0]
	if !strings.Contains(q, "MERGE (next)-[r:PRECEDED_BY]->(prev)") {
		t.Errorf("expected PRECEDED_BY merge, got %q", q)
	}
	if sess.params[0]["gap_days"] != 44 {
		t.Errorf("gap_days = %v", sess.params[0]["gap_days"])
	}
	if sess.params[0]["later"] != "POL-B" || sess.params[0]["earlier"] != "POL-A" {
		t.Error("succession edge must run from the later policy back to the earlier one")
	}
}

func TestListCarrierPoliciesStatusFilter(t *testing.T) {
	sess := &mockSession{}
	g := testStore(sess)

	if _, err := g.ListCarrierPolicies(context.Background(), 12345, ListPolicyOpts{ActiveOnly: true}); err != nil {
		t.Fatalf("ListCarrierPolicies: %v", err)
	}
	if !strings.Contains(sess.queries[0], "h.status = 'ACTIVE'") {
		t.Errorf("active-only listing must filter on edge status, got %q", sess.queries[0])
	}
}

func TestCarrierTimelineOrdersPoliciesFirst(t *testing.T) {
	policyProps := map[string]any{
		"policy_id":       "POL-1",
		"provider_name":   "Progressive",
		"coverage_amount": 750000.0,
		"effective_date":  "2023-06-01",
		"filing_status":   "ACTIVE",
	}
	eventProps := map[string]any{
		"event_id":   "EVT-12345-20230601-RENEWAL",
		"event_type": "RENEWAL",
		"event_date": "2023-06-01",
	}
	sess := &mockSession{results: []*mockResult{
		newMockResult(makeRecord([]string{"ip", "status"}, []any{nodeVal(policyProps), "ACTIVE"})),
		newMockResult(makeNodeRecord("ie", eventProps)),
	}}
	g := testStore(sess)

	entries, err := g.CarrierTimeline(context.Background(), 12345)
	if err != nil {
		t.Fatalf("CarrierTimeline: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != "policy" || entries[1].Kind != "event" {
		t.Errorf("same-day policy must sort before event, got %s then %s", entries[0].Kind, entries[1].Kind)
	}
}
