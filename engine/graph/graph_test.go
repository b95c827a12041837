package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
)

func testCarrier() domain.Carrier {
	return domain.Carrier{
		USDOT:          12345,
		Name:           "ACME TRUCKING LLC",
		PrimaryOfficer: "JOHN SMITH",
		Trucks:         14,
		Violations:     3,
		DriverOOSRate:  0.08,
	}
}

func TestCreateCarrierDuplicate(t *testing.T) {
	sess := &mockSession{results: []*mockResult{
		newMockResult(makeRecord([]string{"c.usdot"}, []any{int64(12345)})),
	}}
	g := testStore(sess)

	err := g.CreateCarrier(context.Background(), testCarrier())
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
}

func TestCreateCarrierWritesProps(t *testing.T) {
	sess := &mockSession{}
	g := testStore(sess)

	if err := g.CreateCarrier(context.Background(), testCarrier()); err != nil {
		t.Fatalf("CreateCarrier: %v", err)
	}
	props := sess.params[1]["props"].(map[string]any)
	if props["usdot"] != int64(12345) {
		t.Errorf("usdot = %v", props["usdot"])
	}
	if props["primary_officer"] != "JOHN SMITH" {
		t.Errorf("primary_officer = %v", props["primary_officer"])
	}
	if _, ok := props["insurance_provider"]; ok {
		t.Error("empty display fields should be omitted from node props")
	}
}

func TestGetCarrierNotFound(t *testing.T) {
	sess := &mockSession{}
	g := testStore(sess)

	_, err := g.GetCarrier(context.Background(), 999)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if !sess.closed {
		t.Error("session must be closed")
	}
}

func TestGetCarrierRoundTrip(t *testing.T) {
	sess := &mockSession{results: []*mockResult{
		newMockResult(makeNodeRecord("c", map[string]any{
			"usdot":           int64(12345),
			"carrier_name":    "ACME TRUCKING LLC",
			"primary_officer": "JOHN SMITH",
			"trucks":          int64(14),
			"driver_oos_rate": 0.08,
			"mcs150_date":     "2023-01-15",
		})),
	}}
	g := testStore(sess)

	c, err := g.GetCarrier(context.Background(), 12345)
	if err != nil {
		t.Fatalf("GetCarrier: %v", err)
	}
	if c.Name != "ACME TRUCKING LLC" || c.Trucks != 14 {
		t.Errorf("carrier = %+v", c)
	}
	if c.MCS150Date.String() != "2023-01-15" {
		t.Errorf("mcs150_date = %s", c.MCS150Date)
	}
}

func TestUpdateCarrierPatchesOnlySetFields(t *testing.T) {
	sess := &mockSession{results: []*mockResult{
		newMockResult(makeRecord([]string{"c.usdot"}, []any{int64(12345)})),
	}}
	g := testStore(sess)

	name := "ACME TRUCKING INC"
	trucks := 20
	err := g.UpdateCarrier(context.Background(), 12345, domain.CarrierPatch{
		Name:   &name,
		Trucks: &trucks,
	})
	if err != nil {
		t.Fatalf("UpdateCarrier: %v", err)
	}
	props := sess.params[0]["props"].(map[string]any)
	if len(props) != 2 {
		t.Fatalf("want exactly 2 patched props, got %v", props)
	}
	if props["carrier_name"] != "ACME TRUCKING INC" || props["trucks"] != 20 {
		t.Errorf("props = %v", props)
	}
}

func TestUpdateCarrierEmptyPatchNoWrite(t *testing.T) {
	sess := &mockSession{}
	g := testStore(sess)

	if err := g.UpdateCarrier(context.Background(), 12345, domain.CarrierPatch{}); err != nil {
		t.Fatalf("UpdateCarrier: %v", err)
	}
	if len(sess.queries) != 0 {
		t.Error("empty patch must not touch the graph")
	}
}

func TestDeleteCarrierDetaches(t *testing.T) {
	sess := &mockSession{results: []*mockResult{
		newMockResult(makeRecord([]string{"found"}, []any{int64(12345)})),
	}}
	g := testStore(sess)

	if err := g.DeleteCarrier(context.Background(), 12345); err != nil {
		t.Fatalf("DeleteCarrier: %v", err)
	}
	if !strings.Contains(sess.queries[0], "DETACH DELETE") {
		t.Error("carrier delete must detach relationships")
	}
}

func TestBulkCreateCarriersMerges(t *testing.T) {
	sess := &mockSession{results: []*mockResult{
		newMockResult(makeRecord([]string{"n"}, []any{int64(2)})),
	}}
	g := testStore(sess)

	second := testCarrier()
	second.USDOT = 67890
	n, err := g.BulkCreateCarriers(context.Background(), []domain.Carrier{testCarrier(), second})
	if err != nil {
		t.Fatalf("BulkCreateCarriers: %v", err)
	}
	if n != 2 {
		t.Errorf("created = %d", n)
	}
	if !strings.Contains(sess.queries[0], "UNWIND $rows") || !strings.Contains(sess.queries[0], "MERGE (c:Carrier {usdot: row.usdot})") {
		t.Errorf("bulk create should UNWIND and MERGE, got %q", sess.queries[0])
	}
}

func TestCreateEventRequiresCarrier(t *testing.T) {
	sess := &mockSession{}
	g := testStore(sess)

	e := domain.InsuranceEvent{
		EventID:      "EVT-12345-20230715-RENEWAL",
		CarrierUSDOT: 12345,
		EventType:    domain.EventRenewal,
		EventDate:    domain.MustDate("2023-07-15"),
	}
	err := g.CreateEvent(context.Background(), e)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing carrier should surface ErrNotFound, got %v", err)
	}
}

func TestCreateEventMergesOnEventID(t *testing.T) {
	sess := &mockSession{results: []*mockResult{
		newMockResult(makeRecord([]string{"ie.event_id"}, []any{"EVT-12345-20230715-RENEWAL"})),
	}}
	g := testStore(sess)

	e := domain.InsuranceEvent{
		EventID:      "EVT-12345-20230715-RENEWAL",
		CarrierUSDOT: 12345,
		EventType:    domain.EventRenewal,
		EventDate:    domain.MustDate("2023-07-15"),
	}
	if err := g.CreateEvent(context.Background(), e); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if !strings.Contains(sess.queries[0], "MERGE (ie:InsuranceEvent {event_id: $event_id})") {
		t.Errorf("event create must merge on event_id, got %q", sess.queries[0])
	}
}

func TestGetOrCreateProviderDefaultsUnknown(t *testing.T) {
	sess := &mockSession{results: []*mockResult{
		newMockResult(makeNodeRecord("p", map[string]any{
			"provider_id": "PROV-UNKNOWN",
			"name":        "Unknown",
		})),
	}}
	g := testStore(sess)

	p, err := g.GetOrCreateProvider(context.Background(), "   ")
	if err != nil {
		t.Fatalf("GetOrCreateProvider: %v", err)
	}
	if p.Name != "Unknown" {
		t.Errorf("name = %q", p.Name)
	}
	if sess.params[0]["name"] != "Unknown" {
		t.Errorf("blank provider names must collapse to Unknown, got %v", sess.params[0]["name"])
	}
}

func TestCarrierOfficersAndManagedCarriers(t *testing.T) {
	sess := &mockSession{results: []*mockResult{
		newMockResult(
			makeNodeRecord("p", map[string]any{"person_id": "PERS-JANESMITH", "full_name": "Jane Smith"}),
		),
		newMockResult(
			makeNodeRecord("c", map[string]any{"usdot": int64(12345), "carrier_name": "Acme Trucking"}),
			makeNodeRecord("c", map[string]any{"usdot": int64(67890), "carrier_name": "Acme Logistics"}),
		),
	}}
	g := testStore(sess)

	officers, err := g.CarrierOfficers(context.Background(), 12345)
	if err != nil {
		t.Fatalf("CarrierOfficers: %v", err)
	}
	if len(officers) != 1 || officers[0].FullName != "Jane Smith" {
		t.Errorf("officers = %+v", officers)
	}
	if sess.params[0]["usdot"] != int64(12345) {
		t.Errorf("usdot param = %v", sess.params[0]["usdot"])
	}

	carriers, err := g.PersonCarriers(context.Background(), "PERS-JANESMITH")
	if err != nil {
		t.Fatalf("PersonCarriers: %v", err)
	}
	if len(carriers) != 2 || carriers[1].USDOT != 67890 {
		t.Errorf("carriers = %+v", carriers)
	}
}
