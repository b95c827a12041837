// Package graph is the Neo4j persistence layer for carriers, insurance
// policies, events, providers, and the temporal relationships between them.
// All Cypher lives here; callers work with domain types.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/repo"
)

// GraphStore wraps a Neo4j driver and exposes the operations of the
// insurance graph. Tests construct it with NewWithOpener and a fake opener.
type GraphStore struct {
	opener    SessionOpener
	providers *repo.Neo4jRepo[domain.InsuranceProvider, string]
	persons   *repo.Neo4jRepo[domain.Person, string]
	log       *slog.Logger
	now       func() time.Time
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, uri, user, pass string, log *slog.Logger) (*GraphStore, neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, pass, ""))
	if err != nil {
		return nil, nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	g := NewWithOpener(driverOpener{driver: driver}, log)
	g.providers = newProviderRepo(driver)
	g.persons = newPersonRepo(driver)
	return g, driver, nil
}

// NewWithOpener builds a store over an existing session opener. Provider and
// person repositories are unset; the store falls back to direct queries.
func NewWithOpener(opener SessionOpener, log *slog.Logger) *GraphStore {
	if log == nil {
		log = slog.Default()
	}
	return &GraphStore{opener: opener, log: log, now: time.Now}
}

// CreateCarrier inserts a carrier node. Returns domain.ErrDuplicate when the
// USDOT number is already present.
func (g *GraphStore) CreateCarrier(ctx context.Context, c domain.Carrier) error {
	if err := domain.ValidateCarrier(c); err != nil {
		return err
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	exists, err := g.carrierExists(ctx, sess, c.USDOT)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("carrier %d: %w", c.USDOT, domain.ErrDuplicate)
	}

	_, err = sess.Run(ctx, `
		CREATE (c:Carrier $props)
		SET c.created_at = datetime(), c.updated_at = datetime()`,
		map[string]any{"props": carrierToMap(c)})
	if err != nil {
		return fmt.Errorf("create carrier %d: %w", c.USDOT, err)
	}
	g.log.Debug("carrier created", "usdot", c.USDOT)
	return nil
}

// GetCarrier fetches one carrier by USDOT number.
func (g *GraphStore) GetCarrier(ctx context.Context, usdot int64) (domain.Carrier, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `MATCH (c:Carrier {usdot: $usdot}) RETURN c`,
		map[string]any{"usdot": usdot})
	if err != nil {
		return domain.Carrier{}, err
	}
	if !res.Next(ctx) {
		return domain.Carrier{}, fmt.Errorf("carrier %d: %w", usdot, domain.ErrNotFound)
	}
	props, ok := nodeProps(res.Record(), "c")
	if !ok {
		return domain.Carrier{}, fmt.Errorf("carrier %d: unexpected record shape", usdot)
	}
	return carrierFromProps(props), nil
}

// CarrierExists reports whether a carrier node is present.
func (g *GraphStore) CarrierExists(ctx context.Context, usdot int64) (bool, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)
	return g.carrierExists(ctx, sess, usdot)
}

func (g *GraphStore) carrierExists(ctx context.Context, run CypherRunner, usdot int64) (bool, error) {
	res, err := run.Run(ctx, `MATCH (c:Carrier {usdot: $usdot}) RETURN c.usdot LIMIT 1`,
		map[string]any{"usdot": usdot})
	if err != nil {
		return false, err
	}
	return res.Next(ctx), nil
}

// UpdateCarrier applies a partial update. The updatable property set is
// fixed; unknown fields cannot reach the SET clause.
func (g *GraphStore) UpdateCarrier(ctx context.Context, usdot int64, patch domain.CarrierPatch) error {
	props := patchToMap(patch)
	if len(props) == 0 {
		return nil
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier {usdot: $usdot})
		SET c += $props, c.updated_at = datetime()
		RETURN c.usdot`,
		map[string]any{"usdot": usdot, "props": props})
	if err != nil {
		return fmt.Errorf("update carrier %d: %w", usdot, err)
	}
	if !res.Next(ctx) {
		return fmt.Errorf("carrier %d: %w", usdot, domain.ErrNotFound)
	}
	return nil
}

// DeleteCarrier removes a carrier and all its relationships.
func (g *GraphStore) DeleteCarrier(ctx context.Context, usdot int64) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier {usdot: $usdot})
		WITH c, c.usdot AS found
		DETACH DELETE c
		RETURN found`,
		map[string]any{"usdot": usdot})
	if err != nil {
		return fmt.Errorf("delete carrier %d: %w", usdot, err)
	}
	if !res.Next(ctx) {
		return fmt.Errorf("carrier %d: %w", usdot, domain.ErrNotFound)
	}
	g.log.Info("carrier deleted", "usdot", usdot)
	return nil
}

// ListCarriers pages through carrier nodes ordered by USDOT number.
func (g *GraphStore) ListCarriers(ctx context.Context, opts repo.ListOpts) ([]domain.Carrier, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier)
		RETURN c ORDER BY c.usdot SKIP $offset LIMIT $limit`,
		map[string]any{"offset": opts.Offset, "limit": limit})
	if err != nil {
		return nil, err
	}
	var out []domain.Carrier
	for res.Next(ctx) {
		if props, ok := nodeProps(res.Record(), "c"); ok {
			out = append(out, carrierFromProps(props))
		}
	}
	return out, res.Err()
}

// HighRiskCarriers returns carriers whose safety record crosses the
// out-of-service or crash thresholds.
func (g *GraphStore) HighRiskCarriers(ctx context.Context, oosThreshold float64, limit int) ([]domain.Carrier, error) {
	if limit <= 0 {
		limit = 50
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier)
		WHERE c.driver_oos_rate > $threshold
		   OR c.vehicle_oos_rate > $threshold
		   OR c.crashes > 5
		RETURN c
		ORDER BY c.crashes DESC, c.driver_oos_rate DESC
		LIMIT $limit`,
		map[string]any{"threshold": oosThreshold, "limit": limit})
	if err != nil {
		return nil, err
	}
	var out []domain.Carrier
	for res.Next(ctx) {
		if props, ok := nodeProps(res.Record(), "c"); ok {
			out = append(out, carrierFromProps(props))
		}
	}
	return out, res.Err()
}

// BulkCreateCarriers merges a batch of carriers in one write transaction.
func (g *GraphStore) BulkCreateCarriers(ctx context.Context, carriers []domain.Carrier) (int, error) {
	rows := make([]map[string]any, 0, len(carriers))
	for _, c := range carriers {
		if err := domain.ValidateCarrier(c); err != nil {
			return 0, err
		}
		rows = append(rows, carrierToMap(c))
	}
	if len(rows) == 0 {
		return 0, nil
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	created, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		res, err := tx.Run(ctx, `
			UNWIND $rows AS row
			MERGE (c:Carrier {usdot: row.usdot})
			ON CREATE SET c = row, c.created_at = datetime()
			SET c.updated_at = datetime()
			RETURN count(c) AS n`,
			map[string]any{"rows": rows})
		if err != nil {
			return 0, err
		}
		if res.Next(ctx) {
			n, _ := res.Record().Get("n")
			return asInt64(n), nil
		}
		return int64(0), res.Err()
	})
	if err != nil {
		return 0, fmt.Errorf("bulk create carriers: %w", err)
	}
	return int(created.(int64)), nil
}

// CarrierStatistics aggregates one carrier's insurance neighborhood.
func (g *GraphStore) CarrierStatistics(ctx context.Context, usdot int64) (CarrierStats, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier {usdot: $usdot})
		OPTIONAL MATCH (c)-[h:HAD_INSURANCE]->(ip:InsurancePolicy)
		OPTIONAL MATCH (c)-[:INSURANCE_EVENT]->(ie:InsuranceEvent)
		RETURN c.usdot AS usdot,
		       c.carrier_name AS name,
		       count(DISTINCT ip) AS policies,
		       count(DISTINCT CASE WHEN h.status = 'ACTIVE' THEN ip END) AS active,
		       count(DISTINCT ip.provider_name) AS providers,
		       count(DISTINCT ie) AS events,
		       count(DISTINCT CASE WHEN ie.is_suspicious = true THEN ie END) AS suspicious,
		       coalesce(sum(DISTINCT CASE WHEN h.status = 'ACTIVE' THEN ip.coverage_amount ELSE 0 END), 0) AS coverage`,
		map[string]any{"usdot": usdot})
	if err != nil {
		return CarrierStats{}, err
	}
	if !res.Next(ctx) {
		return CarrierStats{}, fmt.Errorf("carrier %d: %w", usdot, domain.ErrNotFound)
	}
	rec := res.Record()
	return CarrierStats{
		CarrierUSDOT:     int64Field(rec, "usdot"),
		CarrierName:      strField(rec, "name"),
		PolicyCount:      int64Field(rec, "policies"),
		ActivePolicies:   int64Field(rec, "active"),
		ProviderCount:    int64Field(rec, "providers"),
		EventCount:       int64Field(rec, "events"),
		SuspiciousEvents: int64Field(rec, "suspicious"),
		TotalCoverage:    floatField(rec, "coverage"),
	}, nil
}

// carrierToMap flattens a carrier to node properties. Dates go in as ISO
// strings so range predicates and duration.between work uniformly.
func carrierToMap(c domain.Carrier) map[string]any {
	m := map[string]any{
		"usdot":            c.USDOT,
		"carrier_name":     c.Name,
		"jb_carrier":       c.JBCarrier,
		"trucks":           c.Trucks,
		"inspections":      c.Inspections,
		"violations":       c.Violations,
		"oos_violations":   c.OOSViolations,
		"crashes":          c.Crashes,
		"driver_oos_rate":  c.DriverOOSRate,
		"vehicle_oos_rate": c.VehicleOOSRate,
	}
	putStr(m, "primary_officer", c.PrimaryOfficer)
	putStr(m, "insurance_provider", c.InsuranceProvider)
	if c.InsuranceAmount > 0 {
		m["insurance_amount"] = c.InsuranceAmount
	}
	putDate(m, "mcs150_date", c.MCS150Date)
	putDate(m, "created_date", c.CreatedDate)
	putStr(m, "data_source", c.DataSource)
	return m
}

func carrierFromProps(p map[string]any) domain.Carrier {
	return domain.Carrier{
		USDOT:             asInt64(p["usdot"]),
		Name:              asString(p["carrier_name"]),
		PrimaryOfficer:    asString(p["primary_officer"]),
		JBCarrier:         asBool(p["jb_carrier"]),
		InsuranceProvider: asString(p["insurance_provider"]),
		InsuranceAmount:   asFloat(p["insurance_amount"]),
		Trucks:            int(asInt64(p["trucks"])),
		Inspections:       int(asInt64(p["inspections"])),
		Violations:        int(asInt64(p["violations"])),
		OOSViolations:     int(asInt64(p["oos_violations"])),
		Crashes:           int(asInt64(p["crashes"])),
		DriverOOSRate:     asFloat(p["driver_oos_rate"]),
		VehicleOOSRate:    asFloat(p["vehicle_oos_rate"]),
		MCS150Date:        asDate(p["mcs150_date"]),
		CreatedDate:       asDate(p["created_date"]),
		DataSource:        asString(p["data_source"]),
	}
}

func patchToMap(p domain.CarrierPatch) map[string]any {
	m := map[string]any{}
	if p.Name != nil {
		m["carrier_name"] = *p.Name
	}
	if p.PrimaryOfficer != nil {
		m["primary_officer"] = *p.PrimaryOfficer
	}
	if p.InsuranceProvider != nil {
		m["insurance_provider"] = *p.InsuranceProvider
	}
	if p.InsuranceAmount != nil {
		m["insurance_amount"] = *p.InsuranceAmount
	}
	if p.Trucks != nil {
		m["trucks"] = *p.Trucks
	}
	if p.Inspections != nil {
		m["inspections"] = *p.Inspections
	}
	if p.Violations != nil {
		m["violations"] = *p.Violations
	}
	if p.OOSViolations != nil {
		m["oos_violations"] = *p.OOSViolations
	}
	if p.Crashes != nil {
		m["crashes"] = *p.Crashes
	}
	if p.DriverOOSRate != nil {
		m["driver_oos_rate"] = *p.DriverOOSRate
	}
	if p.VehicleOOSRate != nil {
		m["vehicle_oos_rate"] = *p.VehicleOOSRate
	}
	if p.MCS150Date != nil {
		m["mcs150_date"] = p.MCS150Date.String()
	}
	return m
}

// --- property conversion helpers ---

func putStr(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}

func putDate(m map[string]any, key string, d domain.Date) {
	if !d.IsZero() {
		m[key] = d.String()
	}
}

func putDatePtr(m map[string]any, key string, d *domain.Date) {
	if d != nil && !d.IsZero() {
		m[key] = d.String()
	}
}

func nodeProps(rec *neo4j.Record, key string) (map[string]any, bool) {
	v, ok := rec.Get(key)
	if !ok {
		return nil, false
	}
	node, ok := v.(dbtype.Node)
	if !ok {
		return nil, false
	}
	return node.Props, true
}

func relProps(rec *neo4j.Record, key string) (map[string]any, bool) {
	v, ok := rec.Get(key)
	if !ok {
		return nil, false
	}
	rel, ok := v.(dbtype.Relationship)
	if !ok {
		return nil, false
	}
	return rel.Props, true
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asDate(v any) domain.Date {
	s, ok := v.(string)
	if !ok || s == "" {
		return domain.Date{}
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return domain.Date{}
	}
	return d
}

func asDatePtr(v any) *domain.Date {
	d := asDate(v)
	if d.IsZero() {
		return nil
	}
	return &d
}

func strField(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	return asString(v)
}

func int64Field(rec *neo4j.Record, key string) int64 {
	v, _ := rec.Get(key)
	return asInt64(v)
}

func floatField(rec *neo4j.Record, key string) float64 {
	v, _ := rec.Get(key)
	return asFloat(v)
}

func dateField(rec *neo4j.Record, key string) domain.Date {
	v, _ := rec.Get(key)
	return asDate(v)
}

func datePtrField(rec *neo4j.Record, key string) *domain.Date {
	v, _ := rec.Get(key)
	return asDatePtr(v)
}

func boolField(rec *neo4j.Record, key string) bool {
	v, _ := rec.Get(key)
	return asBool(v)
}
