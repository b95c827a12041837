package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/repo"
)

// GetOrCreateProvider resolves a provider by name, creating it on first
// sight. Name matching is exact after trimming.
func (g *GraphStore) GetOrCreateProvider(ctx context.Context, name string) (domain.InsuranceProvider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Unknown"
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MERGE (p:InsuranceProvider {name: $name})
		ON CREATE SET p.provider_id = $provider_id,
		              p.total_carriers_insured = 0,
		              p.created_date = $today,
		              p.last_updated = datetime()
		RETURN p`,
		map[string]any{
			"name":        name,
			"provider_id": domain.ProviderIDFor(name),
			"today":       domain.DateOf(g.now()).String(),
		})
	if err != nil {
		return domain.InsuranceProvider{}, fmt.Errorf("get or create provider %q: %w", name, err)
	}
	if !res.Next(ctx) {
		return domain.InsuranceProvider{}, fmt.Errorf("get or create provider %q: no row", name)
	}
	props, ok := nodeProps(res.Record(), "p")
	if !ok {
		return domain.InsuranceProvider{}, fmt.Errorf("provider %q: unexpected record shape", name)
	}
	return providerFromProps(props), nil
}

// GetProvider fetches one provider by id, through the generic repository
// when connected to a real driver.
func (g *GraphStore) GetProvider(ctx context.Context, providerID string) (domain.InsuranceProvider, error) {
	if g.providers != nil {
		p, err := g.providers.Get(ctx, providerID)
		if err != nil {
			return domain.InsuranceProvider{}, mapRepoErr(err)
		}
		return p, nil
	}

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `MATCH (p:InsuranceProvider {provider_id: $id}) RETURN p`,
		map[string]any{"id": providerID})
	if err != nil {
		return domain.InsuranceProvider{}, err
	}
	if !res.Next(ctx) {
		return domain.InsuranceProvider{}, fmt.Errorf("provider %s: %w", providerID, domain.ErrNotFound)
	}
	props, ok := nodeProps(res.Record(), "p")
	if !ok {
		return domain.InsuranceProvider{}, fmt.Errorf("provider %s: unexpected record shape", providerID)
	}
	return providerFromProps(props), nil
}

// ListProviders pages providers ordered by name.
func (g *GraphStore) ListProviders(ctx context.Context, offset, limit int) ([]domain.InsuranceProvider, error) {
	if limit <= 0 {
		limit = 100
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (p:InsuranceProvider)
		RETURN p ORDER BY p.name SKIP $offset LIMIT $limit`,
		map[string]any{"offset": offset, "limit": limit})
	if err != nil {
		return nil, err
	}
	var out []domain.InsuranceProvider
	for res.Next(ctx) {
		if props, ok := nodeProps(res.Record(), "p"); ok {
			out = append(out, providerFromProps(props))
		}
	}
	return out, res.Err()
}

// LinkProvider merges the PROVIDED_BY edge from a policy to its provider.
func (g *GraphStore) LinkProvider(ctx context.Context, policyID, providerName string) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (ip:InsurancePolicy {policy_id: $policy_id})
		MATCH (p:InsuranceProvider {name: $name})
		MERGE (ip)-[r:PROVIDED_BY]->(p)
		ON CREATE SET r.created_at = datetime()
		RETURN ip.policy_id`,
		map[string]any{"policy_id": policyID, "name": providerName})
	if err != nil {
		return fmt.Errorf("link provider %s -> %q: %w", policyID, providerName, err)
	}
	if !res.Next(ctx) {
		return fmt.Errorf("link provider %s -> %q: %w", policyID, providerName, domain.ErrNotFound)
	}
	return nil
}

// LinkCarrierProvider merges the INSURED_BY edge and refreshes the
// provider's insured-carrier count.
func (g *GraphStore) LinkCarrierProvider(ctx context.Context, usdot int64, providerName string) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier {usdot: $usdot})
		MATCH (p:InsuranceProvider {name: $name})
		MERGE (c)-[r:INSURED_BY]->(p)
		ON CREATE SET r.created_at = datetime()
		WITH p
		MATCH (p)<-[:INSURED_BY]-(ic:Carrier)
		WITH p, count(DISTINCT ic) AS insured
		SET p.total_carriers_insured = insured, p.last_updated = datetime()
		RETURN insured`,
		map[string]any{"usdot": usdot, "name": providerName})
	if err != nil {
		return fmt.Errorf("link carrier %d -> provider %q: %w", usdot, providerName, err)
	}
	if !res.Next(ctx) {
		return fmt.Errorf("link carrier %d -> provider %q: %w", usdot, providerName, domain.ErrNotFound)
	}
	return nil
}

// LinkOfficer merges the managing officer as a Person node and the
// MANAGED_BY edge from the carrier.
func (g *GraphStore) LinkOfficer(ctx context.Context, usdot int64, fullName string) error {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier {usdot: $usdot})
		MERGE (p:Person {full_name: $full_name})
		ON CREATE SET p.person_id = $person_id, p.created_at = datetime()
		MERGE (c)-[r:MANAGED_BY]->(p)
		ON CREATE SET r.created_at = datetime()
		RETURN p.person_id`,
		map[string]any{
			"usdot":     usdot,
			"full_name": fullName,
			"person_id": personIDFor(fullName),
		})
	if err != nil {
		return fmt.Errorf("link officer %d -> %q: %w", usdot, fullName, err)
	}
	if !res.Next(ctx) {
		return fmt.Errorf("link officer %d -> %q: %w", usdot, fullName, domain.ErrNotFound)
	}
	return nil
}

// GetPerson fetches one managing officer by id.
func (g *GraphStore) GetPerson(ctx context.Context, personID string) (domain.Person, error) {
	if g.persons != nil {
		p, err := g.persons.Get(ctx, personID)
		if err != nil {
			return domain.Person{}, mapRepoErr(err)
		}
		return p, nil
	}

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `MATCH (p:Person {person_id: $id}) RETURN p`,
		map[string]any{"id": personID})
	if err != nil {
		return domain.Person{}, err
	}
	if !res.Next(ctx) {
		return domain.Person{}, fmt.Errorf("person %s: %w", personID, domain.ErrNotFound)
	}
	props, ok := nodeProps(res.Record(), "p")
	if !ok {
		return domain.Person{}, fmt.Errorf("person %s: unexpected record shape", personID)
	}
	return personFromProps(props), nil
}

// CarrierOfficers lists the managing officers of one carrier.
func (g *GraphStore) CarrierOfficers(ctx context.Context, usdot int64) ([]domain.Person, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier {usdot: $usdot})-[:MANAGED_BY]->(p:Person)
		RETURN p ORDER BY p.full_name`,
		map[string]any{"usdot": usdot})
	if err != nil {
		return nil, err
	}
	var out []domain.Person
	for res.Next(ctx) {
		if props, ok := nodeProps(res.Record(), "p"); ok {
			out = append(out, personFromProps(props))
		}
	}
	return out, res.Err()
}

// PersonCarriers lists every carrier managed by one officer. The chameleon
// detector joins this relationship in bulk; this is the single-officer view.
func (g *GraphStore) PersonCarriers(ctx context.Context, personID string) ([]domain.Carrier, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (p:Person {person_id: $id})<-[:MANAGED_BY]-(c:Carrier)
		RETURN c ORDER BY c.usdot`,
		map[string]any{"id": personID})
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

func personFromProps(props map[string]any) domain.Person {
	return domain.Person{
		PersonID:  asString(props["person_id"]),
		FullName:  asString(props["full_name"]),
		FirstName: asString(props["first_name"]),
		LastName:  asString(props["last_name"]),
	}
}

// ProviderCarriers lists the carriers insured by a provider.
func (g *GraphStore) ProviderCarriers(ctx context.Context, providerID string) ([]domain.Carrier, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (p:InsuranceProvider {provider_id: $id})<-[:INSURED_BY]-(c:Carrier)
		RETURN c ORDER BY c.usdot`,
		map[string]any{"id": providerID})
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

func providerFromProps(props map[string]any) domain.InsuranceProvider {
	return domain.InsuranceProvider{
		ProviderID:           asString(props["provider_id"]),
		Name:                 asString(props["name"]),
		ContactPhone:         asString(props["contact_phone"]),
		ContactEmail:         asString(props["contact_email"]),
		Website:              asString(props["website"]),
		TotalCarriersInsured: asInt64(props["total_carriers_insured"]),
		CreatedDate:          asDate(props["created_date"]),
		DataSource:           asString(props["data_source"]),
	}
}

func personIDFor(fullName string) string {
	squashed := strings.ToUpper(strings.NewReplacer(" ", "", ",", "", ".", "").Replace(fullName))
	if len(squashed) > 16 {
		squashed = squashed[:16]
	}
	return "PERS-" + squashed
}

func mapRepoErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%v: %w", err, domain.ErrNotFound)
	}
	return err
}
