package graph

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/repo"
)

// Generic repositories for the simple node types. The heavier carrier and
// policy operations stay on GraphStore because they touch relationships.

func newProviderRepo(driver neo4j.DriverWithContext) *repo.Neo4jRepo[domain.InsuranceProvider, string] {
	return repo.NewNeo4jRepo[domain.InsuranceProvider, string](
		driver,
		"InsuranceProvider",
		providerToMap,
		providerFromRecord,
		repo.WithIDKey[domain.InsuranceProvider, string]("provider_id"),
		repo.WithOrderBy[domain.InsuranceProvider, string]("name"),
	)
}

func newPersonRepo(driver neo4j.DriverWithContext) *repo.Neo4jRepo[domain.Person, string] {
	return repo.NewNeo4jRepo[domain.Person, string](
		driver,
		"Person",
		personToMap,
		personFromRecord,
		repo.WithIDKey[domain.Person, string]("person_id"),
		repo.WithOrderBy[domain.Person, string]("full_name"),
	)
}

func providerToMap(p domain.InsuranceProvider) map[string]any {
	m := map[string]any{
		"provider_id":            p.ProviderID,
		"name":                   p.Name,
		"total_carriers_insured": p.TotalCarriersInsured,
	}
	putStr(m, "contact_phone", p.ContactPhone)
	putStr(m, "contact_email", p.ContactEmail)
	putStr(m, "website", p.Website)
	putStr(m, "data_source", p.DataSource)
	putDate(m, "created_date", p.CreatedDate)
	return m
}

func providerFromRecord(rec *neo4j.Record) (domain.InsuranceProvider, error) {
	props, err := recordNode(rec)
	if err != nil {
		return domain.InsuranceProvider{}, err
	}
	return providerFromProps(props), nil
}

func personToMap(p domain.Person) map[string]any {
	m := map[string]any{
		"person_id": p.PersonID,
		"full_name": p.FullName,
	}
	putStr(m, "first_name", p.FirstName)
	putStr(m, "last_name", p.LastName)
	return m
}

func personFromRecord(rec *neo4j.Record) (domain.Person, error) {
	props, err := recordNode(rec)
	if err != nil {
		return domain.Person{}, err
	}
	return domain.Person{
		PersonID:  asString(props["person_id"]),
		FullName:  asString(props["full_name"]),
		FirstName: asString(props["first_name"]),
		LastName:  asString(props["last_name"]),
	}, nil
}

func recordNode(rec *neo4j.Record) (map[string]any, error) {
	v, ok := rec.Get("n")
	if !ok {
		return nil, fmt.Errorf("record missing node column")
	}
	node, ok := v.(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("record column is %T, want node", v)
	}
	return node.Props, nil
}
