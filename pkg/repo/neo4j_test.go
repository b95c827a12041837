package repo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// mockRunner records every Cypher statement and replays canned records.
type mockRunner struct {
	cyphers []string
	params  []map[string]any
	records []*neo4j.Record
	runErr  error
	closed  bool
}

func (m *mockRunner) Run(_ context.Context, cypher string, params map[string]any) (result, error) {
	m.cyphers = append(m.cyphers, cypher)
	m.params = append(m.params, params)
	if m.runErr != nil {
		return nil, m.runErr
	}
	return &mockResult{records: m.records}, nil
}

func (m *mockRunner) Close(_ context.Context) error {
	m.closed = true
	return nil
}

type mockResult struct {
	records []*neo4j.Record
	pos     int
}

func (m *mockResult) Next(_ context.Context) bool {
	if m.pos >= len(m.records) {
		return false
	}
	m.pos++
	return true
}

func (m *mockResult) Record() *neo4j.Record {
	return m.records[m.pos-1]
}

func nodeRecord(props map[string]any) *neo4j.Record {
	return &neo4j.Record{
		Keys:   []string{"n"},
		Values: []any{dbtype.Node{Props: props}},
	}
}

type entity struct {
	ID   string
	Name string
}

func testRepo(m *mockRunner) *Neo4jRepo[entity, string] {
	r := NewNeo4jRepo[entity, string](
		nil,
		"Entity",
		func(e entity) map[string]any { return map[string]any{"id": e.ID, "name": e.Name} },
		func(rec *neo4j.Record) (entity, error) {
			node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
			if err != nil {
				return entity{}, err
			}
			e := entity{}
			if v, ok := node.Props["id"].(string); ok {
				e.ID = v
			}
			if v, ok := node.Props["name"].(string); ok {
				e.Name = v
			}
			return e, nil
		},
	)
	r.newSession = func(_ context.Context) runner { return m }
	return r
}

func TestNewNeo4jRepoDefaults(t *testing.T) {
	r := NewNeo4jRepo[entity, string](nil, "Entity", nil, nil)
	if r.idKey != "id" {
		t.Fatalf("expected default idKey=id, got %s", r.idKey)
	}

	r2 := NewNeo4jRepo[entity, string](nil, "Entity", nil, nil,
		WithIDKey[entity, string]("usdot"),
		WithOrderBy[entity, string]("name"),
	)
	if r2.idKey != "usdot" || r2.orderBy != "name" {
		t.Fatalf("options not applied: %s %s", r2.idKey, r2.orderBy)
	}
}

func TestGet(t *testing.T) {
	m := &mockRunner{records: []*neo4j.Record{nodeRecord(map[string]any{"id": "e1", "name": "First"})}}
	r := testRepo(m)

	e, err := r.Get(context.Background(), "e1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID != "e1" || e.Name != "First" {
		t.Fatalf("wrong entity: %+v", e)
	}
	if !strings.Contains(m.cyphers[0], "MATCH (n:Entity {id: $id})") {
		t.Fatalf("unexpected cypher: %s", m.cyphers[0])
	}
	if !m.closed {
		t.Fatal("session not closed")
	}
}

func TestGetNotFound(t *testing.T) {
	r := testRepo(&mockRunner{})
	_, err := r.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOrdersAndPaginates(t *testing.T) {
	m := &mockRunner{records: []*neo4j.Record{
		nodeRecord(map[string]any{"id": "a"}),
		nodeRecord(map[string]any{"id": "b"}),
	}}
	r := testRepo(m)
	r.orderBy = "name"

	items, err := r.List(context.Background(), ListOpts{Offset: 10, Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if !strings.Contains(m.cyphers[0], "ORDER BY n.name") {
		t.Fatalf("missing order clause: %s", m.cyphers[0])
	}
	if m.params[0]["offset"] != 10 || m.params[0]["limit"] != 2 {
		t.Fatalf("wrong pagination params: %v", m.params[0])
	}
}

func TestListDefaultLimit(t *testing.T) {
	m := &mockRunner{}
	r := testRepo(m)

	if _, err := r.List(context.Background(), ListOpts{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.params[0]["limit"] != 100 {
		t.Fatalf("expected default limit 100, got %v", m.params[0]["limit"])
	}
}

func TestCreate(t *testing.T) {
	m := &mockRunner{records: []*neo4j.Record{nodeRecord(map[string]any{"id": "e1", "name": "New"})}}
	r := testRepo(m)

	e, err := r.Create(context.Background(), entity{ID: "e1", Name: "New"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Name != "New" {
		t.Fatalf("wrong entity: %+v", e)
	}
	if !strings.Contains(m.cyphers[0], "CREATE (n:Entity $props)") {
		t.Fatalf("unexpected cypher: %s", m.cyphers[0])
	}
}

func TestUpdateNotFound(t *testing.T) {
	r := testRepo(&mockRunner{})
	_, err := r.Update(context.Background(), entity{ID: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteDetaches(t *testing.T) {
	m := &mockRunner{}
	r := testRepo(m)

	if err := r.Delete(context.Background(), "e1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(m.cyphers[0], "DETACH DELETE n") {
		t.Fatalf("delete should detach: %s", m.cyphers[0])
	}
}

func TestRunErrorPropagates(t *testing.T) {
	r := testRepo(&mockRunner{runErr: errors.New("connection refused")})
	if _, err := r.Get(context.Background(), "e1"); err == nil {
		t.Fatal("expected error")
	}
}
