package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// mockResult replays canned records.
type mockResult struct {
	recs []*neo4j.Record
	i    int
	err  error
}

func newMockResult(recs ...*neo4j.Record) *mockResult {
	return &mockResult{recs: recs}
}

func (m *mockResult) Next(ctx context.Context) bool {
	if m.i < len(m.recs) {
		m.i++
		return true
	}
	return false
}

func (m *mockResult) Record() *neo4j.Record { return m.recs[m.i-1] }
func (m *mockResult) Err() error            { return m.err }

// mockSession records every query and its params, handing back queued
// results in order. Once the queue drains it returns empty results.
type mockSession struct {
	results []*mockResult
	queries []string
	params  []map[string]any
	runErr  error
	closed  bool
}

func (m *mockSession) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	m.queries = append(m.queries, cypher)
	m.params = append(m.params, params)
	if m.runErr != nil {
		return nil, m.runErr
	}
	if len(m.results) > 0 {
		res := m.results[0]
		m.results = m.results[1:]
		return res, nil
	}
	return newMockResult(), nil
}

func (m *mockSession) ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	return work(m)
}

func (m *mockSession) Close(ctx context.Context) error {
	m.closed = true
	return nil
}

type mockOpener struct {
	sess *mockSession
}

func (o mockOpener) OpenSession(ctx context.Context) CypherSession { return o.sess }

func makeRecord(keys []string, values []any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func makeNodeRecord(key string, props map[string]any) *neo4j.Record {
	return makeRecord([]string{key}, []any{nodeVal(props)})
}

func nodeVal(props map[string]any) dbtype.Node {
	return dbtype.Node{Props: props}
}
