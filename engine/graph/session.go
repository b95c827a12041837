package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// CypherResult iterates rows of a query. The concrete type in production is
// the driver's ResultWithContext; tests substitute in-memory fakes.
type CypherResult interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// CypherRunner runs a single Cypher statement. Both sessions and managed
// transactions satisfy it, so store methods can be written once and reused
// inside ExecuteWrite closures.
type CypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error)
}

type CypherSession interface {
	CypherRunner
	ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error)
	Close(ctx context.Context) error
}

// SessionOpener hands out sessions. The production opener wraps a
// neo4j.DriverWithContext.
type SessionOpener interface {
	OpenSession(ctx context.Context) CypherSession
}

type driverOpener struct {
	driver neo4j.DriverWithContext
}

func (o driverOpener) OpenSession(ctx context.Context) CypherSession {
	return neoSession{s: o.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

type neoSession struct {
	s neo4j.SessionWithContext
}

func (n neoSession) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	res, err := n.s.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return neoResult{r: res}, nil
}

func (n neoSession) ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	return n.s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(txRunner{tx: tx})
	})
}

func (n neoSession) Close(ctx context.Context) error {
	return n.s.Close(ctx)
}

type neoResult struct {
	r neo4j.ResultWithContext
}

func (n neoResult) Next(ctx context.Context) bool { return n.r.Next(ctx) }
func (n neoResult) Record() *neo4j.Record         { return n.r.Record() }
func (n neoResult) Err() error                    { return n.r.Err() }

type txRunner struct {
	tx neo4j.ManagedTransaction
}

func (t txRunner) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	res, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return neoResult{r: res}, nil
}
