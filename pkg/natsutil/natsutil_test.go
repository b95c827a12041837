package natsutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

type testMsg struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	opts := &natsserver.Options{Port: -1}
	ns, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("nats server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("nats connect: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*headerCarrier)(msg)

	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected traceparent, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestHeaderCarrierNilHeader(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*headerCarrier)(msg)

	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}

func TestPublishSubscribe(t *testing.T) {
	nc := startNATS(t)

	ch := make(chan testMsg, 1)
	sub, err := Subscribe(nc, "test.pubsub", func(_ context.Context, m testMsg) {
		ch <- m
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := Publish(context.Background(), nc, "test.pubsub", testMsg{Name: "hello", Value: 42}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-ch:
		if got.Name != "hello" || got.Value != 42 {
			t.Fatalf("unexpected message: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSubscribeDropsMalformed(t *testing.T) {
	nc := startNATS(t)

	called := make(chan struct{}, 1)
	sub, err := Subscribe(nc, "test.malformed", func(_ context.Context, m testMsg) {
		called <- struct{}{}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := nc.Publish("test.malformed", []byte("{invalid json")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-called:
		t.Fatal("handler should not run for malformed message")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRequest(t *testing.T) {
	nc := startNATS(t)

	type req struct{ N int }
	type resp struct{ Result int }

	sub, err := nc.Subscribe("test.request", func(m *nats.Msg) {
		var r req
		if err := json.Unmarshal(m.Data, &r); err != nil {
			return
		}
		data, _ := json.Marshal(resp{Result: r.N * 2})
		m.Respond(data)
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	got, err := Request[req, resp](context.Background(), nc, "test.request", req{N: 21})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if got.Result != 42 {
		t.Fatalf("expected 42, got %d", got.Result)
	}
}
