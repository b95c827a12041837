package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/HaulGuardAI/haulguard-mvp/pkg/natsutil"
)

// dlqMessage is published to the DLQ after retries are exhausted.
type dlqMessage struct {
	Request Request `json:"request"`
	Error   string  `json:"error"`
	Retries int     `json:"retries"`
}

// PublishRequest hands an enrichment request to the workers.
func PublishRequest(ctx context.Context, nc *nats.Conn, req Request) error {
	return natsutil.Publish(ctx, nc, Subject, req)
}

// StartConsumer subscribes the orchestrator to enrichment requests in a
// queue group so multiple workers share the load. Failed requests are
// re-published with a retry header up to MaxRetries, then parked on the
// DLQ.
func StartConsumer(nc *nats.Conn, o *Orchestrator, log *slog.Logger) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}

	return nc.QueueSubscribe(Subject, "enrich-workers", func(msg *nats.Msg) {
		var req Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Error("enrich: unmarshal failed", "error", err)
			return
		}

		ctx := context.Background()

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		summaries, err := o.RunBatch(ctx, req.JobID, req.USDOTs)
		if err != nil {
			retries++
			log.Error("enrich: batch failed", "job_id", req.JobID, "retry", retries, "error", err)

			if retries >= MaxRetries {
				dlq := dlqMessage{Request: req, Error: err.Error(), Retries: retries}
				data, _ := json.Marshal(dlq)
				if pubErr := nc.Publish(DLQSubject, data); pubErr != nil {
					log.Error("enrich: DLQ publish failed", "error", pubErr)
				}
			} else {
				retryMsg := nats.NewMsg(Subject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
				if pubErr := nc.PublishMsg(retryMsg); pubErr != nil {
					log.Error("enrich: retry publish failed", "error", pubErr)
				}
			}
		} else {
			log.Info("enrich: batch done", "job_id", req.JobID, "carriers", len(summaries))
		}

		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}
