package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tradeops/pgvault/internal/config"
	"github.com/tradeops/pgvault/internal/domain"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// Mirror is a secondary notification channel (e.g. Telegram) that receives a
// rendered copy of warning/critical events.
type Mirror interface {
	Notify(message string) error
}

// Dispatcher posts alert events to the alerting endpoint. Delivery is
// fire-and-forget: it runs off the caller's goroutine, transient failures get
// a bounded retry, every failure is logged with its payload, and nothing
// propagates to the caller. Backup and restore correctness must never depend
// on alerting. Flush drains in-flight deliveries before process exit.
type Dispatcher struct {
	url      string
	service  string
	channels []string
	client   *http.Client
	logger   Logger
	mirrors  []Mirror
	inflight sync.WaitGroup

	maxAttempts int
	backoff     time.Duration
}

const requestTimeout = 5 * time.Second

func NewDispatcher(cfg *config.AlertConfig, logger Logger, mirrors ...Mirror) *Dispatcher {
	service := cfg.ServiceName
	if service == "" {
		service = "pgvault"
	}
	channels := cfg.Channels
	if len(channels) == 0 {
		channels = []string{"ops"}
	}

	return &Dispatcher{
		url:         cfg.URL,
		service:     service,
		channels:    channels,
		client:      &http.Client{Timeout: requestTimeout},
		logger:      logger,
		mirrors:     mirrors,
		maxAttempts: 3,
		backoff:     2 * time.Second,
	}
}

func (d *Dispatcher) Send(event domain.AlertEvent) {
	if event.ServiceName == "" {
		event.ServiceName = d.service
	}
	if len(event.Channels) == 0 {
		event.Channels = d.channels
	}

	if d.url != "" {
		d.inflight.Add(1)
		go func() {
			defer d.inflight.Done()
			d.post(event)
		}()
	}

	if event.Priority != domain.PriorityInfo {
		d.inflight.Add(1)
		go func() {
			defer d.inflight.Done()
			d.mirror(event)
		}()
	}
}

// Flush blocks until all queued deliveries have finished. Called at shutdown
// so a short-lived invocation does not drop its final alerts.
func (d *Dispatcher) Flush() {
	d.inflight.Wait()
}

func (d *Dispatcher) post(event domain.AlertEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Errorf("alert payload marshal failed: %v", err)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		resp, err := d.client.Post(d.url, "application/json", bytes.NewReader(payload))
		if err != nil {
			lastErr = err
		} else {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return
			}
			lastErr = fmt.Errorf("endpoint returned %s", resp.Status)
		}

		if attempt < d.maxAttempts {
			time.Sleep(d.backoff)
		}
	}

	d.logger.Errorf("alert delivery failed after %d attempts: %v, payload: %s",
		d.maxAttempts, lastErr, string(payload))
}

func (d *Dispatcher) mirror(event domain.AlertEvent) {
	message := fmt.Sprintf("[%s] %s: %s %s %.2f",
		event.Priority, event.ServiceName, event.HealthMetric, event.Operator, event.Threshold)

	for _, m := range d.mirrors {
		if err := m.Notify(message); err != nil {
			d.logger.Warnf("alert mirror delivery failed: %v", err)
		}
	}
}
