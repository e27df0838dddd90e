// Package webhook delivers signed task-completion notifications with bounded
// in-call retry and durable replay. Delivery failures are typed results, not
// errors: the caller always gets a classification (4xx, 5xx, timeout,
// network) and, for retryable classes that exhaust their attempts, the
// delivery is queued in orchestrator state for a later sweep.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/intexuraos/orchestrator/internal/errors"
	"github.com/intexuraos/orchestrator/internal/logging"
	"github.com/intexuraos/orchestrator/internal/metrics"
	"github.com/intexuraos/orchestrator/internal/state"
)

const (
	// MaxAttempts is the number of in-call delivery attempts per Send.
	MaxAttempts = 3

	// QueueExpiry is how long a pending delivery survives in the queue.
	// Entries older than this are dropped unconditionally on the next
	// sweep, whatever their delivery history. This is a documented,
	// intentional data-loss boundary.
	QueueExpiry = 24 * time.Hour

	// DefaultRequestTimeout bounds each individual HTTP attempt.
	DefaultRequestTimeout = 10 * time.Second
)

// retryDelays precede each attempt: immediate, then 5s, then 15s. The worst
// case keeps a caller inside Send for roughly twenty seconds, never longer.
var retryDelays = [MaxAttempts]time.Duration{0, 5 * time.Second, 15 * time.Second}

// FailureKind classifies a failed delivery attempt.
type FailureKind string

// Failure classes. Exactly one applies to any failed attempt.
const (
	// Failure4xx is an HTTP 400-499 response: the receiver rejected the
	// request. Terminal; retrying an identical request cannot help.
	Failure4xx FailureKind = "4xx"

	// Failure5xx is an HTTP 500-599 response.
	Failure5xx FailureKind = "5xx"

	// FailureTimeout is an attempt aborted by deadline or cancellation.
	FailureTimeout FailureKind = "timeout"

	// FailureNetwork is a connection-layer failure, and the catch-all for
	// anything that fits no other class.
	FailureNetwork FailureKind = "network"
)

// Retryable reports whether the class warrants another attempt.
func (k FailureKind) Retryable() bool {
	return k == Failure5xx || k == FailureTimeout || k == FailureNetwork
}

// Result is the outcome of a delivery. Never an error: webhook failures are
// data the caller inspects, not exceptions it catches.
type Result struct {
	// Delivered is true when the receiver acknowledged with a 2xx.
	Delivered bool

	// Kind classifies the final failed attempt. Empty on success.
	Kind FailureKind

	// StatusCode is the final HTTP status, or 0 when no response arrived.
	StatusCode int

	// Attempts is how many network calls were made.
	Attempts int

	// Message describes the final failure.
	Message string

	// Queued is true when the delivery was appended to the durable
	// pending queue for later replay.
	Queued bool
}

// Request describes one delivery: where, signed with what, carrying which
// payload, on behalf of which task.
type Request struct {
	URL     string
	Secret  string
	Payload state.WebhookPayload
	TaskID  string
}

// Client sends signed webhook notifications and maintains the pending-replay
// queue in orchestrator state. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	store      *state.Store
	log        *logging.Logger
	sleep      func(time.Duration) // replaced in tests
	now        func() time.Time    // replaced in tests
}

// NewClient creates a webhook client backed by the given state store. A nil
// logger falls back to a no-op.
func NewClient(store *state.Store, log *logging.Logger) *Client {
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
		store:      store,
		log:        log.WithComponent("webhook"),
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

// SetRequestTimeout overrides the per-attempt HTTP timeout. Non-positive
// values are ignored.
func (c *Client) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

// Sign computes the hex HMAC-SHA256 of timestamp || body keyed by secret.
// Receivers verify it against the X-Request-Signature header.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Send delivers the payload to req.URL with up to MaxAttempts attempts. A 4xx
// response fails immediately with no queue entry. A 5xx, timeout, or network
// failure on the final attempt appends a PendingWebhook to state for later
// replay. The caller blocks at most for the in-call backoff, about twenty
// seconds worst case.
func (c *Client) Send(ctx context.Context, req Request) Result {
	log := c.log.WithTask(req.TaskID)

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return Result{Kind: FailureNetwork, Message: "encoding payload: " + err.Error()}
	}

	res := c.deliver(ctx, req.URL, req.Secret, body)
	metrics.WebhookDeliveries.WithLabelValues(res.resultLabel()).Inc()

	if res.Delivered {
		log.Info("webhook delivered", "url", req.URL, "attempts", res.Attempts)
		return res
	}

	log.Warn("webhook delivery failed",
		"url", req.URL,
		"kind", string(res.Kind),
		"status", res.StatusCode,
		"attempts", res.Attempts,
		"error", res.Message,
	)

	if !res.Kind.Retryable() {
		return res
	}

	entry := state.PendingWebhook{
		URL:       req.URL,
		Secret:    req.Secret,
		Payload:   req.Payload,
		TaskID:    req.TaskID,
		Attempts:  res.Attempts,
		CreatedAt: c.now().UnixMilli(),
	}
	err = c.store.Update(func(s *state.State) error {
		s.PendingWebhooks = append(s.PendingWebhooks, entry)
		metrics.WebhookPending.Set(float64(len(s.PendingWebhooks)))
		return nil
	})
	if err != nil {
		log.Error("failed to queue webhook for replay", "url", req.URL, "error", err.Error())
		return res
	}

	res.Queued = true
	log.Info("webhook queued for replay", "url", req.URL)
	return res
}

// pendingKey identifies one queue entry across a load/update cycle.
type pendingKey struct {
	url       string
	taskID    string
	createdAt int64
}

func keyOf(pw state.PendingWebhook) pendingKey {
	return pendingKey{url: pw.URL, taskID: pw.TaskID, createdAt: pw.CreatedAt}
}

// RetryPending sweeps the durable queue once: entries older than QueueExpiry
// are dropped unconditionally, each survivor is attempted with the same
// bounded retry policy as Send, successes are removed, and failures are kept
// with their attempt count incremented. Entries are processed strictly
// sequentially, and state is persisted exactly once at the end of the sweep.
// Entries queued by concurrent Sends while the sweep runs are preserved.
func (c *Client) RetryPending(ctx context.Context) error {
	snapshot, err := c.store.Load()
	if err != nil {
		return err
	}
	if len(snapshot.PendingWebhooks) == 0 {
		return nil
	}

	cutoff := c.now().Add(-QueueExpiry).UnixMilli()
	processed := make(map[pendingKey]bool, len(snapshot.PendingWebhooks))
	keptAttempts := make(map[pendingKey]int)
	delivered := make(map[[2]string]bool)

	for _, pw := range snapshot.PendingWebhooks {
		key := keyOf(pw)
		processed[key] = true
		log := c.log.WithTask(pw.TaskID)

		if pw.CreatedAt < cutoff {
			metrics.WebhookExpired.Inc()
			log.Warn("dropping expired pending webhook",
				"url", pw.URL,
				"age", time.Duration(c.now().UnixMilli()-pw.CreatedAt)*time.Millisecond,
			)
			continue
		}

		body, err := json.Marshal(pw.Payload)
		if err != nil {
			log.Error("failed to encode pending payload", "url", pw.URL, "error", err.Error())
			keptAttempts[key] = pw.Attempts + 1
			continue
		}

		res := c.deliver(ctx, pw.URL, pw.Secret, body)
		metrics.WebhookDeliveries.WithLabelValues(res.resultLabel()).Inc()

		if res.Delivered {
			delivered[[2]string{pw.URL, pw.TaskID}] = true
			log.Info("pending webhook delivered", "url", pw.URL, "total_attempts", pw.Attempts+res.Attempts)
			continue
		}

		// A 4xx outcome keeps the entry with its counter bumped; it gets
		// no further inline retry this sweep, and no special drop. It
		// leaves the queue either by a later sweep succeeding or by the
		// expiry above.
		keptAttempts[key] = pw.Attempts + 1
		log.Warn("pending webhook still failing",
			"url", pw.URL,
			"kind", string(res.Kind),
			"attempts", pw.Attempts+1,
		)
	}

	return c.store.Update(func(s *state.State) error {
		merged := make([]state.PendingWebhook, 0, len(s.PendingWebhooks))
		for _, pw := range s.PendingWebhooks {
			key := keyOf(pw)
			if !processed[key] {
				// Queued mid-sweep; not ours to judge.
				merged = append(merged, pw)
				continue
			}
			if delivered[[2]string{pw.URL, pw.TaskID}] {
				continue
			}
			if attempts, ok := keptAttempts[key]; ok {
				pw.Attempts = attempts
				merged = append(merged, pw)
			}
		}
		s.PendingWebhooks = merged
		metrics.WebhookPending.Set(float64(len(merged)))
		return nil
	})
}

// PendingCount returns the current queue length.
func (c *Client) PendingCount() (int, error) {
	s, err := c.store.Load()
	if err != nil {
		return 0, err
	}
	return len(s.PendingWebhooks), nil
}

// deliver runs the bounded attempt loop: sleep the scheduled delay, attempt,
// and stop on success or on the terminal 4xx class.
func (c *Client) deliver(ctx context.Context, url, secret string, body []byte) Result {
	var res Result
	for i := 0; i < MaxAttempts; i++ {
		if retryDelays[i] > 0 {
			c.sleep(retryDelays[i])
		}
		res.Attempts = i + 1

		status, kind, msg := c.attempt(ctx, url, secret, body)
		res.StatusCode = status
		res.Kind = kind
		res.Message = msg

		if kind == "" {
			res.Delivered = true
			return res
		}
		if !kind.Retryable() {
			return res
		}
	}
	return res
}

// attempt makes one signed POST and classifies the outcome. An empty
// FailureKind means the receiver acknowledged.
func (c *Client) attempt(ctx context.Context, url, secret string, body []byte) (int, FailureKind, string) {
	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, FailureNetwork, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Timestamp", timestamp)
	req.Header.Set("X-Request-Signature", Sign(secret, timestamp, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, classifyTransport(err), transportMessage(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, "", ""
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return resp.StatusCode, Failure4xx, fmt.Sprintf("receiver rejected with status %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return resp.StatusCode, Failure5xx, fmt.Sprintf("receiver failed with status %d", resp.StatusCode)
	default:
		return resp.StatusCode, FailureNetwork, fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
}

// classifyTransport splits request-level failures into timeout vs network.
func classifyTransport(err error) FailureKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTimeout
	}
	return FailureNetwork
}

func transportMessage(err error) string {
	if err == nil || err.Error() == "" {
		return "Unknown error"
	}
	return err.Error()
}

func (r Result) resultLabel() string {
	if r.Delivered {
		return "success"
	}
	return string(r.Kind)
}
