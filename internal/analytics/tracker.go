package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultIngestEndpoint is the production event ingestion endpoint.
const DefaultIngestEndpoint = "https://api.mixpanel.com/track"

// DefaultAttributionEndpoint receives the install-attribution ping.
const DefaultAttributionEndpoint = "https://api.appsflyer.com/inappevent"

const (
	defaultBatchSize     = 20
	defaultFlushInterval = 10 * time.Second
)

// Event is a single analytics event.
type Event struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Props map[string]string `json:"props,omitempty"`
	Time  time.Time         `json:"time"`
}

// Tracker buffers analytics events and flushes them to the ingestion
// endpoint in batches. Delivery failures are logged and dropped; analytics
// must never break the app.
type Tracker struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *zap.Logger
	clock    func() time.Time

	batchSize     int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []Event
	closed bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// TrackerOption configures Tracker behaviour.
type TrackerOption func(*Tracker)

// WithEndpoint overrides the ingestion endpoint (primarily for tests).
func WithEndpoint(endpoint string) TrackerOption {
	return func(t *Tracker) {
		t.endpoint = endpoint
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) TrackerOption {
	return func(t *Tracker) {
		t.client = client
	}
}

// WithBatchSize sets how many events trigger an immediate flush.
func WithBatchSize(size int) TrackerOption {
	return func(t *Tracker) {
		if size > 0 {
			t.batchSize = size
		}
	}
}

// WithFlushInterval sets the periodic flush interval.
func WithFlushInterval(interval time.Duration) TrackerOption {
	return func(t *Tracker) {
		if interval > 0 {
			t.flushInterval = interval
		}
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.clock = clock
	}
}

// NewTracker constructs a tracker authenticated by the resolved analytics
// token and starts its background flush loop.
func NewTracker(token string, logger *zap.Logger, opts ...TrackerOption) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Tracker{
		endpoint: DefaultIngestEndpoint,
		token:    token,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With(zap.String("component", "analytics")),
		clock: func() time.Time {
			return time.Now().UTC()
		},
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.wg.Add(1)
	go t.flushLoop()

	return t
}

// Track buffers an event. Reaching the batch size triggers an immediate
// flush.
func (t *Tracker) Track(name string, props map[string]string) {
	event := Event{
		ID:    uuid.NewString(),
		Name:  name,
		Props: props,
		Time:  t.clock(),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.buffer = append(t.buffer, event)
	full := len(t.buffer) >= t.batchSize
	t.mu.Unlock()

	if full {
		t.Flush(context.Background())
	}
}

// Flush delivers all buffered events now. Failed batches are logged and
// dropped rather than retried.
func (t *Tracker) Flush(ctx context.Context) {
	t.mu.Lock()
	batch := t.buffer
	t.buffer = nil
	t.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := t.deliver(ctx, batch); err != nil {
		t.logger.Warn("dropping analytics batch",
			zap.Int("events", len(batch)),
			zap.Error(err),
		)
	}
}

// Close stops the flush loop and drains the remaining buffer.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	close(t.stop)
	t.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	t.Flush(ctx)
}

// SendAttribution performs the once-per-start install attribution ping.
func (t *Tracker) SendAttribution(ctx context.Context, endpoint, devKey, appleAppID string) error {
	if endpoint == "" {
		endpoint = DefaultAttributionEndpoint
	}

	payload, err := json.Marshal(map[string]string{
		"devKey":   devKey,
		"appId":    appleAppID,
		"platform": "ios",
	})
	if err != nil {
		return fmt.Errorf("encode attribution payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build attribution request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("attribution ping: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("attribution ping: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (t *Tracker) flushLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.Flush(context.Background())
		}
	}
}

type batchRequest struct {
	Token  string  `json:"token"`
	Events []Event `json:"events"`
}

func (t *Tracker) deliver(ctx context.Context, batch []Event) error {
	payload, err := json.Marshal(batchRequest{Token: t.token, Events: batch})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
