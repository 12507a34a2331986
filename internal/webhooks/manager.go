package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alekspetrov/autonomy/internal/logging"
	"github.com/alekspetrov/autonomy/internal/telemetry"
)

// Manager delivers telemetry events to the configured endpoints. It is a
// telemetry.Recorder: Record only enqueues, and the worker started by Start
// does the HTTP work.
type Manager struct {
	config *Config
	client *http.Client
	log    *slog.Logger

	mu      sync.RWMutex // guards config.Endpoints and stopped
	queue   chan telemetry.Event
	stopped bool
	wg      sync.WaitGroup

	dropped    atomic.Int64
	deliveries atomic.Int64
	failures   atomic.Int64
	retries    atomic.Int64
	lastOK     atomic.Int64 // unix nanos
}

// DeliveryResult is the outcome of delivering one event to one endpoint.
type DeliveryResult struct {
	EndpointID string
	Success    bool
	StatusCode int
	Attempts   int
	Error      error
	Duration   time.Duration
}

var _ telemetry.Recorder = (*Manager)(nil)

// NewManager creates a Manager. logger may be nil.
func NewManager(config *Config, logger *slog.Logger) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.WithComponent("webhooks")
	}
	size := config.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Manager{
		config: config,
		client: &http.Client{},
		log:    logger,
		queue:  make(chan telemetry.Event, size),
	}
}

// Record queues event for delivery. A full queue drops it.
func (m *Manager) Record(event telemetry.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped || !m.config.Enabled {
		return
	}
	select {
	case m.queue <- event:
	default:
		m.dropped.Add(1)
		m.log.Warn("webhook queue full, dropping event", slog.String("event", event.Event))
	}
}

// Start runs the delivery worker until Stop.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for event := range m.queue {
			m.Dispatch(ctx, event)
		}
	}()
}

// Stop refuses new events, delivers the queued ones and waits.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.queue)
	m.mu.Unlock()

	m.wg.Wait()
}

// Dropped returns how many events overflowed the queue.
func (m *Manager) Dropped() int64 {
	return m.dropped.Load()
}

// Dispatch delivers event to every subscribed endpoint concurrently and
// waits for all of them.
func (m *Manager) Dispatch(ctx context.Context, event telemetry.Event) []DeliveryResult {
	if !m.config.Enabled {
		return nil
	}
	m.mu.RLock()
	endpoints := slices.Clone(m.config.Endpoints)
	m.mu.RUnlock()

	payload, err := json.Marshal(event)
	if err != nil {
		m.log.Error("failed to marshal event", slog.String("event", event.Event), slog.Any("error", err))
		return nil
	}

	var targets []*EndpointConfig
	for _, ep := range endpoints {
		if ep.Enabled && ep.SubscribesTo(event.Event) {
			targets = append(targets, ep)
		}
	}

	results := make([]DeliveryResult, len(targets))
	var wg sync.WaitGroup
	for i, ep := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.deliver(ctx, ep, event, payload)
		}()
	}
	wg.Wait()
	return results
}

func (m *Manager) deliver(ctx context.Context, ep *EndpointConfig, event telemetry.Event, payload []byte) DeliveryResult {
	start := time.Now()
	retry := ep.GetRetry(m.config.Defaults)
	timeout := ep.GetTimeout(m.config.Defaults)
	signature := Sign(payload, ep.Secret)
	log := m.log.With(slog.String("endpoint", ep.Name), slog.String("event", event.Event))

	res := DeliveryResult{EndpointID: ep.ID}
	delay := retry.InitialDelay
	for res.Attempts < retry.MaxAttempts {
		res.Attempts++
		res.StatusCode, res.Error = m.post(ctx, timeout, ep, event, payload, signature)
		if res.Error == nil {
			res.Success = true
			res.Duration = time.Since(start)
			m.deliveries.Add(1)
			m.lastOK.Store(time.Now().UnixNano())
			log.Debug("webhook delivered", slog.Int("status", res.StatusCode))
			return res
		}
		log.Warn("webhook delivery failed", slog.Int("attempt", res.Attempts), slog.Any("error", res.Error))

		if res.Attempts >= retry.MaxAttempts {
			break
		}
		m.retries.Add(1)
		select {
		case <-ctx.Done():
			res.Error = ctx.Err()
			res.Duration = time.Since(start)
			m.failures.Add(1)
			return res
		case <-time.After(delay):
		}
		delay = retry.next(delay)
	}

	res.Duration = time.Since(start)
	m.failures.Add(1)
	log.Error("webhook delivery exhausted retries", slog.Int("attempts", res.Attempts), slog.Any("error", res.Error))
	return res
}

// post makes one delivery attempt. Any non-2xx status is an error.
func (m *Manager) post(ctx context.Context, timeout time.Duration, ep *EndpointConfig, event telemetry.Event, payload []byte, signature string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Autonomy-Webhooks/1.0")
	req.Header.Set("X-Autonomy-Event", event.Event)
	req.Header.Set("X-Autonomy-Delivery", event.ID)
	req.Header.Set("X-Autonomy-Timestamp", event.Timestamp.Format(time.RFC3339))
	req.Header.Set("X-Autonomy-Signature", signature)
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Sign returns the X-Autonomy-Signature value for payload, or "" without a
// secret.
func Sign(payload []byte, secret string) string {
	if secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a delivery on the receiving side.
func VerifySignature(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(payload, secret)))
}

// AddEndpoint registers an endpoint, generating its ID when empty.
func (m *Manager) AddEndpoint(ep *EndpointConfig) {
	if ep.ID == "" {
		ep.ID = "ep_" + uuid.NewString()[:8]
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Endpoints = append(m.config.Endpoints, ep)
}

// RemoveEndpoint drops the endpoint with id and reports whether it existed.
func (m *Manager) RemoveEndpoint(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.config.Endpoints)
	m.config.Endpoints = slices.DeleteFunc(m.config.Endpoints, func(ep *EndpointConfig) bool { return ep.ID == id })
	return len(m.config.Endpoints) != n
}

// Stats returns delivery counters and the time of the last success.
func (m *Manager) Stats() (deliveries, failures, retries int64, lastDelivery time.Time) {
	if n := m.lastOK.Load(); n != 0 {
		lastDelivery = time.Unix(0, n)
	}
	return m.deliveries.Load(), m.failures.Load(), m.retries.Load(), lastDelivery
}
