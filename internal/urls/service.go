// Package urls stores short-link records and resolves them.
package urls

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"shortener/internal/shortcode"
	"shortener/internal/storage"
	"shortener/pkg/errors"
	"shortener/pkg/metrics"
)

// DefaultTTL is the lifetime of a record
const DefaultTTL = 30 * 24 * time.Hour

var (
	// ErrNotFound is returned for codes with no live record
	ErrNotFound = errors.NewError(errors.ErrorTypeNotFound, "short URL not found")
	// ErrCorrupt is returned when a stored record cannot be decoded
	ErrCorrupt = errors.NewError(errors.ErrorTypeInternal, "invalid URL data format")
)

// Record is the stored form of a short link
type Record struct {
	OriginalURL string    `json:"originalUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	Clicks      int64     `json:"clicks"`
}

// Allocator produces unused short codes
type Allocator interface {
	Allocate(ctx context.Context) (string, error)
}

// Service manages records in the key-value store
type Service struct {
	store     storage.KeyValueStore
	allocator Allocator
	ttl       time.Duration
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// mu orders clicks.Add against Close so no update is scheduled once
	// Close has started waiting
	mu     sync.Mutex
	closed bool
	clicks sync.WaitGroup
}

// Option configures a Service
type Option func(*Service)

// WithTTL sets the record lifetime
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithStoreTimeout bounds each store call
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithClock overrides the time source for creation timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records record operations in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a record service
func NewService(store storage.KeyValueStore, allocator Allocator, opts ...Option) *Service {
	s := &Service{
		store:     store,
		allocator: allocator,
		ttl:       DefaultTTL,
		timeout:   100 * time.Millisecond,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "urls")
	return s
}

// Create allocates a code for originalURL and stores its record
func (s *Service) Create(ctx context.Context, originalURL string) (string, Record, error) {
	code, err := s.allocator.Allocate(ctx)
	if err != nil {
		return "", Record{}, err
	}

	rec := Record{
		OriginalURL: originalURL,
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.put(ctx, code, rec, s.ttl); err != nil {
		return "", Record{}, err
	}

	if s.metrics != nil {
		s.metrics.URLsCreated.Inc()
	}
	return code, rec, nil
}

// Get returns the record for code
func (s *Service) Get(ctx context.Context, code string) (Record, error) {
	tctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, ok, err := s.store.Get(tctx, shortcode.URLKey(code))
	s.metrics.ObserveStore("get", start)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNotFound
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		s.logger.Error("Error parsing URL data", "code", code, "error", err)
		return Record{}, errors.NewError(errors.ErrorTypeInternal, ErrCorrupt.Message).
			WithDetail("code", code).
			WithCause(err)
	}
	return rec, nil
}

// Resolve returns the record for code and counts a click. The click is
// written in the background; failures are logged and never surface.
func (s *Service) Resolve(ctx context.Context, code string) (Record, error) {
	rec, err := s.Get(ctx, code)
	if err != nil {
		if s.metrics != nil {
			result := "error"
			if errors.Is(err, ErrNotFound) {
				result = "not_found"
			}
			s.metrics.URLRedirects.WithLabelValues(result).Inc()
		}
		return Record{}, err
	}
	if s.metrics != nil {
		s.metrics.URLRedirects.WithLabelValues("found").Inc()
	}

	updated := rec
	updated.Clicks++

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("Service closed, click not recorded", "code", code)
		if s.metrics != nil {
			s.metrics.ClickUpdates.WithLabelValues("skipped").Inc()
		}
		return rec, nil
	}
	s.clicks.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.clicks.Done()
		s.recordClick(context.WithoutCancel(ctx), code, updated)
	}()

	return rec, nil
}

// recordClick writes the incremented record back, keeping the remaining
// lifetime of the key.
func (s *Service) recordClick(ctx context.Context, code string, rec Record) {
	ttl := s.ttl
	tctx, cancel := storage.WithTimeout(ctx, s.timeout)
	remaining, err := s.store.TTL(tctx, shortcode.URLKey(code))
	cancel()
	if err == nil {
		switch remaining.State {
		case storage.TTLAbsent:
			// Deleted or expired since it was read
			return
		case storage.TTLExpiring:
			ttl = remaining.Remaining
		}
	}

	if err == nil {
		err = s.put(ctx, code, rec, ttl)
	}

	result := "ok"
	if err != nil {
		result = "error"
		s.logger.Error("Error updating click count", "code", code, "error", err)
	}
	if s.metrics != nil {
		s.metrics.ClickUpdates.WithLabelValues(result).Inc()
	}
}

// Delete removes the record for code
func (s *Service) Delete(ctx context.Context, code string) error {
	tctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	deleted, err := s.store.Delete(tctx, shortcode.URLKey(code))
	s.metrics.ObserveStore("delete", start)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	if s.metrics != nil {
		s.metrics.URLsDeleted.Inc()
	}
	return nil
}

// IsCorrupt reports whether err comes from a stored record that could not
// be decoded
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}

// Wait blocks until background click updates have finished
func (s *Service) Wait() {
	s.clicks.Wait()
}

// Close stops scheduling click updates and waits for the ones in flight.
// Resolve keeps answering afterwards but no longer counts clicks.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.clicks.Wait()
}

func (s *Service) put(ctx context.Context, code string, rec Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.NewError(errors.ErrorTypeInternal, "failed to encode URL record").WithCause(err)
	}

	tctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	defer s.metrics.ObserveStore("set", start)
	return s.store.Set(tctx, shortcode.URLKey(code), string(data), ttl)
}
