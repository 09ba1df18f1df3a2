package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/DanielPopoola/fetchcache/internal/application"
	"github.com/DanielPopoola/fetchcache/internal/config"
	"github.com/DanielPopoola/fetchcache/internal/domain"
	"github.com/DanielPopoola/fetchcache/internal/metrics"
)

type Options struct {
	CachePrefix   string
	CacheTTL      time.Duration
	DedupInFlight bool
	// AuthTokenKey names a store key holding a bearer token. Empty disables it.
	AuthTokenKey string

	Now     func() time.Time
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func OptionsFromConfig(cfg config.ClientConfig, m *metrics.Metrics, logger *slog.Logger) Options {
	return Options{
		CachePrefix:   cfg.CachePrefix,
		CacheTTL:      cfg.CacheTTL,
		DedupInFlight: cfg.DedupInFlight,
		AuthTokenKey:  cfg.AuthTokenKey,
		Metrics:       m,
		Logger:        logger,
	}
}

// FetchService serves reads from the network when it can and from the store
// when it must. Writes go straight to the network.
type FetchService struct {
	transport application.Transport
	store     application.Store
	prober    application.ConnectivityProber

	prefix       string
	ttl          time.Duration
	dedup        bool
	authTokenKey string
	group        singleflight.Group

	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewFetchService(
	transport application.Transport,
	store application.Store,
	prober application.ConnectivityProber,
	opts Options,
) *FetchService {
	if opts.CachePrefix == "" {
		opts.CachePrefix = domain.DefaultCachePrefix
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = domain.DefaultCacheTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &FetchService{
		transport:    transport,
		store:        store,
		prober:       prober,
		prefix:       opts.CachePrefix,
		ttl:          opts.CacheTTL,
		dedup:        opts.DedupInFlight,
		authTokenKey: opts.AuthTokenKey,
		now:          opts.Now,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
	}
}

type requestOptions struct {
	header  http.Header
	timeout time.Duration
}

func newRequestOptions(opts []RequestOption) requestOptions {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}
	return ro
}

// dedupIgnoredHeaders differ per call without changing the upstream answer.
var dedupIgnoredHeaders = map[string]bool{
	"X-Request-Id": true,
}

// fingerprint identifies options that change what a request sends, so calls
// with different headers or timeouts never share one upstream round trip.
func (o requestOptions) fingerprint() string {
	names := make([]string, 0, len(o.header))
	for name := range o.header {
		if !dedupIgnoredHeaders[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(o.timeout.String())
	for _, name := range names {
		b.WriteString("\n")
		b.WriteString(name)
		b.WriteString(":")
		b.WriteString(strings.Join(o.header[name], ","))
	}
	return b.String()
}

// RequestOption adjusts a single call. Options never affect the cache key.
type RequestOption func(*requestOptions)

func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.header == nil {
			o.header = http.Header{}
		}
		o.header.Set(key, value)
	}
}

func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.timeout = d
	}
}

func (s *FetchService) Get(ctx context.Context, path string, params domain.Params, opts ...RequestOption) (json.RawMessage, error) {
	result, err := s.GetResult(ctx, path, params, opts...)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

// GetResult is Get with the origin of the payload attached.
func (s *FetchService) GetResult(ctx context.Context, path string, params domain.Params, opts ...RequestOption) (*domain.FetchResult, error) {
	if path == "" {
		return nil, domain.NewInvalidPathError()
	}
	key, err := domain.CacheKey(s.prefix, path, params)
	if err != nil {
		return nil, domain.NewInvalidParamsError(err)
	}

	online := s.prober.IsOnline(ctx)
	cached := s.lookup(ctx, key)

	if !online {
		if cached == nil {
			s.metrics.Miss()
			return nil, domain.NewOfflineNoCacheError()
		}
		s.metrics.Hit()
		s.metrics.Fallback(metrics.ReasonOffline)
		s.logger.Debug("offline, serving cached response", "path", path, "stored_at", cached.StoredTime())
		return cachedResult(cached), nil
	}

	result, err := s.fetch(ctx, key, path, params, opts)
	if err == nil {
		return result, nil
	}

	// A cancelled caller has nobody left to serve. A spent deadline is a
	// timeout and still takes the fallback; the entry is already in hand.
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, err
	}

	if cached == nil {
		s.logger.Debug("request failed, nothing cached", "path", path, "error", err)
		s.metrics.Miss()
		return nil, err
	}

	s.metrics.Hit()
	s.metrics.Fallback(metrics.ReasonError)
	s.logger.Warn("request failed, serving cached response",
		"path", path,
		"stored_at", cached.StoredTime(),
		"error", err)
	return cachedResult(cached), nil
}

func cachedResult(entry *domain.CacheEntry) *domain.FetchResult {
	return &domain.FetchResult{
		Data:     entry.Payload,
		Source:   domain.SourceCache,
		StoredAt: entry.StoredTime(),
	}
}

// lookup returns the fresh entry under key, or nil. Expired and malformed
// entries are removed on sight.
func (s *FetchService) lookup(ctx context.Context, key string) *domain.CacheEntry {
	raw, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.metrics.StoreError(metrics.OpGet)
		s.logger.Warn("cache read failed", "key", key, "error", err)
		return nil
	}
	if !found {
		return nil
	}

	entry, err := domain.DecodeCacheEntry(raw)
	if err != nil {
		s.logger.Warn("discarding malformed cache entry", "key", key, "error", err)
		s.evict(ctx, key)
		return nil
	}

	if entry.Expired(s.now(), s.ttl) {
		s.logger.Debug("cache entry expired", "key", key, "stored_at", entry.StoredTime())
		s.evict(ctx, key)
		return nil
	}

	return entry
}

func (s *FetchService) evict(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		s.metrics.StoreError(metrics.OpDelete)
		s.logger.Warn("failed to evict cache entry", "key", key, "error", err)
		return
	}
	s.metrics.Evicted()
}

func (s *FetchService) fetch(
	ctx context.Context,
	key, path string,
	params domain.Params,
	opts []RequestOption,
) (*domain.FetchResult, error) {
	ro := newRequestOptions(opts)

	do := func(ctx context.Context) (*domain.FetchResult, error) {
		resp, err := s.send(ctx, http.MethodGet, path, params, nil, ro)
		if err != nil {
			return nil, err
		}

		now := s.now()
		s.persist(ctx, key, resp.Body, now)

		return &domain.FetchResult{
			Data:     resp.Body,
			Source:   domain.SourceNetwork,
			StoredAt: now,
		}, nil
	}

	if !s.dedup {
		return do(ctx)
	}

	// The shared call must not die with whichever caller started it; every
	// caller still stops waiting when its own context ends.
	ch := s.group.DoChan(key+"\x00"+ro.fingerprint(), func() (any, error) {
		return do(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.FetchResult), nil
	}
}

func (s *FetchService) persist(ctx context.Context, key string, payload json.RawMessage, now time.Time) {
	raw, err := domain.NewCacheEntry(payload, now).Encode()
	if err == nil {
		err = s.store.Set(ctx, key, raw)
	}
	if err != nil {
		s.metrics.StoreError(metrics.OpSet)
		s.logger.Warn("failed to cache response", "key", key, "error", err)
	}
}

func (s *FetchService) Post(ctx context.Context, path string, body any, opts ...RequestOption) (json.RawMessage, error) {
	return s.write(ctx, http.MethodPost, path, body, opts)
}

func (s *FetchService) Put(ctx context.Context, path string, body any, opts ...RequestOption) (json.RawMessage, error) {
	return s.write(ctx, http.MethodPut, path, body, opts)
}

func (s *FetchService) Delete(ctx context.Context, path string, opts ...RequestOption) (json.RawMessage, error) {
	return s.write(ctx, http.MethodDelete, path, nil, opts)
}

func (s *FetchService) write(ctx context.Context, method, path string, body any, opts []RequestOption) (json.RawMessage, error) {
	if path == "" {
		return nil, domain.NewInvalidPathError()
	}
	resp, err := s.send(ctx, method, path, nil, body, newRequestOptions(opts))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (s *FetchService) send(
	ctx context.Context,
	method, path string,
	params domain.Params,
	body any,
	ro requestOptions,
) (*domain.Response, error) {
	req := &domain.Request{
		Method:  method,
		Path:    path,
		Params:  params,
		Body:    body,
		Header:  s.authorize(ctx, ro.header),
		Timeout: ro.timeout,
	}

	resp, err := s.transport.Do(ctx, req)
	s.metrics.Request(method, resultCode(resp, err))
	return resp, err
}

// authorize adds the stored bearer token unless the caller set Authorization
// already.
func (s *FetchService) authorize(ctx context.Context, header http.Header) http.Header {
	if s.authTokenKey == "" || header.Get("Authorization") != "" {
		return header
	}

	token, found, err := s.store.Get(ctx, s.authTokenKey)
	if err != nil {
		s.metrics.StoreError(metrics.OpGet)
		s.logger.Warn("failed to read auth token", "key", s.authTokenKey, "error", err)
		return header
	}
	token = strings.TrimSpace(token)
	if !found || token == "" {
		return header
	}

	out := header.Clone()
	if out == nil {
		out = http.Header{}
	}
	out.Set("Authorization", "Bearer "+token)
	return out
}

func resultCode(resp *domain.Response, err error) string {
	if err == nil {
		return strconv.Itoa(resp.StatusCode)
	}
	if apiErr, ok := domain.IsAPIError(err); ok {
		return apiErr.Code
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "error"
}

// Invalidate drops the cached entry for path and params. It never fails.
func (s *FetchService) Invalidate(ctx context.Context, path string, params domain.Params) {
	key, err := domain.CacheKey(s.prefix, path, params)
	if err != nil {
		s.logger.Warn("cannot invalidate, bad params", "path", path, "error", err)
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.metrics.StoreError(metrics.OpDelete)
		s.logger.Warn("failed to invalidate cache entry", "key", key, "error", err)
	}
}

// ClearAll removes every key under the cache prefix and leaves the rest of the
// store alone. The batch is not atomic.
func (s *FetchService) ClearAll(ctx context.Context) {
	keys, err := s.store.Keys(ctx)
	if err != nil {
		s.metrics.StoreError(metrics.OpKeys)
		s.logger.Warn("failed to list cache keys", "error", err)
		return
	}

	cacheKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasPrefix(key, s.prefix) {
			cacheKeys = append(cacheKeys, key)
		}
	}
	if len(cacheKeys) == 0 {
		return
	}

	if err := s.store.DeleteMany(ctx, cacheKeys); err != nil {
		s.metrics.StoreError(metrics.OpDelete)
		s.logger.Warn("failed to clear cache", "keys", len(cacheKeys), "error", err)
		return
	}
	s.logger.Info("cache cleared", "keys", len(cacheKeys))
}
