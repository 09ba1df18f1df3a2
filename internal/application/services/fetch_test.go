package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DanielPopoola/fetchcache/internal/application/mocks"
	"github.com/DanielPopoola/fetchcache/internal/application/services"
	"github.com/DanielPopoola/fetchcache/internal/domain"
	"github.com/DanielPopoola/fetchcache/internal/infrastructure/persistence/memory"
	"github.com/DanielPopoola/fetchcache/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type FetchServiceTestSuite struct {
	suite.Suite
	now       time.Time
	store     *memory.Store
	transport *mocks.MockTransport
	prober    *mocks.MockConnectivityProber
	metrics   *metrics.Metrics
	service   *services.FetchService
}

func TestFetchServiceSuite(t *testing.T) {
	suite.Run(t, new(FetchServiceTestSuite))
}

// SetupTest runs before each test
func (suite *FetchServiceTestSuite) SetupTest() {
	var err error
	suite.now = t0
	suite.store, err = memory.NewStore(64, nil)
	suite.Require().NoError(err)
	suite.transport = mocks.NewMockTransport(suite.T())
	suite.prober = mocks.NewMockConnectivityProber(suite.T())
	suite.metrics = metrics.New()
	suite.service = suite.newService(services.Options{})
}

func (suite *FetchServiceTestSuite) newService(opts services.Options) *services.FetchService {
	opts.Now = func() time.Time { return suite.now }
	opts.Metrics = suite.metrics
	opts.Logger = discardLogger
	return services.NewFetchService(suite.transport, suite.store, suite.prober, opts)
}

func (suite *FetchServiceTestSuite) online(v bool) {
	suite.prober.EXPECT().IsOnline(mock.Anything).Return(v).Once()
}

func (suite *FetchServiceTestSuite) respond(body string) {
	suite.transport.EXPECT().
		Do(mock.Anything, mock.MatchedBy(func(r *domain.Request) bool { return r.Method == http.MethodGet })).
		Return(&domain.Response{StatusCode: 200, Body: json.RawMessage(body)}, nil).
		Once()
}

func (suite *FetchServiceTestSuite) fail(err error) {
	suite.transport.EXPECT().
		Do(mock.Anything, mock.Anything).
		Return(nil, err).
		Once()
}

func (suite *FetchServiceTestSuite) seed(key, payload string, storedAt time.Time) {
	raw, err := domain.NewCacheEntry(json.RawMessage(payload), storedAt).Encode()
	suite.Require().NoError(err)
	suite.Require().NoError(suite.store.Set(context.Background(), key, raw))
}

func (suite *FetchServiceTestSuite) storedEntry(key string) *domain.CacheEntry {
	raw, found, err := suite.store.Get(context.Background(), key)
	suite.Require().NoError(err)
	if !found {
		return nil
	}
	entry, err := domain.DecodeCacheEntry(raw)
	suite.Require().NoError(err)
	return entry
}

// ============================================================================
// CACHE POLICY
// ============================================================================

func (suite *FetchServiceTestSuite) Test_Get_OnlineSuccessCachesResponse() {
	t := suite.T()
	ctx := context.Background()

	suite.online(true)
	suite.respond(`{"items":[1,2,3]}`)

	result, err := suite.service.GetResult(ctx, "/feed", domain.Params{"page": 1})
	require.NoError(t, err)

	assert.JSONEq(t, `{"items":[1,2,3]}`, string(result.Data))
	assert.Equal(t, domain.SourceNetwork, result.Source)
	assert.False(t, result.FromCache())

	entry := suite.storedEntry(`@api_cache_/feed_{"page":1}`)
	require.NotNil(t, entry)
	assert.JSONEq(t, `{"items":[1,2,3]}`, string(entry.Payload))
	assert.Equal(t, t0.UnixMilli(), entry.StoredAt)
}

func (suite *FetchServiceTestSuite) Test_Get_OfflineServesEntryJustInsideTTL() {
	t := suite.T()
	ctx := context.Background()

	suite.seed("@api_cache_/feed_", `{"v":1}`, t0)
	suite.now = t0.Add(time.Hour - time.Millisecond)

	suite.online(false)

	result, err := suite.service.GetResult(ctx, "/feed", nil)
	require.NoError(t, err)

	assert.JSONEq(t, `{"v":1}`, string(result.Data))
	assert.True(t, result.FromCache())
	assert.Equal(t, t0.UnixMilli(), result.StoredAt.UnixMilli())
	assert.Equal(t, 1.0, testutil.ToFloat64(suite.metrics.Fallbacks.WithLabelValues(metrics.ReasonOffline)))
}

func (suite *FetchServiceTestSuite) Test_Get_EntryAgedExactlyTTLIsFresh() {
	t := suite.T()

	suite.seed("@api_cache_/feed_", `{"v":1}`, t0)
	suite.now = t0.Add(time.Hour)

	suite.online(false)

	data, err := suite.service.Get(context.Background(), "/feed", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(data))
}

func (suite *FetchServiceTestSuite) Test_Get_ExpiredEntryOnlineRefreshes() {
	t := suite.T()
	ctx := context.Background()

	suite.seed("@api_cache_/feed_", `{"v":"old"}`, t0)
	suite.now = t0.Add(time.Hour + time.Millisecond)

	suite.online(true)
	suite.respond(`{"v":"new"}`)

	data, err := suite.service.Get(ctx, "/feed", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"new"}`, string(data))

	entry := suite.storedEntry("@api_cache_/feed_")
	require.NotNil(t, entry)
	assert.JSONEq(t, `{"v":"new"}`, string(entry.Payload))
	assert.Equal(t, suite.now.UnixMilli(), entry.StoredAt)
}

func (suite *FetchServiceTestSuite) Test_Get_ExpiredEntryOfflineFailsAndIsPurged() {
	t := suite.T()
	ctx := context.Background()

	suite.seed("@api_cache_/feed_", `{"v":"old"}`, t0)
	suite.now = t0.Add(time.Hour + time.Millisecond)

	suite.online(false)

	_, err := suite.service.Get(ctx, "/feed", nil)
	require.Error(t, err)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeOfflineNoCache))

	assert.Nil(t, suite.storedEntry("@api_cache_/feed_"))
	assert.Equal(t, 1.0, testutil.ToFloat64(suite.metrics.CacheEvictions))
}

func (suite *FetchServiceTestSuite) Test_Get_OfflineWithoutCache() {
	t := suite.T()

	suite.online(false)

	_, err := suite.service.Get(context.Background(), "/feed", nil)

	apiErr, ok := domain.IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrCodeOfflineNoCache, apiErr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(suite.metrics.CacheMisses))
}

func (suite *FetchServiceTestSuite) Test_Get_FallsBackOnServerErrorWhileOnline() {
	t := suite.T()

	suite.seed("@api_cache_/feed_", `{"v":"cached"}`, t0)
	suite.now = t0.Add(10 * time.Minute)

	suite.online(true)
	suite.fail(domain.NewStatusError(500, ""))

	result, err := suite.service.GetResult(context.Background(), "/feed", nil)
	require.NoError(t, err)

	assert.JSONEq(t, `{"v":"cached"}`, string(result.Data))
	assert.True(t, result.FromCache())
	assert.Equal(t, 1.0, testutil.ToFloat64(suite.metrics.Fallbacks.WithLabelValues(metrics.ReasonError)))

	// A failed request must not touch the stored entry.
	entry := suite.storedEntry("@api_cache_/feed_")
	require.NotNil(t, entry)
	assert.Equal(t, t0.UnixMilli(), entry.StoredAt)
}

func (suite *FetchServiceTestSuite) Test_Get_FallsBackOnNetworkError() {
	t := suite.T()

	suite.seed("@api_cache_/feed_", `[1]`, t0)

	suite.online(true)
	suite.fail(domain.NewRequestFailedError(context.DeadlineExceeded))

	data, err := suite.service.Get(context.Background(), "/feed", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[1]`, string(data))
}

func (suite *FetchServiceTestSuite) Test_Get_NotFoundWithoutCache() {
	t := suite.T()

	suite.online(true)
	suite.fail(domain.NewStatusError(404, ""))

	_, err := suite.service.Get(context.Background(), "/missing", nil)

	apiErr, ok := domain.IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "404", apiErr.Code)
	assert.Equal(t, "The requested resource was not found", apiErr.Message)
}

func (suite *FetchServiceTestSuite) Test_Get_ParamOrderDoesNotMatter() {
	t := suite.T()
	ctx := context.Background()

	first := domain.Params{}
	first["a"] = 1
	first["b"] = 2

	second := domain.Params{}
	second["b"] = 2
	second["a"] = 1

	suite.online(true)
	suite.respond(`{"v":1}`)

	_, err := suite.service.Get(ctx, "/search", first)
	require.NoError(t, err)

	suite.online(false)

	data, err := suite.service.Get(ctx, "/search", second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(data))

	keys, err := suite.store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{`@api_cache_/search_{"a":1,"b":2}`}, keys)
}

func (suite *FetchServiceTestSuite) Test_Get_MalformedEntryIsAMiss() {
	t := suite.T()
	ctx := context.Background()

	require.NoError(t, suite.store.Set(ctx, "@api_cache_/feed_", "not json"))

	suite.online(false)

	_, err := suite.service.Get(ctx, "/feed", nil)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeOfflineNoCache))
	assert.Nil(t, suite.storedEntry("@api_cache_/feed_"))
}

func (suite *FetchServiceTestSuite) Test_Get_CallerCancellationSkipsFallback() {
	t := suite.T()

	suite.seed("@api_cache_/feed_", `{"v":1}`, t0)

	ctx, cancel := context.WithCancel(context.Background())

	suite.online(true)
	suite.transport.EXPECT().
		Do(mock.Anything, mock.Anything).
		Run(func(context.Context, *domain.Request) { cancel() }).
		Return(nil, context.Canceled).
		Once()

	_, err := suite.service.Get(ctx, "/feed", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func (suite *FetchServiceTestSuite) Test_Get_SpentDeadlineStillFallsBack() {
	t := suite.T()

	suite.seed("@api_cache_/feed_", `{"v":1}`, t0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	suite.online(true)
	suite.transport.EXPECT().
		Do(mock.Anything, mock.Anything).
		RunAndReturn(func(ctx context.Context, _ *domain.Request) (*domain.Response, error) {
			<-ctx.Done()
			return nil, domain.NewRequestFailedError(ctx.Err())
		}).
		Once()

	result, err := suite.service.GetResult(ctx, "/feed", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceCache, result.Source)
	assert.JSONEq(t, `{"v":1}`, string(result.Data))
}

// ============================================================================
// INPUT VALIDATION
// ============================================================================

func (suite *FetchServiceTestSuite) Test_Get_RejectsEmptyPath() {
	_, err := suite.service.Get(context.Background(), "", nil)
	suite.True(domain.IsErrorCode(err, domain.ErrCodeInvalidPath))
}

func (suite *FetchServiceTestSuite) Test_Get_RejectsNonScalarParams() {
	_, err := suite.service.Get(context.Background(), "/feed", domain.Params{"ids": []int{1, 2}})
	suite.True(domain.IsErrorCode(err, domain.ErrCodeInvalidParams))
}

// ============================================================================
// REQUEST SHAPING
// ============================================================================

func (suite *FetchServiceTestSuite) Test_Get_PassesOptionsAndParamsToTransport() {
	t := suite.T()

	suite.online(true)
	suite.transport.EXPECT().
		Do(mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, req *domain.Request) (*domain.Response, error) {
			assert.Equal(t, http.MethodGet, req.Method)
			assert.Equal(t, "/feed", req.Path)
			assert.Equal(t, domain.Params{"q": "go"}, req.Params)
			assert.Equal(t, "fr", req.Header.Get("Accept-Language"))
			assert.Equal(t, 3*time.Second, req.Timeout)
			return &domain.Response{StatusCode: 200, Body: json.RawMessage(`{}`)}, nil
		}).
		Once()

	_, err := suite.service.Get(context.Background(), "/feed", domain.Params{"q": "go"},
		services.WithHeader("Accept-Language", "fr"),
		services.WithTimeout(3*time.Second),
	)
	require.NoError(t, err)

	// Options are not part of the key.
	assert.NotNil(t, suite.storedEntry(`@api_cache_/feed_{"q":"go"}`))
}

func (suite *FetchServiceTestSuite) Test_AuthTokenFromStore() {
	t := suite.T()
	ctx := context.Background()
	service := suite.newService(services.Options{AuthTokenKey: "auth_token"})

	require.NoError(t, suite.store.Set(ctx, "auth_token", "tok-123"))

	suite.transport.EXPECT().
		Do(mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, req *domain.Request) (*domain.Response, error) {
			assert.Equal(t, "Bearer tok-123", req.Header.Get("Authorization"))
			return &domain.Response{StatusCode: 201, Body: json.RawMessage(`{"id":1}`)}, nil
		}).
		Once()

	_, err := service.Post(ctx, "/orders", map[string]any{"sku": "A1"})
	require.NoError(t, err)
}

func (suite *FetchServiceTestSuite) Test_AuthTokenAbsentSendsNoHeader() {
	t := suite.T()
	service := suite.newService(services.Options{AuthTokenKey: "auth_token"})

	suite.transport.EXPECT().
		Do(mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, req *domain.Request) (*domain.Response, error) {
			assert.Empty(t, req.Header.Get("Authorization"))
			return &domain.Response{StatusCode: 200, Body: json.RawMessage(`null`)}, nil
		}).
		Once()

	_, err := service.Delete(context.Background(), "/orders/1")
	require.NoError(t, err)
}

// ============================================================================
// INVALIDATION
// ============================================================================

func (suite *FetchServiceTestSuite) Test_Invalidate_RemovesOnlyTargetEntry() {
	t := suite.T()
	ctx := context.Background()

	suite.seed("@api_cache_/a_", `1`, t0)
	suite.seed(`@api_cache_/b_{"x":true}`, `2`, t0)

	suite.service.Invalidate(ctx, "/b", domain.Params{"x": true})

	assert.Nil(t, suite.storedEntry(`@api_cache_/b_{"x":true}`))

	suite.online(false)
	data, err := suite.service.Get(ctx, "/a", nil)
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
}

func (suite *FetchServiceTestSuite) Test_Invalidate_MissingKeyAndBadParamsAreNoops() {
	suite.NotPanics(func() {
		suite.service.Invalidate(context.Background(), "/nothing", nil)
		suite.service.Invalidate(context.Background(), "/nothing", domain.Params{"bad": struct{}{}})
	})
}

func (suite *FetchServiceTestSuite) Test_ClearAll_KeepsUnrelatedKeys() {
	t := suite.T()
	ctx := context.Background()

	suite.seed("@api_cache_/a_", `1`, t0)
	suite.seed("@api_cache_/b_", `2`, t0)
	require.NoError(t, suite.store.Set(ctx, "auth_token", "secret"))
	require.NoError(t, suite.store.Set(ctx, "settings", `{"theme":"dark"}`))

	suite.service.ClearAll(ctx)

	keys, err := suite.store.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"auth_token", "settings"}, keys)
}

func (suite *FetchServiceTestSuite) Test_ClearAll_CustomPrefix() {
	t := suite.T()
	ctx := context.Background()
	service := suite.newService(services.Options{CachePrefix: "v2:"})

	require.NoError(t, suite.store.Set(ctx, "v2:/a_", "x"))
	suite.seed("@api_cache_/a_", `1`, t0)

	service.ClearAll(ctx)

	keys, err := suite.store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"@api_cache_/a_"}, keys)
}

// ============================================================================
// TYPED HELPERS
// ============================================================================

type feed struct {
	Items []int `json:"items"`
}

func (suite *FetchServiceTestSuite) Test_TypedGet() {
	t := suite.T()

	suite.online(true)
	suite.respond(`{"items":[4,5]}`)

	got, err := services.Get[feed](context.Background(), suite.service, "/feed", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, got.Items)
}

func (suite *FetchServiceTestSuite) Test_TypedGetResultOfFromCache() {
	t := suite.T()

	suite.seed("@api_cache_/feed_", `{"items":[9]}`, t0)
	suite.online(false)

	got, err := services.GetResultOf[feed](context.Background(), suite.service, "/feed", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{9}, got.Data.Items)
	assert.Equal(t, domain.SourceCache, got.Source)
	assert.True(t, got.StoredAt.Equal(time.UnixMilli(t0.UnixMilli())))
}

func (suite *FetchServiceTestSuite) Test_TypedDecodeFailure() {
	t := suite.T()

	suite.online(true)
	suite.respond(`{"items":"nope"}`)

	_, err := services.Get[feed](context.Background(), suite.service, "/feed", nil)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeDecodeFailed))
}

func (suite *FetchServiceTestSuite) Test_TypedPut() {
	t := suite.T()

	suite.transport.EXPECT().
		Do(mock.Anything, mock.MatchedBy(func(r *domain.Request) bool { return r.Method == http.MethodPut })).
		Return(&domain.Response{StatusCode: 200, Body: json.RawMessage(`{"items":[1]}`)}, nil).
		Once()

	got, err := services.Put[feed](context.Background(), suite.service, "/feed/1", feed{Items: []int{1}})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, got.Items)
}

// ============================================================================
// WRITES AND STORE FAILURES
// ============================================================================

func TestFetchService_WritesNeverTouchStore(t *testing.T) {
	store := mocks.NewMockStore(t)
	transport := mocks.NewMockTransport(t)
	prober := mocks.NewMockConnectivityProber(t)
	service := services.NewFetchService(transport, store, prober, services.Options{Logger: discardLogger})

	transport.EXPECT().
		Do(mock.Anything, mock.Anything).
		Return(nil, domain.NewNetworkError(errors.New("connection refused"))).
		Times(3)

	_, err := service.Post(context.Background(), "/orders", map[string]any{"sku": "A1"})
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeNetwork))

	_, err = service.Put(context.Background(), "/orders/1", nil)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeNetwork))

	_, err = service.Delete(context.Background(), "/orders/1")
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeNetwork))
}

func TestFetchService_PersistFailureDoesNotFailGet(t *testing.T) {
	store := mocks.NewMockStore(t)
	transport := mocks.NewMockTransport(t)
	prober := mocks.NewMockConnectivityProber(t)
	m := metrics.New()
	service := services.NewFetchService(transport, store, prober, services.Options{
		Metrics: m,
		Logger:  discardLogger,
	})

	prober.EXPECT().IsOnline(mock.Anything).Return(true).Once()
	store.EXPECT().Get(mock.Anything, "@api_cache_/feed_").Return("", false, nil).Once()
	transport.EXPECT().
		Do(mock.Anything, mock.Anything).
		Return(&domain.Response{StatusCode: 200, Body: json.RawMessage(`{"v":1}`)}, nil).
		Once()
	store.EXPECT().Set(mock.Anything, "@api_cache_/feed_", mock.Anything).Return(errors.New("disk full")).Once()

	data, err := service.Get(context.Background(), "/feed", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(data))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues(metrics.OpSet)))
}

func TestFetchService_StoreReadFailureIsAMiss(t *testing.T) {
	store := mocks.NewMockStore(t)
	transport := mocks.NewMockTransport(t)
	prober := mocks.NewMockConnectivityProber(t)
	service := services.NewFetchService(transport, store, prober, services.Options{Logger: discardLogger})

	prober.EXPECT().IsOnline(mock.Anything).Return(false).Once()
	store.EXPECT().Get(mock.Anything, "@api_cache_/feed_").Return("", false, errors.New("connection reset")).Once()

	_, err := service.Get(context.Background(), "/feed", nil)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeOfflineNoCache))
}

func TestFetchService_ClearAllSwallowsFailures(t *testing.T) {
	store := mocks.NewMockStore(t)
	service := services.NewFetchService(mocks.NewMockTransport(t), store, mocks.NewMockConnectivityProber(t),
		services.Options{Logger: discardLogger})

	store.EXPECT().Keys(mock.Anything).Return([]string{"@api_cache_/a_", "other"}, nil).Once()
	store.EXPECT().DeleteMany(mock.Anything, []string{"@api_cache_/a_"}).Return(errors.New("timeout")).Once()

	assert.NotPanics(t, func() { service.ClearAll(context.Background()) })
}

func TestFetchService_InvalidateSwallowsFailures(t *testing.T) {
	store := mocks.NewMockStore(t)
	service := services.NewFetchService(mocks.NewMockTransport(t), store, mocks.NewMockConnectivityProber(t),
		services.Options{Logger: discardLogger})

	store.EXPECT().Delete(mock.Anything, "@api_cache_/a_").Return(errors.New("timeout")).Once()

	assert.NotPanics(t, func() { service.Invalidate(context.Background(), "/a", nil) })
}

// ============================================================================
// IN-FLIGHT DEDUPLICATION
// ============================================================================

func TestFetchService_DedupSharesOneNetworkCall(t *testing.T) {
	store, err := memory.NewStore(16, nil)
	require.NoError(t, err)
	transport := mocks.NewMockTransport(t)
	prober := mocks.NewMockConnectivityProber(t)
	service := services.NewFetchService(transport, store, prober, services.Options{
		DedupInFlight: true,
		Logger:        discardLogger,
	})

	entered := make(chan struct{})
	release := make(chan struct{})

	prober.EXPECT().IsOnline(mock.Anything).Return(true).Times(2)
	transport.EXPECT().
		Do(mock.Anything, mock.Anything).
		RunAndReturn(func(context.Context, *domain.Request) (*domain.Response, error) {
			close(entered)
			<-release
			return &domain.Response{StatusCode: 200, Body: json.RawMessage(`{"v":1}`)}, nil
		}).
		Once()

	var wg sync.WaitGroup
	results := make([]json.RawMessage, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = service.Get(context.Background(), "/feed", nil)
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = service.Get(context.Background(), "/feed", nil)
	}()

	// Give the second caller time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.JSONEq(t, `{"v":1}`, string(results[i]))
	}
}

func TestFetchService_DedupSurvivesLeaderCancellation(t *testing.T) {
	store, err := memory.NewStore(16, nil)
	require.NoError(t, err)
	transport := mocks.NewMockTransport(t)
	prober := mocks.NewMockConnectivityProber(t)
	service := services.NewFetchService(transport, store, prober, services.Options{
		DedupInFlight: true,
		Logger:        discardLogger,
	})

	entered := make(chan struct{})
	release := make(chan struct{})

	prober.EXPECT().IsOnline(mock.Anything).Return(true).Times(2)
	transport.EXPECT().
		Do(mock.Anything, mock.Anything).
		RunAndReturn(func(ctx context.Context, _ *domain.Request) (*domain.Response, error) {
			close(entered)
			<-release
			// The shared call keeps going after the first caller leaves.
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return &domain.Response{StatusCode: 200, Body: json.RawMessage(`{"v":2}`)}, nil
		}).
		Once()

	leaderCtx, cancelLeader := context.WithCancel(context.Background())

	var leaderErr error
	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		_, leaderErr = service.Get(leaderCtx, "/feed", nil)
	}()
	<-entered

	var follower json.RawMessage
	var followerErr error
	followerDone := make(chan struct{})
	go func() {
		defer close(followerDone)
		follower, followerErr = service.Get(context.Background(), "/feed", nil)
	}()

	// Give the second caller time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	cancelLeader()
	<-leaderDone
	assert.ErrorIs(t, leaderErr, context.Canceled)

	close(release)
	<-followerDone
	require.NoError(t, followerErr)
	assert.JSONEq(t, `{"v":2}`, string(follower))

	raw, found, err := store.Get(context.Background(), "@api_cache_/feed_")
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, raw, `"v":2`)
}

func TestFetchService_DedupKeepsDistinctHeadersApart(t *testing.T) {
	store, err := memory.NewStore(16, nil)
	require.NoError(t, err)
	transport := mocks.NewMockTransport(t)
	prober := mocks.NewMockConnectivityProber(t)
	service := services.NewFetchService(transport, store, prober, services.Options{
		DedupInFlight: true,
		Logger:        discardLogger,
	})

	var mu sync.Mutex
	seen := map[string]bool{}
	release := make(chan struct{})

	prober.EXPECT().IsOnline(mock.Anything).Return(true).Times(2)
	transport.EXPECT().
		Do(mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, req *domain.Request) (*domain.Response, error) {
			mu.Lock()
			seen[req.Header.Get("Authorization")] = true
			mu.Unlock()
			<-release
			return &domain.Response{StatusCode: 200, Body: json.RawMessage(`{}`)}, nil
		}).
		Times(2)

	var wg sync.WaitGroup
	for _, token := range []string{"Bearer a", "Bearer b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Get(context.Background(), "/me", nil,
				services.WithHeader("Authorization", token),
				services.WithHeader("X-Request-ID", token))
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
}
