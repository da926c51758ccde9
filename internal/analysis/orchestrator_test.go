package analysis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/taskbot/internal/destination"
	"github.com/fyrsmithlabs/taskbot/internal/extraction"
	"github.com/fyrsmithlabs/taskbot/internal/logging"
	"github.com/fyrsmithlabs/taskbot/internal/secrets"
	"github.com/fyrsmithlabs/taskbot/internal/session"
	"github.com/fyrsmithlabs/taskbot/internal/telemetry"
)

const validResponse = `{
  "tasks": [{
    "name": "Fix checkout bug",
    "description": "Payment button does nothing",
    "due_date": "2026-12-25",
    "members": ["@anna", "anna", "boris"],
    "labels": ["#bug", "bug"],
    "priority": "high",
    "recommended_board": {"id": "shop", "confidence": 0.9, "reasoning": "checkout lives there"},
    "recommended_list": "To Do",
    "source_messages": [0, 1]
  }],
  "context_analysis": {"chat_type": "work", "project_mentions": ["shop"], "key_participants": ["anna"], "confidence": 0.8},
  "suggestions": {"create_checklists": true, "additional_actions": ["ask for logs"]}
}`

// fakeOracle returns canned output and counts calls. hook runs inside
// Complete before the response is returned.
type fakeOracle struct {
	mu       sync.Mutex
	response []byte
	err      error
	hook     func(ctx context.Context)
	calls    atomic.Int32
	last     OracleRequest
}

func (f *fakeOracle) Complete(ctx context.Context, req OracleRequest) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	if f.hook != nil {
		f.hook(ctx)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

// mapCache is an in-memory Cache with injectable failures.
type mapCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	setErr error
	sets   int
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.sets++
	c.data[key] = value
	return nil
}

type fixture struct {
	store  *session.Store
	oracle *fakeOracle
	cache  *mapCache
	logger *logging.TestLogger
	orch   *Orchestrator
}

func newFixture(t *testing.T, response string, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:  session.NewStore(extraction.New()),
		oracle: &fakeOracle{response: []byte(response)},
		cache:  newMapCache(),
		logger: logging.NewTestLogger(),
	}
	opts = append([]Option{
		WithLogger(f.logger.Logger),
		WithClock(func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }),
	}, opts...)
	orch, err := New(f.store, f.oracle, f.cache, opts...)
	require.NoError(t, err)
	f.orch = orch
	return f
}

func (f *fixture) append(t *testing.T, user string, texts ...string) {
	t.Helper()
	for _, text := range texts {
		_, err := f.store.Append(user, extraction.Message{Text: text, Sender: "anna"})
		require.NoError(t, err)
	}
}

var testSnapshot = destination.Snapshot{Destinations: []destination.Destination{
	{ID: "shop", Name: "Shop", SubLists: []destination.SubList{{ID: "todo", Name: "To Do"}}},
}}

func TestNew_RequiresCollaborators(t *testing.T) {
	store := session.NewStore(extraction.New())
	_, err := New(nil, &fakeOracle{}, newMapCache())
	assert.Error(t, err)
	_, err = New(store, nil, newMapCache())
	assert.Error(t, err)
	_, err = New(store, &fakeOracle{}, nil)
	assert.Error(t, err)
}

func TestAnalyze_Success(t *testing.T) {
	f := newFixture(t, validResponse)
	f.append(t, "u1", "срочно починить оплату", "до 25.12 пожалуйста")

	res, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.NoError(t, err)
	require.Len(t, res.Tasks, 1)

	c := res.Tasks[0]
	assert.Equal(t, "Fix checkout bug", c.Name)
	assert.Equal(t, []string{"anna", "boris"}, c.Members)
	assert.Equal(t, []string{"bug"}, c.Labels)
	assert.Equal(t, extraction.PriorityHigh, c.Priority)
	assert.Equal(t, "shop", c.Recommended.DestinationID)
	assert.Equal(t, []int{0, 1}, c.SourceMessages)
	assert.Equal(t, "work", res.Summary.ChatType)
	assert.True(t, res.Recommendations.CreateChecklists)
	assert.False(t, res.Cached)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, Fingerprint([]string{"срочно починить оплату", "до 25.12 пожалуйста"}), res.Fingerprint)

	sess, ok := f.store.Get("u1")
	require.True(t, ok)
	require.NotNil(t, sess.LastAnalysis)
	assert.Equal(t, res.ID, sess.LastAnalysis.ID)

	req := f.oracle.last
	assert.Equal(t, 2, req.MessageCount)
	assert.Contains(t, req.Transcript, "#0 [anna]: срочно починить оплату"+TranscriptSeparator+"#1 [anna]: до 25.12")
	assert.Equal(t, extraction.PriorityHigh, req.Context.Priority.Level)
	assert.Equal(t, testSnapshot, req.Snapshot)
}

func TestAnalyze_IdempotentViaCache(t *testing.T) {
	f := newFixture(t, validResponse)
	f.append(t, "u1", "починить оплату")

	first, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.NoError(t, err)
	second, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.oracle.calls.Load())
	assert.True(t, second.Cached)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Tasks, second.Tasks)
	assert.Equal(t, 1, f.cache.sets)
}

func TestAnalyze_CacheIsPerUser(t *testing.T) {
	f := newFixture(t, validResponse)
	f.append(t, "u1", "одинаковый текст")
	f.append(t, "u2", "одинаковый текст")

	_, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.NoError(t, err)
	res, err := f.orch.Analyze(context.Background(), "u2", testSnapshot)
	require.NoError(t, err)

	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), f.oracle.calls.Load())
}

func TestAnalyze_CacheReadFailureIsMiss(t *testing.T) {
	f := newFixture(t, validResponse)
	f.cache.getErr = errors.New("redis down")
	f.append(t, "u1", "починить оплату")

	res, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.NoError(t, err)
	assert.Len(t, res.Tasks, 1)
	f.logger.AssertLogged(t, zapcore.WarnLevel, "analysis cache read failed")
}

func TestAnalyze_EmptyBuffer(t *testing.T) {
	f := newFixture(t, validResponse)

	_, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindEmptyExtraction))
	assert.ErrorIs(t, err, ErrEmptyExtraction)
	assert.Zero(t, f.oracle.calls.Load())
}

func TestAnalyze_ZeroTasksIsSuccess(t *testing.T) {
	f := newFixture(t, `{"tasks": [], "context_analysis": {"confidence": 0.1}}`)
	f.append(t, "u1", "привет, как дела?")

	res, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.NotNil(t, res.Tasks)
}

func TestAnalyze_DroppedCandidate(t *testing.T) {
	f := newFixture(t, `{"tasks": [{"name": "", "recommended_board": {"id": "shop", "confidence": 0.9}, "source_messages": [0]}],
	  "context_analysis": {"confidence": 0.5}}`)
	f.append(t, "u1", "что-то")

	res, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.NoError(t, err)
	assert.Empty(t, res.Tasks)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, dropEmptyName, res.Dropped[0].Reason)
	f.logger.AssertLogged(t, zapcore.InfoLevel, "dropped task candidate")
}

func TestAnalyze_ClampsConfidence(t *testing.T) {
	f := newFixture(t, `{"tasks": [
	  {"name": "a", "recommended_board": {"id": "shop", "confidence": 1.5}, "source_messages": [0]},
	  {"name": "b", "recommended_board": {"id": "shop", "confidence": -0.2}, "source_messages": [0]}
	], "context_analysis": {"confidence": 3}}`)
	f.append(t, "u1", "две задачи")

	res, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.NoError(t, err)
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, 1.0, res.Tasks[0].Recommended.Confidence)
	assert.Equal(t, 0.0, res.Tasks[1].Recommended.Confidence)
	assert.Equal(t, 1.0, res.Summary.Confidence)
	f.logger.AssertLogged(t, zapcore.WarnLevel, "repaired oracle field")
}

func TestAnalyze_MalformedResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"not json", "I could not find any tasks"},
		{"array", `[{"name": "x"}]`},
		{"missing tasks", `{"context_analysis": {}}`},
		{"missing context", `{"tasks": []}`},
		{"tasks not array", `{"tasks": {}, "context_analysis": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.response)
			f.append(t, "u1", "текст")

			_, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindMalformedResponse), "got %v", err)

			sess, _ := f.store.Get("u1")
			assert.Nil(t, sess.LastAnalysis)
			assert.Zero(t, f.cache.sets)
		})
	}
}

func TestAnalyze_FencedResponse(t *testing.T) {
	f := newFixture(t, "```json\n"+validResponse+"\n```")
	f.append(t, "u1", "починить оплату", "до пятницы")

	res, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.NoError(t, err)
	assert.Len(t, res.Tasks, 1)
}

func TestAnalyze_StaleAfterAppend(t *testing.T) {
	f := newFixture(t, validResponse)
	f.append(t, "u1", "первое", "второе")
	f.oracle.hook = func(context.Context) {
		_, err := f.store.Append("u1", extraction.Message{Text: "третье"})
		require.NoError(t, err)
	}

	_, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindStaleAnalysis))

	sess, _ := f.store.Get("u1")
	assert.Nil(t, sess.LastAnalysis)
	assert.Zero(t, f.cache.sets)
}

func TestAnalyze_StaleAfterClear(t *testing.T) {
	f := newFixture(t, validResponse)
	f.append(t, "u1", "первое", "второе")
	f.oracle.hook = func(context.Context) {
		require.NoError(t, f.store.Clear("u1"))
		f.append(t, "u1", "первое", "второе")
	}

	_, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaleAnalysis)
}

func TestAnalyze_StaleAfterExpiry(t *testing.T) {
	f := newFixture(t, validResponse)
	f.append(t, "u1", "первое", "второе")
	f.oracle.hook = func(context.Context) {
		f.store.ExpireIdle(-time.Second)
	}

	_, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindStaleAnalysis))
	_, ok := f.store.Get("u1")
	assert.False(t, ok)
}

func TestAnalyze_Timeout(t *testing.T) {
	f := newFixture(t, validResponse, WithOracleTimeout(20*time.Millisecond))
	f.append(t, "u1", "текст")
	f.oracle.hook = func(ctx context.Context) {
		<-ctx.Done()
	}
	f.oracle.err = context.DeadlineExceeded

	_, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTimeout), "got %v", err)
	assert.Equal(t, int32(1), f.oracle.calls.Load())
}

func TestAnalyze_LateResponseAfterDeadline(t *testing.T) {
	f := newFixture(t, validResponse, WithOracleTimeout(20*time.Millisecond))
	f.append(t, "u1", "текст")
	f.oracle.hook = func(ctx context.Context) {
		<-ctx.Done()
	}

	_, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTimeout))
	sess, _ := f.store.Get("u1")
	assert.Nil(t, sess.LastAnalysis)
}

func TestAnalyze_CanceledWritesNothing(t *testing.T) {
	f := newFixture(t, validResponse)
	f.append(t, "u1", "текст")

	ctx, cancel := context.WithCancel(context.Background())
	f.oracle.hook = func(context.Context) { cancel() }

	_, err := f.orch.Analyze(ctx, "u1", testSnapshot)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindCanceled), "got %v", err)

	sess, _ := f.store.Get("u1")
	assert.Nil(t, sess.LastAnalysis)
	assert.Zero(t, f.cache.sets)
}

func TestAnalyze_TransportFailure(t *testing.T) {
	f := newFixture(t, "")
	f.oracle.err = errors.New("connection refused")
	f.append(t, "u1", "текст")

	_, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransportFailure))
}

func TestAnalyze_CacheWriteFailure(t *testing.T) {
	f := newFixture(t, validResponse)
	f.cache.setErr = errors.New("redis: READONLY")
	f.append(t, "u1", "текст")

	_, err := f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransportFailure))

	sess, _ := f.store.Get("u1")
	assert.Nil(t, sess.LastAnalysis)
}

func TestAnalyze_ScrubsTranscript(t *testing.T) {
	scrubber, err := secrets.New(nil)
	require.NoError(t, err)
	f := newFixture(t, validResponse, WithScrubber(scrubber))
	f.append(t, "u1", "доступ к базе postgres://app:hunter22@db:5432/app", "срочно")

	_, err = f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.NoError(t, err)
	assert.NotContains(t, f.oracle.last.Transcript, "hunter22")
	assert.Contains(t, f.oracle.last.Transcript, secrets.DefaultRedaction)
}

func TestAnalyze_Telemetry(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	metrics, err := NewMetrics(tel.Meter(InstrumentationName))
	require.NoError(t, err)

	f := newFixture(t, validResponse, WithMetrics(metrics), WithTracer(tel.Tracer(InstrumentationName)))
	f.append(t, "u1", "починить оплату")

	_, err = f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.NoError(t, err)
	_, err = f.orch.Analyze(context.Background(), "u1", testSnapshot)
	require.NoError(t, err)

	tel.AssertSpanExists(t, "analysis.Analyze")
	assert.Equal(t, int64(2), tel.Sum(t, "taskbot.analysis.total"))
	assert.Equal(t, int64(2), tel.Sum(t, "taskbot.analysis.cache.lookups"))
	assert.Equal(t, int64(1), tel.Sum(t, "taskbot.oracle.duration"))
}

func TestAnalyzeMessages(t *testing.T) {
	f := newFixture(t, `{"tasks": [{"name": "Call bank", "recommended_board": {"id": "shop", "confidence": 0.4}, "source_messages": [0]}],
	  "context_analysis": {"confidence": 0.6}}`)
	msgs := []extraction.Message{{Text: "позвонить в банк", Ordinal: 7}}
	xctx := extraction.New().Extract(msgs)

	res, err := f.orch.AnalyzeMessages(context.Background(), "u1", msgs, xctx, testSnapshot)
	require.NoError(t, err)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, []int{0}, res.Tasks[0].SourceMessages)
	assert.Contains(t, f.oracle.last.Transcript, "#0 [Unknown]: позвонить в банк")

	_, ok := f.store.Get("u1")
	assert.False(t, ok, "direct analysis must not create a session")

	again, err := f.orch.AnalyzeMessages(context.Background(), "u1", msgs, xctx, testSnapshot)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, int32(1), f.oracle.calls.Load())

	_, err = f.orch.AnalyzeMessages(context.Background(), "u1", nil, xctx, testSnapshot)
	assert.True(t, IsKind(err, KindEmptyExtraction))
}

func TestAnalyze_ConcurrentUsers(t *testing.T) {
	f := newFixture(t, validResponse)
	users := []string{"a", "b", "c", "d"}
	for _, u := range users {
		f.append(t, u, "задача для "+u, "ещё одна")
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.orch.Analyze(context.Background(), u, testSnapshot)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, users[i])
	}
	assert.Equal(t, int32(len(users)), f.oracle.calls.Load())
}

func TestAnalyze_LogsUserOnce(t *testing.T) {
	for _, ctx := range []context.Context{
		context.Background(),
		logging.WithUserID(context.Background(), "u1"),
	} {
		f := newFixture(t, validResponse)
		f.append(t, "u1", "срочно починить оплату")

		_, err := f.orch.Analyze(ctx, "u1", testSnapshot)
		require.NoError(t, err)

		entries := f.logger.FilterMessage("analysis completed").All()
		require.Len(t, entries, 1)
		n := 0
		for _, field := range entries[0].Context {
			if field.Key == "user.id" {
				assert.Equal(t, "u1", field.String)
				n++
			}
		}
		assert.Equal(t, 1, n)
	}
}
