// Package analysis orchestrates oracle-backed task extraction for a session.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskbot/internal/destination"
	"github.com/fyrsmithlabs/taskbot/internal/extraction"
	"github.com/fyrsmithlabs/taskbot/internal/logging"
	"github.com/fyrsmithlabs/taskbot/internal/secrets"
	"github.com/fyrsmithlabs/taskbot/internal/session"
	"github.com/fyrsmithlabs/taskbot/internal/task"
)

const (
	// CacheTTL is how long a result is served for an unchanged transcript.
	CacheTTL = time.Hour

	// DefaultOracleTimeout bounds an oracle call when the caller sets none.
	DefaultOracleTimeout = 60 * time.Second
)

// Orchestrator runs analyses against the session store. It calls the oracle
// at most once per uncached analysis and never retries.
type Orchestrator struct {
	store    *session.Store
	oracle   Oracle
	cache    Cache
	scrubber secrets.Scrubber
	logger   *logging.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l.Named("analysis")
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithScrubber redacts secrets from transcripts before they reach the oracle.
func WithScrubber(s secrets.Scrubber) Option {
	return func(o *Orchestrator) {
		o.scrubber = s
	}
}

// WithOracleTimeout bounds each oracle call. The caller's own deadline still
// applies when it is shorter.
func WithOracleTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithClock sets the clock used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an Orchestrator.
func New(store *session.Store, oracle Oracle, cache Cache, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if oracle == nil {
		return nil, errors.New("oracle is required")
	}
	if cache == nil {
		return nil, errors.New("cache is required")
	}
	o := &Orchestrator{
		store:   store,
		oracle:  oracle,
		cache:   cache,
		logger:  logging.Nop(),
		tracer:  otel.Tracer(InstrumentationName),
		timeout: DefaultOracleTimeout,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// input is the snapshot one analysis works from.
type input struct {
	userID      string
	messages    []extraction.Message
	context     extraction.Context
	fingerprint string
	generation  uint64
}

// Analyze extracts task candidates from the user's buffered messages.
//
// The session is snapshotted, the oracle is called with no lock held, and the
// result is written back only if the session still holds the same messages.
// On any error nothing is written to the session or the cache. A result with
// no tasks is a success; check Result.Empty.
func (o *Orchestrator) Analyze(ctx context.Context, userID string, snap destination.Snapshot) (*task.Result, error) {
	ctx = logging.WithUserID(ctx, userID)
	ctx, span := o.tracer.Start(ctx, "analysis.Analyze", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	result, err := o.analyze(ctx, userID, snap)
	recordSpanError(span, err)
	o.metrics.RecordOutcome(ctx, outcome(err))
	return result, err
}

func (o *Orchestrator) analyze(ctx context.Context, userID string, snap destination.Snapshot) (*task.Result, error) {
	const op = "analyze"

	sess, err := o.store.GetOrCreate(userID)
	if err != nil {
		return nil, err
	}
	if len(sess.Messages) == 0 {
		return nil, newError(KindEmptyExtraction, op, ErrNoMessages)
	}
	in := input{
		userID:      userID,
		messages:    sess.Messages,
		context:     sess.Context,
		fingerprint: Fingerprint(sess.Texts()),
		generation:  sess.Generation,
	}
	key := CacheKey(userID, in.fingerprint)
	log := o.logger.With(zap.String("analysis.fingerprint", in.fingerprint))

	if cached := o.lookup(ctx, log, key); cached != nil {
		if err := o.commit(ctx, in, cached, nil); err != nil {
			return nil, err
		}
		log.Info(ctx, "analysis served from cache", zap.String("analysis.id", cached.ID))
		return cached, nil
	}

	result, err := o.run(ctx, log, in, snap)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, newError(KindMalformedResponse, op, err)
	}
	if err := o.commit(ctx, in, result, func(ctx context.Context) error {
		if err := o.cache.Set(ctx, key, payload, CacheTTL); err != nil {
			return classifyCall(ctx, "cache set", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	log.Info(ctx, "analysis completed",
		zap.String("analysis.id", result.ID),
		zap.Int("tasks", len(result.Tasks)),
		zap.Int("dropped", len(result.Dropped)),
	)
	return result, nil
}

// AnalyzeMessages analyzes msgs outside of any session. Results are cached
// under the user's namespace but never stored in the session store.
func (o *Orchestrator) AnalyzeMessages(ctx context.Context, userID string, msgs []extraction.Message, xctx extraction.Context, snap destination.Snapshot) (*task.Result, error) {
	ctx = logging.WithUserID(ctx, userID)
	ctx, span := o.tracer.Start(ctx, "analysis.AnalyzeMessages", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	result, err := o.analyzeMessages(ctx, userID, msgs, xctx, snap)
	recordSpanError(span, err)
	o.metrics.RecordOutcome(ctx, outcome(err))
	return result, err
}

func (o *Orchestrator) analyzeMessages(ctx context.Context, userID string, msgs []extraction.Message, xctx extraction.Context, snap destination.Snapshot) (*task.Result, error) {
	if len(msgs) == 0 {
		return nil, newError(KindEmptyExtraction, "analyze messages", ErrNoMessages)
	}
	ordered := make([]extraction.Message, len(msgs))
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		m.Ordinal = i
		ordered[i] = m
		texts[i] = m.Text
	}
	in := input{userID: userID, messages: ordered, context: xctx, fingerprint: Fingerprint(texts)}
	key := CacheKey(userID, in.fingerprint)
	log := o.logger.With(zap.String("analysis.fingerprint", in.fingerprint))

	if cached := o.lookup(ctx, log, key); cached != nil {
		return cached, nil
	}

	result, err := o.run(ctx, log, in, snap)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, newError(KindMalformedResponse, "analyze messages", err)
	}
	if err := o.cache.Set(ctx, key, payload, CacheTTL); err != nil {
		return nil, classifyCall(ctx, "cache set", err)
	}
	return result, nil
}

// lookup returns a cached result or nil. Cache read failures are treated as
// misses so a degraded cache never blocks analysis.
func (o *Orchestrator) lookup(ctx context.Context, log *logging.Logger, key string) *task.Result {
	raw, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		log.Warn(ctx, "analysis cache read failed, treating as miss", zap.Error(err))
		o.metrics.RecordCacheLookup(ctx, false)
		return nil
	}
	if !ok {
		o.metrics.RecordCacheLookup(ctx, false)
		return nil
	}
	var cached task.Result
	if err := json.Unmarshal(raw, &cached); err != nil {
		log.Warn(ctx, "discarding undecodable cache entry", zap.Error(err))
		o.metrics.RecordCacheLookup(ctx, false)
		return nil
	}
	o.metrics.RecordCacheLookup(ctx, true)
	cached.Cached = true
	return &cached
}

// run performs the single oracle call and validates its output.
func (o *Orchestrator) run(ctx context.Context, log *logging.Logger, in input, snap destination.Snapshot) (*task.Result, error) {
	transcript := Transcript(in.messages)
	if o.scrubber != nil {
		scrubbed := o.scrubber.Scrub(transcript)
		if scrubbed.TotalFindings > 0 {
			log.Warn(ctx, "redacted secrets from transcript", zap.Int("findings", scrubbed.TotalFindings))
		}
		transcript = scrubbed.Scrubbed
	}
	req := OracleRequest{
		UserID:       in.userID,
		Transcript:   transcript,
		MessageCount: len(in.messages),
		Context:      in.context,
		Snapshot:     snap,
	}

	callCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := o.oracle.Complete(callCtx, req)
	if err == nil && callCtx.Err() != nil {
		// A late response after the deadline is not trusted.
		err = callCtx.Err()
	}
	if err != nil {
		aerr := classifyCall(callCtx, "oracle", err)
		o.metrics.RecordOracleCall(ctx, time.Since(start), string(aerr.Kind))
		log.Warn(ctx, "oracle call failed", zap.String("kind", string(aerr.Kind)), zap.Error(err))
		return nil, aerr
	}
	o.metrics.RecordOracleCall(ctx, time.Since(start), "ok")

	v, err := validateResponse(raw, len(in.messages), in.context.Priority.Level)
	if err != nil {
		log.Warn(ctx, "oracle response rejected", zap.Error(err), zap.Int("bytes", len(raw)))
		return nil, newError(KindMalformedResponse, "validate", err)
	}
	for _, a := range v.Anomalies {
		log.Warn(ctx, "repaired oracle field",
			zap.Int("task", a.Task),
			zap.String("field", a.Field),
			zap.String("got", a.Got),
			zap.String("fixed", a.Fixed),
		)
	}
	for _, d := range v.Dropped {
		log.Info(ctx, "dropped task candidate",
			zap.String("kind", string(KindInvalidCandidate)),
			zap.Int("task", d.Index),
			zap.String("reason", d.Reason),
		)
	}
	o.metrics.RecordValidation(ctx, len(v.Tasks), len(v.Dropped), len(v.Anomalies))

	return &task.Result{
		ID:              o.newID(),
		Fingerprint:     in.fingerprint,
		Tasks:           v.Tasks,
		Summary:         v.Summary,
		Recommendations: v.Recommendations,
		Dropped:         v.Dropped,
		CreatedAt:       o.now().UTC(),
	}, nil
}

// commit writes result back under the session lock. beforeWrite runs inside
// the critical section after the stale check; if it fails nothing is written.
func (o *Orchestrator) commit(ctx context.Context, in input, result *task.Result, beforeWrite func(context.Context) error) error {
	const op = "commit"
	if err := ctx.Err(); err != nil {
		return classifyCall(ctx, op, err)
	}
	err := o.store.CommitAnalysis(in.userID, result, func(cur session.Session) error {
		if cur.Generation != in.generation || Fingerprint(cur.Texts()) != in.fingerprint {
			return newError(KindStaleAnalysis, op, errors.New("session changed during analysis"))
		}
		if err := ctx.Err(); err != nil {
			return classifyCall(ctx, op, err)
		}
		if beforeWrite != nil {
			return beforeWrite(ctx)
		}
		return nil
	})
	if errors.Is(err, session.ErrNotFound) {
		return newError(KindStaleAnalysis, op, err)
	}
	return err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
