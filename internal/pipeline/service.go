package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskbot/internal/analysis"
	"github.com/fyrsmithlabs/taskbot/internal/destination"
	"github.com/fyrsmithlabs/taskbot/internal/extraction"
	"github.com/fyrsmithlabs/taskbot/internal/logging"
	"github.com/fyrsmithlabs/taskbot/internal/resolution"
	"github.com/fyrsmithlabs/taskbot/internal/session"
	"github.com/fyrsmithlabs/taskbot/internal/task"
)

const instrumentationName = "github.com/fyrsmithlabs/taskbot/internal/pipeline"

// Service errors.
var (
	ErrNoAnalysis       = errors.New("no analysis to choose from")
	ErrTaskIndex        = errors.New("task index out of range")
	ErrAlreadyCommitted = errors.New("task already committed")
)

// Commit is the outcome of handing one task to the destination system.
type Commit struct {
	TaskIndex     int                 `json:"task_index"`
	DestinationID string              `json:"destination_id"`
	SubListID     string              `json:"sub_list_id"`
	Confidence    float64             `json:"confidence"`
	Receipt       destination.Receipt `json:"receipt"`
	Error         string              `json:"error,omitempty"`
}

// Report is the outcome of an analysis: the validated result, one decision
// per task and the auto-commits that were attempted.
type Report struct {
	Result    *task.Result          `json:"result"`
	Empty     bool                  `json:"empty"`
	Decisions []resolution.Decision `json:"decisions"`
	Committed []Commit              `json:"committed"`
}

// Config holds the collaborators of a Service.
type Config struct {
	Store        *session.Store
	Orchestrator *analysis.Orchestrator
	Provider     destination.Provider
	Committer    destination.Committer
	Preferences  *session.Preferences
	Extractor    *extraction.Extractor
	Logger       *logging.Logger
	Metrics      *Metrics
	Tracer       trace.Tracer
}

// Service implements the feed operations.
type Service struct {
	store        *session.Store
	orchestrator *analysis.Orchestrator
	engine       *resolution.Engine
	provider     destination.Provider
	committer    destination.Committer
	prefs        *session.Preferences
	extractor    *extraction.Extractor
	logger       *logging.Logger
	metrics      *Metrics
	tracer       trace.Tracer
	ledger       *ledger
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil || cfg.Orchestrator == nil {
		return nil, errors.New("session store and orchestrator are required")
	}
	if cfg.Provider == nil || cfg.Committer == nil {
		return nil, errors.New("destination provider and committer are required")
	}
	s := &Service{
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		engine:       resolution.New(),
		provider:     cfg.Provider,
		committer:    cfg.Committer,
		prefs:        cfg.Preferences,
		extractor:    cfg.Extractor,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		tracer:       cfg.Tracer,
		ledger:       newLedger(),
	}
	if s.prefs == nil {
		s.prefs = session.NewPreferences(session.DefaultPreferenceTTL, nil)
	}
	if s.extractor == nil {
		s.extractor = extraction.New()
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	s.logger = s.logger.Named("pipeline")
	if s.tracer == nil {
		s.tracer = otel.Tracer(instrumentationName)
	}
	return s, nil
}

// Ingest buffers one message for the user.
func (s *Service) Ingest(ctx context.Context, userID string, msg extraction.Message) (extraction.Message, error) {
	stored, err := s.store.Append(userID, msg)
	if err != nil {
		return extraction.Message{}, err
	}
	s.logger.Debug(logging.WithUserID(ctx, userID), "message buffered",
		zap.Int("ordinal", stored.Ordinal),
		zap.String("chat", stored.SourceChat))
	return stored, nil
}

// Analyze runs an analysis of the user's buffered messages, resolves every
// task and commits those that clear the confidence threshold.
func (s *Service) Analyze(ctx context.Context, userID string) (*Report, error) {
	ctx = logging.WithUserID(ctx, userID)
	ctx, span := s.tracer.Start(ctx, "pipeline.Analyze", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	snap, err := s.provider.Snapshot(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("destination snapshot: %w", err)
	}

	result, err := s.orchestrator.Analyze(ctx, userID, snap)
	if err != nil {
		span.RecordError(err)
		if analysis.IsKind(err, analysis.KindEmptyExtraction) {
			return &Report{Empty: true, Decisions: []resolution.Decision{}, Committed: []Commit{}}, nil
		}
		return nil, err
	}

	sess, _ := s.store.Get(userID)
	return s.resolve(ctx, userID, sess, result, snap), nil
}

// AnalyzeDirect analyzes text the user sent directly, without buffering it.
// The result is resolved and committed like a session analysis, but nothing
// is stored in the session, so disambiguation has to be answered with a
// fresh forwarded batch.
func (s *Service) AnalyzeDirect(ctx context.Context, userID string, msg extraction.Message) (*Report, error) {
	ctx = logging.WithUserID(ctx, userID)
	if msg.Text == "" {
		return nil, session.ErrEmptyText
	}
	snap, err := s.provider.Snapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("destination snapshot: %w", err)
	}
	msgs := []extraction.Message{msg}
	result, err := s.orchestrator.AnalyzeMessages(ctx, userID, msgs, s.extractor.Extract(msgs), snap)
	if err != nil {
		return nil, err
	}
	sess := session.Session{UserID: userID, Messages: msgs, Context: s.extractor.Extract(msgs)}
	return s.resolve(ctx, userID, sess, result, snap), nil
}

func (s *Service) resolve(ctx context.Context, userID string, sess session.Session, result *task.Result, snap destination.Snapshot) *Report {
	report := &Report{
		Result:    result,
		Empty:     result.Empty(),
		Decisions: make([]resolution.Decision, 0, len(result.Tasks)),
		Committed: []Commit{},
	}
	done := s.ledger.committed(userID, result.ID)

	for i, c := range result.Tasks {
		in := resolution.Input{
			Hints:    sess.Context.ProjectHints,
			Summary:  result.Summary,
			Snapshot: snap,
			Pin:      sess.Selected,
		}
		if chat := sourceChat(sess, c); chat != "" {
			if pref, ok := s.prefs.Lookup(userID, chat); ok {
				in.Preferred = &pref
			}
		}
		d := s.engine.Resolve(c, in)
		d.TaskIndex = i
		report.Decisions = append(report.Decisions, d)
		s.metrics.RecordDecision(d.Action)

		if d.Action != resolution.ActionAutoCommit {
			continue
		}
		if r, ok := done[i]; ok {
			report.Committed = append(report.Committed, Commit{
				TaskIndex:     i,
				DestinationID: d.AutoCommit.DestinationID,
				SubListID:     d.AutoCommit.SubListID,
				Confidence:    d.AutoCommit.Confidence,
				Receipt:       r,
			})
			continue
		}
		cm, err := s.commit(ctx, userID, result.ID, i, c, *d.AutoCommit)
		if err != nil && !errors.Is(err, ErrAlreadyCommitted) {
			cm.Error = err.Error()
		}
		report.Committed = append(report.Committed, cm)
	}

	s.logger.Info(ctx, "analysis resolved",
		zap.String("analysis.id", result.ID),
		zap.Bool("cached", result.Cached),
		zap.Int("tasks", len(result.Tasks)),
		zap.Int("committed", len(report.Committed)))
	return report
}

// Choose records the user's destination for task index of the last analysis
// and commits that task with full confidence. The choice is remembered for
// the task's source chat.
func (s *Service) Choose(ctx context.Context, userID string, index int, destinationID, subList string) (*Commit, error) {
	ctx = logging.WithUserID(ctx, userID)

	sess, ok := s.store.Get(userID)
	if !ok {
		return nil, session.ErrNotFound
	}
	if sess.LastAnalysis == nil {
		return nil, ErrNoAnalysis
	}
	c, ok := sess.LastAnalysis.Task(index)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTaskIndex, index)
	}

	snap, err := s.provider.Snapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("destination snapshot: %w", err)
	}
	d, ok := snap.Find(destinationID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", destination.ErrUnknownDestination, destinationID)
	}
	var sl destination.SubList
	if subList != "" {
		if sl, ok = d.SubList(subList); !ok {
			return nil, fmt.Errorf("%w: %q", destination.ErrUnknownSubList, subList)
		}
	} else if sl, err = d.ResolveSubList(""); err != nil {
		return nil, err
	}

	pin := session.Pin{DestinationID: d.ID, SubListID: sl.ID}
	if err := s.store.Select(userID, pin); err != nil {
		return nil, err
	}
	if chat := sourceChat(sess, c); chat != "" {
		s.prefs.Remember(userID, chat, pin)
	}

	decision := s.engine.Resolve(c, resolution.Input{Snapshot: snap, Pin: &pin})
	if decision.Action != resolution.ActionAutoCommit {
		return nil, fmt.Errorf("%w: %q", destination.ErrUnknownDestination, destinationID)
	}
	s.metrics.RecordDecision(resolution.ActionAutoCommit)

	cm, err := s.commit(ctx, userID, sess.LastAnalysis.ID, index, c, *decision.AutoCommit)
	return &cm, err
}

func (s *Service) commit(ctx context.Context, userID, resultID string, index int, c task.Candidate, ac resolution.AutoCommit) (Commit, error) {
	cm := Commit{
		TaskIndex:     index,
		DestinationID: ac.DestinationID,
		SubListID:     ac.SubListID,
		Confidence:    ac.Confidence,
	}
	if r, ok := s.ledger.reserve(userID, resultID, index); !ok {
		cm.Receipt = r
		return cm, ErrAlreadyCommitted
	}

	item := destination.NewItem(userID, c, ac.DestinationID, ac.SubListID, ac.Confidence)
	r, err := s.committer.Commit(ctx, item)
	if err != nil {
		s.ledger.settle(userID, resultID, index, nil)
		s.metrics.RecordCommit(false)
		s.logger.Warn(ctx, "commit failed",
			zap.Int("task", index),
			zap.String("destination", ac.DestinationID),
			zap.Error(err))
		return cm, fmt.Errorf("commit task %d: %w", index, err)
	}
	s.ledger.settle(userID, resultID, index, &r)
	s.metrics.RecordCommit(true)
	s.logger.Info(ctx, "task committed",
		zap.Int("task", index),
		zap.String("destination", ac.DestinationID),
		zap.String("sub_list", ac.SubListID),
		zap.Float64("confidence", ac.Confidence),
		zap.String("item_id", r.ItemID))
	cm.Receipt = r
	return cm, nil
}

// Cancel drops the user's buffered messages, analysis and choice.
func (s *Service) Cancel(ctx context.Context, userID string) error {
	if err := s.store.Clear(userID); err != nil {
		return err
	}
	s.ledger.forget(userID)
	s.logger.Info(logging.WithUserID(ctx, userID), "session cancelled")
	return nil
}

// Session returns a copy of the user's session.
func (s *Service) Session(_ context.Context, userID string) (session.Session, bool) {
	return s.store.Get(userID)
}

// ExtractOnly runs deterministic extraction over msgs without touching any
// session or calling the oracle.
func (s *Service) ExtractOnly(msgs []extraction.Message) extraction.Context {
	return s.extractor.Extract(msgs)
}

// Sweep expires sessions idle for longer than maxIdle and prunes expired
// chat preferences.
func (s *Service) Sweep(ctx context.Context, maxIdle time.Duration) []string {
	expired := s.store.ExpireIdle(maxIdle)
	s.ledger.forget(expired...)
	pruned := s.prefs.Prune()
	s.metrics.RecordExpired(len(expired))
	if len(expired) > 0 || pruned > 0 {
		s.logger.Info(ctx, "idle sweep",
			zap.Int("expired_sessions", len(expired)),
			zap.Int("pruned_preferences", pruned))
	}
	return expired
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx, maxIdle)
		}
	}
}

// sourceChat returns the chat of the first source message of c that has one.
func sourceChat(sess session.Session, c task.Candidate) string {
	for _, idx := range c.SourceMessages {
		if idx >= 0 && idx < len(sess.Messages) && sess.Messages[idx].SourceChat != "" {
			return sess.Messages[idx].SourceChat
		}
	}
	return ""
}
