// Package feed consumes chat transport events from NATS.
//
// Each event is a request on taskbot.feed.<user>; the subscriber replies with
// the JSON result of the operation or a bus.ErrorReply.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskbot/internal/analysis"
	"github.com/fyrsmithlabs/taskbot/internal/bus"
	"github.com/fyrsmithlabs/taskbot/internal/extraction"
	"github.com/fyrsmithlabs/taskbot/internal/logging"
	"github.com/fyrsmithlabs/taskbot/internal/pipeline"
	"github.com/fyrsmithlabs/taskbot/internal/session"
)

// Event types.
const (
	TypeMessage = "message"
	TypeAnalyze = "analyze"
	TypeDirect  = "direct"
	TypeCancel  = "cancel"
	TypeChoose  = "choose"
	TypeSession = "session"
)

// Defaults.
const (
	DefaultHandleTimeout = 90 * time.Second
	DefaultConcurrency   = 16
	DefaultQueueDepth    = 64
)

// ErrUnknownEvent is returned for events with an unrecognized type.
var ErrUnknownEvent = errors.New("unknown event type")

// Service is the pipeline surface the feed drives.
type Service interface {
	Ingest(ctx context.Context, userID string, msg extraction.Message) (extraction.Message, error)
	Analyze(ctx context.Context, userID string) (*pipeline.Report, error)
	AnalyzeDirect(ctx context.Context, userID string, msg extraction.Message) (*pipeline.Report, error)
	Choose(ctx context.Context, userID string, index int, destinationID, subList string) (*pipeline.Commit, error)
	Cancel(ctx context.Context, userID string) error
	Session(ctx context.Context, userID string) (session.Session, bool)
}

// Event is one request from the chat transport.
type Event struct {
	Type string `json:"type"`

	// message and direct
	Text       string     `json:"text,omitempty"`
	Sender     string     `json:"sender,omitempty"`
	SourceChat string     `json:"source_chat,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`

	// choose
	TaskIndex     int    `json:"task_index,omitempty"`
	DestinationID string `json:"destination_id,omitempty"`
	SubList       string `json:"sub_list,omitempty"`
}

// Ack is the reply to message and cancel events.
type Ack struct {
	OK      bool `json:"ok"`
	Ordinal *int `json:"ordinal,omitempty"`
}

// Config configures a Subscriber.
type Config struct {
	// QueueGroup defaults to bus.DefaultQueueGroup.
	QueueGroup string
	// HandleTimeout bounds one event. Defaults to DefaultHandleTimeout.
	HandleTimeout time.Duration
	// Concurrency is the number of workers. Events of one user always land on
	// the same worker and are handled in delivery order. Defaults to
	// DefaultConcurrency.
	Concurrency int
	// QueueDepth is the buffered event count per worker. Defaults to
	// DefaultQueueDepth.
	QueueDepth int
}

// Subscriber answers feed events on a NATS connection.
type Subscriber struct {
	nc      *nats.Conn
	service Service
	logger  *logging.Logger
	cfg     Config

	mu  sync.Mutex
	sub *nats.Subscription

	// qmu guards queues against sends after close.
	qmu    sync.RWMutex
	queues []chan *nats.Msg
	closed bool
	wg     sync.WaitGroup
}

// New creates a Subscriber.
func New(nc *nats.Conn, service Service, logger *logging.Logger, cfg Config) (*Subscriber, error) {
	if nc == nil || service == nil {
		return nil, errors.New("nats connection and service are required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = bus.DefaultQueueGroup
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = DefaultHandleTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	return &Subscriber{
		nc:      nc,
		service: service,
		logger:  logger.Named("feed"),
		cfg:     cfg,
	}, nil
}

// Start subscribes to every user's feed subject. Events are handled until
// ctx is done or Stop is called.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil || s.queues != nil {
		return errors.New("feed already started")
	}

	s.queues = make([]chan *nats.Msg, s.cfg.Concurrency)
	for i := range s.queues {
		q := make(chan *nats.Msg, s.cfg.QueueDepth)
		s.queues[i] = q
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for m := range q {
				s.handle(ctx, m)
			}
		}()
	}

	sub, err := s.nc.QueueSubscribe(bus.FeedPrefix+".*", s.cfg.QueueGroup, s.enqueue)
	if err != nil {
		s.closeQueues()
		return fmt.Errorf("subscribe to feed: %w", err)
	}
	if err := s.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		s.closeQueues()
		return fmt.Errorf("flush feed subscription: %w", err)
	}
	s.sub = sub
	s.logger.Info(ctx, "feed subscribed",
		zap.String("subject", sub.Subject),
		zap.String("queue", s.cfg.QueueGroup))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop unsubscribes, handles the events already queued and waits for the
// workers to exit.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			s.logger.Warn(context.Background(), "feed unsubscribe failed", zap.Error(err))
		}
	}
	s.closeQueues()
	s.wg.Wait()
}

// enqueue routes m to the worker owning its user. The send blocks when that
// worker is full, which holds back the NATS delivery goroutine.
func (s *Subscriber) enqueue(m *nats.Msg) {
	s.qmu.RLock()
	defer s.qmu.RUnlock()
	if s.closed {
		return
	}
	s.queues[s.worker(m.Subject)] <- m
}

func (s *Subscriber) worker(subject string) int {
	userID, _ := bus.UserFromSubject(bus.FeedPrefix, subject)
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(s.queues)))
}

func (s *Subscriber) closeQueues() {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, q := range s.queues {
		close(q)
	}
}

func (s *Subscriber) handle(parent context.Context, m *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.HandleTimeout)
	defer cancel()

	userID, ok := bus.UserFromSubject(bus.FeedPrefix, m.Subject)
	if !ok {
		s.respond(ctx, m, nil, fmt.Errorf("%w: %q", bus.ErrInvalidToken, m.Subject))
		return
	}
	ctx = logging.WithUserID(ctx, userID)

	var ev Event
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		s.respond(ctx, m, nil, fmt.Errorf("decode event: %w", err))
		return
	}

	start := time.Now()
	result, err := s.dispatch(ctx, userID, ev)
	s.logger.Debug(ctx, "feed event handled",
		zap.String("type", ev.Type),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("ok", err == nil))
	s.respond(ctx, m, result, err)
}

func (s *Subscriber) dispatch(ctx context.Context, userID string, ev Event) (any, error) {
	msg := extraction.Message{
		Text:       ev.Text,
		Sender:     ev.Sender,
		SourceChat: ev.SourceChat,
		Timestamp:  ev.Timestamp,
	}

	switch ev.Type {
	case TypeMessage:
		stored, err := s.service.Ingest(ctx, userID, msg)
		if err != nil {
			return nil, err
		}
		return Ack{OK: true, Ordinal: &stored.Ordinal}, nil
	case TypeAnalyze:
		return s.service.Analyze(ctx, userID)
	case TypeDirect:
		return s.service.AnalyzeDirect(ctx, userID, msg)
	case TypeCancel:
		if err := s.service.Cancel(ctx, userID); err != nil {
			return nil, err
		}
		return Ack{OK: true}, nil
	case TypeChoose:
		if ev.DestinationID == "" {
			return nil, errors.New("destination_id is required")
		}
		return s.service.Choose(ctx, userID, ev.TaskIndex, ev.DestinationID, ev.SubList)
	case TypeSession:
		sess, ok := s.service.Session(ctx, userID)
		if !ok {
			return nil, session.ErrNotFound
		}
		return sess, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
}

func (s *Subscriber) respond(ctx context.Context, m *nats.Msg, result any, err error) {
	if m.Reply == "" {
		if err != nil {
			s.logger.Warn(ctx, "feed event failed without reply subject", zap.Error(err))
		}
		return
	}

	var data []byte
	if err != nil {
		data, _ = json.Marshal(bus.ErrorReply{Error: err.Error(), Kind: string(analysis.KindOf(err))})
	} else if data, err = json.Marshal(result); err != nil {
		s.logger.Error(ctx, "encode feed reply", zap.Error(err))
		data, _ = json.Marshal(bus.ErrorReply{Error: "internal error"})
	}
	if err := m.Respond(data); err != nil {
		s.logger.Warn(ctx, "feed reply failed", zap.Error(err))
	}
}
