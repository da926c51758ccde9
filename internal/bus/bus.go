// Package bus holds the NATS subjects taskbot uses to talk to its
// collaborators and the connection setup shared by the daemon and tests.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskbot/internal/logging"
)

// Subjects.
const (
	// FeedPrefix is followed by a user token. Events for a user arrive there.
	FeedPrefix = "taskbot.feed"
	// SnapshotPrefix is followed by a user token. The destination system
	// answers with that user's snapshot.
	SnapshotPrefix = "taskbot.destinations.snapshot"
	// CommitSubject receives items to create in the destination system.
	CommitSubject = "taskbot.destinations.commit"
	// DefaultQueueGroup load-balances feed events across daemon replicas.
	DefaultQueueGroup = "taskbot"
)

// ErrInvalidToken is returned for user ids that cannot form a subject token.
var ErrInvalidToken = errors.New("invalid subject token")

// Token validates id as a single subject token.
func Token(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, ".*> \t\r\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidToken, id)
	}
	return id, nil
}

// UserSubject joins prefix and a validated user token.
func UserSubject(prefix, userID string) (string, error) {
	tok, err := Token(userID)
	if err != nil {
		return "", err
	}
	return prefix + "." + tok, nil
}

// UserFromSubject returns the last token of subject if it starts with prefix.
func UserFromSubject(prefix, subject string) (string, bool) {
	rest, ok := strings.CutPrefix(subject, prefix+".")
	if !ok || rest == "" || strings.Contains(rest, ".") {
		return "", false
	}
	return rest, true
}

// ErrorReply is the body collaborators send instead of a result.
type ErrorReply struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// DecodeReply unmarshals data into v unless it carries an ErrorReply.
func DecodeReply(data []byte, v any) error {
	var e ErrorReply
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return fmt.Errorf("remote error: %s", e.Error)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

// Connect dials url with reconnect handling that logs state changes.
func Connect(url string, logger *logging.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	nc, err := nats.Connect(url,
		nats.Name("taskbot"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(context.Background(), "nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(context.Background(), "nats reconnected", zap.String("url", c.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}
