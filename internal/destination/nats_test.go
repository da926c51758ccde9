package destination

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taskbot/internal/bus"
	"github.com/fyrsmithlabs/taskbot/internal/task"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *nats.Conn {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)
	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(func() {
		nc.Close()
		server.Shutdown()
		server.WaitForShutdown()
	})
	return nc
}

func reply(t *testing.T, nc *nats.Conn, subject string, fn func(*nats.Msg) any) {
	t.Helper()
	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		data, _ := json.Marshal(fn(m))
		_ = m.Respond(data)
	})
	require.NoError(t, err)
	require.NoError(t, nc.Flush())
	t.Cleanup(func() { _ = sub.Unsubscribe() })
}

func TestNATSProvider_Snapshot(t *testing.T) {
	nc := startTestNATSServer(t)
	reply(t, nc, bus.SnapshotPrefix+".*", func(m *nats.Msg) any {
		user, _ := bus.UserFromSubject(bus.SnapshotPrefix, m.Subject)
		switch user {
		case "42":
			return Snapshot{Destinations: []Destination{{ID: "shop", Name: "Shop", SubLists: []SubList{{ID: "todo", Name: "To Do"}}}}}
		case "13":
			return bus.ErrorReply{Error: "user not linked"}
		default:
			return Snapshot{}
		}
	})
	p := NewNATSProvider(nc, time.Second)
	ctx := context.Background()

	snap, err := p.Snapshot(ctx, "42")
	require.NoError(t, err)
	require.Len(t, snap.Destinations, 1)
	assert.Equal(t, "shop", snap.Destinations[0].ID)

	_, err = p.Snapshot(ctx, "13")
	assert.ErrorContains(t, err, "user not linked")

	_, err = p.Snapshot(ctx, "7")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = p.Snapshot(ctx, "a.b")
	assert.ErrorIs(t, err, bus.ErrInvalidToken)
}

func TestNATSProvider_NoResponder(t *testing.T) {
	nc := startTestNATSServer(t)
	p := NewNATSProvider(nc, 200*time.Millisecond)

	_, err := p.Snapshot(context.Background(), "42")
	assert.Error(t, err)
}

func TestNATSCommitter_Commit(t *testing.T) {
	nc := startTestNATSServer(t)
	received := make(chan Item, 1)
	reply(t, nc, bus.CommitSubject, func(m *nats.Msg) any {
		var item Item
		if err := json.Unmarshal(m.Data, &item); err != nil {
			return bus.ErrorReply{Error: err.Error()}
		}
		received <- item
		return Receipt{ItemID: "card-1"}
	})

	c := NewNATSCommitter(nc, time.Second)
	item := NewItem("42", task.Candidate{Name: "Fix checkout", Labels: []string{"bug"}, Priority: "high"}, "shop", "todo", 0.9)

	r, err := c.Commit(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, "card-1", r.ItemID)
	assert.Equal(t, item.IdempotencyKey, r.IdempotencyKey)

	got := <-received
	assert.Equal(t, "Fix checkout", got.Name)
	assert.Equal(t, []string{"bug"}, got.Labels)
	assert.Equal(t, "high", got.Priority)
	assert.Equal(t, item.IdempotencyKey, got.IdempotencyKey)
}

func TestNATSCommitter_RejectsBadReply(t *testing.T) {
	nc := startTestNATSServer(t)
	reply(t, nc, bus.CommitSubject, func(*nats.Msg) any { return Receipt{} })

	c := NewNATSCommitter(nc, time.Second)
	_, err := c.Commit(context.Background(), NewItem("42", task.Candidate{Name: "x"}, "shop", "todo", 1))
	assert.ErrorContains(t, err, "no item id")

	_, err = c.Commit(context.Background(), Item{Name: "no key"})
	assert.Error(t, err)
}
