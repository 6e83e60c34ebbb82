package fanout_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"huddle.app/relay/internal/fanout"
	"huddle.app/relay/internal/model"
)

var errBrokenPipe = errors.New("broken pipe")

type fakeHandle struct {
	id     string
	userID string
	err    error
	delay  time.Duration
	closed atomic.Bool

	mu   sync.Mutex
	sent [][]byte
}

func (h *fakeHandle) ID() string     { return h.id }
func (h *fakeHandle) UserID() string { return h.userID }
func (h *fakeHandle) Alive() bool    { return !h.closed.Load() }
func (h *fakeHandle) Close()         { h.closed.Store(true) }

func (h *fakeHandle) Send(ctx context.Context, payload []byte) error {
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if h.err != nil {
		return h.err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, payload)
	return nil
}

func (h *fakeHandle) Sent() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.sent...)
}

type mockMemberStore struct {
	listFn func(ctx context.Context, conversationID int64) ([]model.Member, error)
}

func (m *mockMemberStore) Get(ctx context.Context, conversationID int64, userID string) (*model.Member, error) {
	return nil, nil
}

func (m *mockMemberStore) ListByConversation(ctx context.Context, conversationID int64) ([]model.Member, error) {
	if m.listFn != nil {
		return m.listFn(ctx, conversationID)
	}
	return nil, nil
}

func membersOf(conversationID int64, userIDs ...string) []model.Member {
	out := make([]model.Member, 0, len(userIDs))
	for _, u := range userIDs {
		out = append(out, model.Member{ConversationID: conversationID, UserID: u, Role: model.RolePatient})
	}
	return out
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []model.Message
	err       error
	done      chan struct{}
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{done: make(chan struct{}, 10)}
}

func (p *recordingPublisher) PublishMessage(ctx context.Context, msg model.Message) (fanout.DeliveryReport, error) {
	p.mu.Lock()
	p.published = append(p.published, msg)
	p.mu.Unlock()
	p.done <- struct{}{}
	return fanout.DeliveryReport{}, p.err
}

func (p *recordingPublisher) Published() []model.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Message(nil), p.published...)
}

// fakeRedis satisfies redis.Cmdable by embedding; only Publish is implemented.
type fakeRedis struct {
	redis.Cmdable
	channel string
	payload []byte
	err     error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.channel = channel
	f.payload = message.([]byte)
	cmd.SetVal(1)
	return cmd
}
