package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"huddle.app/relay/internal/model"
	"huddle.app/relay/internal/queue"
	"huddle.app/relay/internal/service"
	"huddle.app/relay/internal/store"
)

type mockConversationStore struct {
	getByIDFn func(ctx context.Context, id int64) (*model.Conversation, error)
}

func (m *mockConversationStore) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return &model.Conversation{ID: id, Title: "care team"}, nil
}

type mockMemberStore struct {
	roles  map[string]model.ConversationRole
	getErr error
}

func (m *mockMemberStore) Get(ctx context.Context, conversationID int64, userID string) (*model.Member, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	role, ok := m.roles[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &model.Member{ConversationID: conversationID, UserID: userID, Role: role}, nil
}

func (m *mockMemberStore) ListByConversation(ctx context.Context, conversationID int64) ([]model.Member, error) {
	var out []model.Member
	for userID, role := range m.roles {
		out = append(out, model.Member{ConversationID: conversationID, UserID: userID, Role: role})
	}
	return out, nil
}

// memMessages and memRecords are in-memory stores with optional error injection.
type memMessages struct {
	mu        sync.Mutex
	byID      map[int64]model.Message
	createErr error
	listArgs  []int64
}

func newMemMessages() *memMessages {
	return &memMessages{byID: make(map[int64]model.Message)}
}

func (m *memMessages) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	stored := *msg
	stored.CreatedAt = time.Now().UTC()
	m.byID[stored.ID] = stored
	return &stored, nil
}

func (m *memMessages) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &msg, nil
}

func (m *memMessages) ListBefore(ctx context.Context, conversationID, beforeID int64, limit int32) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listArgs = []int64{conversationID, beforeID, int64(limit)}

	var out []model.Message
	for _, msg := range m.byID {
		if msg.ConversationID == conversationID && msg.ID < beforeID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memMessages) All() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Message, 0, len(m.byID))
	for _, msg := range m.byID {
		out = append(out, msg)
	}
	return out
}

type memRecords struct {
	mu        sync.Mutex
	byID      map[int64]model.InteractionRecord
	createErr error
}

func newMemRecords() *memRecords {
	return &memRecords{byID: make(map[int64]model.InteractionRecord)}
}

func (m *memRecords) Create(ctx context.Context, rec *model.InteractionRecord) (*model.InteractionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	for _, existing := range m.byID {
		if existing.UserMessageID == rec.UserMessageID && existing.Attempt == rec.Attempt {
			return nil, store.ErrAlreadyExists
		}
	}
	stored := *rec
	stored.CreatedAt = time.Now().UTC()
	m.byID[stored.ID] = stored
	return &stored, nil
}

func (m *memRecords) GetByID(ctx context.Context, id int64) (*model.InteractionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (m *memRecords) GetLatestForMessage(ctx context.Context, userMessageID int64) (*model.InteractionRecord, error) {
	records, _ := m.ListForMessage(ctx, userMessageID)
	if len(records) == 0 {
		return nil, store.ErrNotFound
	}
	latest := records[len(records)-1]
	return &latest, nil
}

func (m *memRecords) ListForMessage(ctx context.Context, userMessageID int64) ([]model.InteractionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.InteractionRecord
	for _, rec := range m.byID {
		if rec.UserMessageID == userMessageID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attempt < out[j].Attempt })
	return out, nil
}

func (m *memRecords) Complete(ctx context.Context, id int64, outcome model.InteractionOutcome) (*model.InteractionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if rec.Status != model.InteractionStatusPending {
		return nil, store.ErrNotPending
	}
	now := time.Now().UTC()
	rec.Status = outcome.Status
	rec.AIMessageID = outcome.AIMessageID
	rec.Model = outcome.Model
	rec.DurationMs = &outcome.DurationMs
	rec.Error = outcome.Error
	rec.CompletedAt = &now
	m.byID[id] = rec
	return &rec, nil
}

func (m *memRecords) All() []model.InteractionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.InteractionRecord, 0, len(m.byID))
	for _, rec := range m.byID {
		out = append(out, rec)
	}
	return out
}

type mockStoreProvider struct {
	messages store.MessageStore
	records  store.InteractionRecordStore
}

func (m *mockStoreProvider) Messages() store.MessageStore {
	return m.messages
}

func (m *mockStoreProvider) InteractionRecords() store.InteractionRecordStore {
	return m.records
}

type mockTxRunner struct {
	withTxFn func(ctx context.Context, fn func(stores service.StoreProvider) error) error
}

func (m *mockTxRunner) WithTx(ctx context.Context, fn func(stores service.StoreProvider) error) error {
	if m.withTxFn != nil {
		return m.withTxFn(ctx, fn)
	}
	return fn(&mockStoreProvider{})
}

type mockProducer struct {
	mu   sync.Mutex
	jobs []queue.DispatchJob
	err  error
}

func (m *mockProducer) Enqueue(ctx context.Context, job queue.DispatchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *mockProducer) Jobs() []queue.DispatchJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]queue.DispatchJob(nil), m.jobs...)
}

// recordingAnnouncer also records the producer's job count at announce
// time so tests can assert fanout happens before the job is queued.
type recordingAnnouncer struct {
	producer    *mockProducer
	announced   []model.Message
	jobsAtCalls []int
}

func (a *recordingAnnouncer) Announce(ctx context.Context, msg model.Message) {
	a.announced = append(a.announced, msg)
	if a.producer != nil {
		a.jobsAtCalls = append(a.jobsAtCalls, len(a.producer.Jobs()))
	}
}
