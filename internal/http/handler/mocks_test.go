package handler_test

import (
	"context"

	"huddle.app/relay/internal/model"
	"huddle.app/relay/internal/service"
)

type mockMessageService struct {
	sendFn       func(ctx context.Context, params service.SendParams) (*service.SendResult, error)
	historyFn    func(ctx context.Context, params service.HistoryParams) ([]model.Message, error)
	getFn        func(ctx context.Context, userID string, messageID int64) (*model.Message, error)
	redispatchFn func(ctx context.Context, messageID int64, traceID string) (*model.InteractionRecord, error)
}

func (m *mockMessageService) Send(ctx context.Context, params service.SendParams) (*service.SendResult, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, params)
	}
	return nil, nil
}

func (m *mockMessageService) History(ctx context.Context, params service.HistoryParams) ([]model.Message, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, params)
	}
	return nil, nil
}

func (m *mockMessageService) Get(ctx context.Context, userID string, messageID int64) (*model.Message, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, messageID)
	}
	return nil, service.ErrMessageNotFound
}

func (m *mockMessageService) Redispatch(ctx context.Context, messageID int64, traceID string) (*model.InteractionRecord, error) {
	if m.redispatchFn != nil {
		return m.redispatchFn(ctx, messageID, traceID)
	}
	return nil, nil
}

type mockInteractionService struct {
	getFn            func(ctx context.Context, id int64) (*model.InteractionRecord, error)
	listForMessageFn func(ctx context.Context, messageID int64) ([]model.InteractionRecord, error)
}

func (m *mockInteractionService) Get(ctx context.Context, id int64) (*model.InteractionRecord, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, service.ErrInteractionNotFound
}

func (m *mockInteractionService) ListForMessage(ctx context.Context, messageID int64) ([]model.InteractionRecord, error) {
	if m.listForMessageFn != nil {
		return m.listForMessageFn(ctx, messageID)
	}
	return nil, nil
}
