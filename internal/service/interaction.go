package service

import (
	"context"
	"errors"
	"fmt"

	"huddle.app/relay/internal/model"
	"huddle.app/relay/internal/store"
)

// InteractionService is read-only; records are written by the ingress path
// (create) and the dispatcher (complete).
type InteractionService interface {
	Get(ctx context.Context, id int64) (*model.InteractionRecord, error)
	ListForMessage(ctx context.Context, messageID int64) ([]model.InteractionRecord, error)
}

type interactionService struct {
	records  store.InteractionRecordStore
	messages store.MessageStore
}

func NewInteractionService(records store.InteractionRecordStore, messages store.MessageStore) InteractionService {
	return &interactionService{records: records, messages: messages}
}

func (s *interactionService) Get(ctx context.Context, id int64) (*model.InteractionRecord, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInteractionNotFound
		}
		return nil, fmt.Errorf("fetching interaction record: %w", err)
	}
	return rec, nil
}

func (s *interactionService) ListForMessage(ctx context.Context, messageID int64) ([]model.InteractionRecord, error) {
	if _, err := s.messages.GetByID(ctx, messageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("fetching message: %w", err)
	}

	records, err := s.records.ListForMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("listing interaction records: %w", err)
	}
	return records, nil
}
