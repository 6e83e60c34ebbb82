package store

import (
	"context"
	"errors"
	"fmt"

	"huddle.app/relay/core/db/sqlc"
	"huddle.app/relay/internal/model"
)

type interactionRecordStore struct {
	queries *sqlc.Queries
}

func newInteractionRecordStore(queries *sqlc.Queries) InteractionRecordStore {
	return &interactionRecordStore{queries: queries}
}

func (s *interactionRecordStore) Create(ctx context.Context, rec *model.InteractionRecord) (*model.InteractionRecord, error) {
	attempt := rec.Attempt
	if attempt < 1 {
		attempt = 1
	}
	row, err := s.queries.CreateInteractionRecord(ctx, sqlc.CreateInteractionRecordParams{
		ID:             rec.ID,
		ConversationID: rec.ConversationID,
		UserMessageID:  rec.UserMessageID,
		Attempt:        int32(attempt),
	})
	if err != nil {
		return nil, mapError(err)
	}
	return toInteractionRecordModel(row), nil
}

func (s *interactionRecordStore) GetByID(ctx context.Context, id int64) (*model.InteractionRecord, error) {
	row, err := s.queries.GetInteractionRecord(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return toInteractionRecordModel(row), nil
}

func (s *interactionRecordStore) GetLatestForMessage(ctx context.Context, userMessageID int64) (*model.InteractionRecord, error) {
	row, err := s.queries.GetLatestInteractionRecordForMessage(ctx, userMessageID)
	if err != nil {
		return nil, mapError(err)
	}
	return toInteractionRecordModel(row), nil
}

func (s *interactionRecordStore) ListForMessage(ctx context.Context, userMessageID int64) ([]model.InteractionRecord, error) {
	rows, err := s.queries.ListInteractionRecordsForMessage(ctx, userMessageID)
	if err != nil {
		return nil, mapError(err)
	}
	records := make([]model.InteractionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, *toInteractionRecordModel(row))
	}
	return records, nil
}

func (s *interactionRecordStore) Complete(ctx context.Context, id int64, outcome model.InteractionOutcome) (*model.InteractionRecord, error) {
	if !outcome.Status.IsTerminal() {
		return nil, fmt.Errorf("completing record %d with non-terminal status %q", id, outcome.Status)
	}

	durationMs := outcome.DurationMs
	row, err := s.queries.CompleteInteractionRecord(ctx, sqlc.CompleteInteractionRecordParams{
		ID:          id,
		Status:      string(outcome.Status),
		AiMessageID: outcome.AIMessageID,
		Model:       clip(outcome.Model, model.MaxInteractionModelLen),
		DurationMs:  &durationMs,
		Error:       TruncateError(outcome.Error),
	})
	if err == nil {
		return toInteractionRecordModel(row), nil
	}

	if err = mapError(err); !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// The conditional update matched nothing: either the record is gone or it
	// was already completed by someone else.
	if _, getErr := s.queries.GetInteractionRecord(ctx, id); getErr != nil {
		return nil, mapError(getErr)
	}
	return nil, ErrNotPending
}

// TruncateError clips an error detail to the column width, counted in runes.
func TruncateError(detail *string) *string {
	return clip(detail, model.MaxInteractionErrorLen)
}

func clip(s *string, maxRunes int) *string {
	if s == nil {
		return nil
	}
	runes := []rune(*s)
	if len(runes) <= maxRunes {
		return s
	}
	clipped := string(runes[:maxRunes])
	return &clipped
}

func toInteractionRecordModel(row sqlc.InteractionRecord) *model.InteractionRecord {
	return &model.InteractionRecord{
		ID:             row.ID,
		ConversationID: row.ConversationID,
		UserMessageID:  row.UserMessageID,
		AIMessageID:    row.AiMessageID,
		Status:         model.InteractionStatus(row.Status),
		Attempt:        int(row.Attempt),
		Model:          row.Model,
		DurationMs:     row.DurationMs,
		Error:          row.Error,
		CreatedAt:      row.CreatedAt,
		CompletedAt:    row.CompletedAt,
	}
}
