package store

import (
	"context"

	"huddle.app/relay/core/db/sqlc"
	"huddle.app/relay/internal/model"
)

type messageStore struct {
	queries *sqlc.Queries
}

func newMessageStore(queries *sqlc.Queries) MessageStore {
	return &messageStore{queries: queries}
}

func (s *messageStore) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	row, err := s.queries.CreateMessage(ctx, sqlc.CreateMessageParams{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Kind:           string(msg.Kind),
		Body:           msg.Body,
		ReplyToID:      msg.ReplyToID,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return toMessageModel(row), nil
}

func (s *messageStore) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	row, err := s.queries.GetMessage(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return toMessageModel(row), nil
}

func (s *messageStore) ListBefore(ctx context.Context, conversationID, beforeID int64, limit int32) ([]model.Message, error) {
	rows, err := s.queries.ListMessagesBefore(ctx, sqlc.ListMessagesBeforeParams{
		ConversationID: conversationID,
		ID:             beforeID,
		Limit:          limit,
	})
	if err != nil {
		return nil, mapError(err)
	}
	msgs := make([]model.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, *toMessageModel(row))
	}
	return msgs, nil
}

func toMessageModel(row sqlc.Message) *model.Message {
	return &model.Message{
		ID:             row.ID,
		ConversationID: row.ConversationID,
		SenderID:       row.SenderID,
		Kind:           model.MessageKind(row.Kind),
		Body:           row.Body,
		ReplyToID:      row.ReplyToID,
		CreatedAt:      row.CreatedAt,
	}
}
