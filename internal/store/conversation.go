package store

import (
	"context"

	"huddle.app/relay/core/db/sqlc"
	"huddle.app/relay/internal/model"
)

type conversationStore struct {
	queries *sqlc.Queries
}

func newConversationStore(queries *sqlc.Queries) ConversationStore {
	return &conversationStore{queries: queries}
}

func (s *conversationStore) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	row, err := s.queries.GetConversation(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return &model.Conversation{
		ID:        row.ID,
		Title:     row.Title,
		CreatedAt: row.CreatedAt,
	}, nil
}

type memberStore struct {
	queries *sqlc.Queries
}

func newMemberStore(queries *sqlc.Queries) MemberStore {
	return &memberStore{queries: queries}
}

func (s *memberStore) Get(ctx context.Context, conversationID int64, userID string) (*model.Member, error) {
	row, err := s.queries.GetConversationMember(ctx, sqlc.GetConversationMemberParams{
		ConversationID: conversationID,
		UserID:         userID,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return toMemberModel(row), nil
}

func (s *memberStore) ListByConversation(ctx context.Context, conversationID int64) ([]model.Member, error) {
	rows, err := s.queries.ListConversationMembers(ctx, conversationID)
	if err != nil {
		return nil, mapError(err)
	}
	members := make([]model.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, *toMemberModel(row))
	}
	return members, nil
}

func toMemberModel(row sqlc.ConversationMember) *model.Member {
	return &model.Member{
		ConversationID: row.ConversationID,
		UserID:         row.UserID,
		Role:           model.ConversationRole(row.Role),
		JoinedAt:       row.JoinedAt,
	}
}
