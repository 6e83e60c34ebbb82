// Package routing decides whether a conversation message needs an AI reply.
package routing

import (
	"fmt"
	"log/slog"

	"huddle.app/relay/internal/model"
)

// Decision reasons, also used as a metrics label.
const (
	ReasonRequester   = "requester_role"
	ReasonProvider    = "provider_role"
	ReasonUnknownRole = "unknown_role"
	ReasonAIReply     = "ai_reply"
)

type Decision struct {
	RequiresAIDispatch bool
	Reason             string
}

type Config struct {
	RequesterRoles []string
	ProviderRoles  []string
}

// Router is safe for concurrent use; it is read-only after New.
type Router struct {
	requesters map[model.ConversationRole]struct{}
	providers  map[model.ConversationRole]struct{}
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Router{
		requesters: roleSet(cfg.RequesterRoles),
		providers:  roleSet(cfg.ProviderRoles),
		logger:     logger,
	}

	for role := range r.requesters {
		if _, ok := r.providers[role]; ok {
			return nil, fmt.Errorf("role %q is configured as both requester and provider", role)
		}
	}

	return r, nil
}

// Route looks only at the sender's role in the conversation. Roles that are
// in neither set never dispatch.
func (r *Router) Route(msg model.Message, role model.ConversationRole) Decision {
	// replies are never fed back to the assistant
	if msg.IsAIReply() {
		return Decision{Reason: ReasonAIReply}
	}

	normalized := role.Normalize()
	if _, ok := r.requesters[normalized]; ok {
		return Decision{RequiresAIDispatch: true, Reason: ReasonRequester}
	}
	if _, ok := r.providers[normalized]; ok {
		return Decision{Reason: ReasonProvider}
	}

	r.logger.Warn("unrecognized conversation role, not dispatching",
		"role", string(role),
		"conversation_id", msg.ConversationID,
		"message_id", msg.ID,
		"sender_id", msg.SenderID)
	return Decision{Reason: ReasonUnknownRole}
}

func roleSet(roles []string) map[model.ConversationRole]struct{} {
	set := make(map[model.ConversationRole]struct{}, len(roles))
	for _, role := range roles {
		normalized := model.ConversationRole(role).Normalize()
		if normalized == "" {
			continue
		}
		set[normalized] = struct{}{}
	}
	return set
}
