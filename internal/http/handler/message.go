package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"huddle.app/relay/common/id"
	"huddle.app/relay/internal/http/dto"
	"huddle.app/relay/internal/http/middleware"
	"huddle.app/relay/internal/realtime"
	"huddle.app/relay/internal/service"
)

type MessageHandler struct {
	service     service.MessageService
	traceHeader string
}

func NewMessageHandler(service service.MessageService, traceHeader string) *MessageHandler {
	return &MessageHandler{
		service:     service,
		traceHeader: traceHeader,
	}
}

func (h *MessageHandler) Send(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, err := id.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Send(ctx, service.SendParams{
		ConversationID: conversationID,
		SenderID:       middleware.GetUserID(c),
		Body:           req.Body,
		Channel:        service.ChannelHTTP,
		TraceID:        h.traceID(c),
	})
	if err != nil {
		writeServiceError(c, err, "failed to send message")
		return
	}

	c.JSON(http.StatusCreated, dto.SendMessageResponse{
		Message:            realtime.ToWireMessage(*result.Message),
		RequiresAIDispatch: result.Decision.RequiresAIDispatch,
		RoutingReason:      result.Decision.Reason,
		Interaction:        dto.ToInteractionResponse(result.Record),
		Enqueued:           result.Enqueued,
	})
}

func (h *MessageHandler) History(c *gin.Context) {
	conversationID, err := id.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	var req dto.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := service.HistoryParams{
		ConversationID: conversationID,
		UserID:         middleware.GetUserID(c),
		Limit:          req.Limit,
	}
	if req.Before != "" {
		before, err := id.Parse(req.Before)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
			return
		}
		params.BeforeID = &before
	}

	messages, err := h.service.History(c.Request.Context(), params)
	if err != nil {
		writeServiceError(c, err, "failed to load history")
		return
	}

	limit := req.Limit
	if limit == 0 {
		limit = service.DefaultHistoryLimit
	}
	c.JSON(http.StatusOK, dto.ToHistoryResponse(messages, limit))
}

func (h *MessageHandler) Get(c *gin.Context) {
	messageID, err := id.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	msg, err := h.service.Get(c.Request.Context(), middleware.GetUserID(c), messageID)
	if err != nil {
		writeServiceError(c, err, "failed to load message")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": realtime.ToWireMessage(*msg)})
}

func (h *MessageHandler) Redispatch(c *gin.Context) {
	messageID, err := id.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	rec, err := h.service.Redispatch(c.Request.Context(), messageID, h.traceID(c))
	if err != nil {
		writeServiceError(c, err, "failed to re-dispatch message")
		return
	}

	c.JSON(http.StatusAccepted, dto.ToInteractionResponse(rec))
}

// traceID prefers an upstream trace header and falls back to the request span.
func (h *MessageHandler) traceID(c *gin.Context) string {
	if traceID := c.GetHeader(h.traceHeader); traceID != "" {
		return traceID
	}
	if spanCtx := trace.SpanContextFromContext(c.Request.Context()); spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}
