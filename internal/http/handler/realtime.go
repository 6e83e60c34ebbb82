package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"huddle.app/relay/common/id"
	"huddle.app/relay/common/logger"
	"huddle.app/relay/internal/http/dto"
	"huddle.app/relay/internal/http/middleware"
	"huddle.app/relay/internal/metrics"
	"huddle.app/relay/internal/realtime"
	"huddle.app/relay/internal/service"
)

type RealtimeConfig struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	InboundRPS     float64
	InboundBurst   int
	AllowedOrigins []string
}

type RealtimeHandler struct {
	registry *realtime.Registry
	messages service.MessageService
	metrics  *metrics.Metrics
	cfg      RealtimeConfig
	upgrader websocket.Upgrader
}

func NewRealtimeHandler(registry *realtime.Registry, messages service.MessageService, m *metrics.Metrics, cfg RealtimeConfig) *RealtimeHandler {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.InboundRPS <= 0 {
		cfg.InboundRPS = 5
	}
	if cfg.InboundBurst <= 0 {
		cfg.InboundBurst = 10
	}

	h := &RealtimeHandler{
		registry: registry,
		messages: messages,
		metrics:  m,
		cfg:      cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin allows any origin when none are configured. Requests without
// an Origin header come from non-browser clients and are allowed.
func (h *RealtimeHandler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(h.cfg.AllowedOrigins, origin)
}

// Connect upgrades the request and serves the socket until it closes.
func (h *RealtimeHandler) Connect(c *gin.Context) {
	userID := middleware.GetUserID(c)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		slog.WarnContext(c.Request.Context(), "websocket upgrade failed", "error", err)
		return
	}

	conn := realtime.NewConn(ws, userID, realtime.ConnConfig{
		SendBuffer: h.cfg.SendBuffer,
		WriteWait:  h.cfg.WriteTimeout,
	})
	ctx := logger.WithLogFields(context.WithoutCancel(c.Request.Context()), logger.LogFields{
		UserID:       logger.Ptr(userID),
		ConnectionID: logger.Ptr(conn.ID()),
		Component:    "relay.http.realtime",
	})

	h.registry.Register(userID, conn)
	defer h.registry.Unregister(userID, conn)

	go conn.WritePump()

	h.reply(ctx, conn, realtime.WelcomeFrame{
		Type:         realtime.FrameWelcome,
		ConnectionID: conn.ID(),
		UserID:       userID,
		ServerTime:   time.Now().UTC(),
	})
	slog.InfoContext(ctx, "websocket connected")

	limiter := rate.NewLimiter(rate.Limit(h.cfg.InboundRPS), h.cfg.InboundBurst)
	conn.ReadPump(func(data []byte) {
		h.handleFrame(ctx, conn, limiter, data)
	})

	slog.InfoContext(ctx, "websocket disconnected")
}

func (h *RealtimeHandler) handleFrame(ctx context.Context, conn *realtime.Conn, limiter *rate.Limiter, data []byte) {
	var frame realtime.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.reply(ctx, conn, realtime.NewErrorFrame("", realtime.CodeInvalidFormat, "frame must be a JSON object"))
		return
	}

	switch frame.Type {
	case realtime.FramePing:
		h.reply(ctx, conn, realtime.PongFrame{Type: realtime.FramePong, ServerTime: time.Now().UTC()})
	case realtime.FrameSendMessage:
		if !limiter.Allow() {
			h.metrics.InboundRateLimited()
			h.reply(ctx, conn, realtime.NewErrorFrame(frame.RequestID, realtime.CodeRateLimited, "too many messages, slow down"))
			return
		}
		h.handleSendMessage(ctx, conn, frame)
	default:
		h.reply(ctx, conn, realtime.NewErrorFrame(frame.RequestID, realtime.CodeUnknownMessageType, "unknown frame type: "+frame.Type))
	}
}

func (h *RealtimeHandler) handleSendMessage(ctx context.Context, conn *realtime.Conn, frame realtime.InboundFrame) {
	conversationID, err := id.Parse(frame.ConversationID)
	if err != nil || conversationID == 0 {
		h.reply(ctx, conn, realtime.NewErrorFrame(frame.RequestID, realtime.CodeValidation, "conversation_id is required"))
		return
	}

	span := logger.StartSpan(ctx, "realtime.send_message")
	defer span.End()
	ctx = span.Context()

	result, err := h.messages.Send(ctx, service.SendParams{
		ConversationID: conversationID,
		SenderID:       conn.UserID(),
		Body:           frame.Body,
		Channel:        service.ChannelWebsocket,
		TraceID:        span.TraceID(),
	})
	if err != nil {
		span.Fail(err)
		h.reply(ctx, conn, sendErrorFrame(ctx, frame.RequestID, err))
		return
	}

	h.reply(ctx, conn, realtime.MessageSentFrame{
		Type:      realtime.FrameMessageSent,
		RequestID: frame.RequestID,
		Message:   realtime.ToWireMessage(*result.Message),
	})
}

func sendErrorFrame(ctx context.Context, requestID string, err error) realtime.ErrorFrame {
	switch {
	case errors.Is(err, service.ErrInvalidMessage):
		return realtime.NewErrorFrame(requestID, realtime.CodeValidation, err.Error())
	case errors.Is(err, service.ErrConversationNotFound):
		return realtime.NewErrorFrame(requestID, realtime.CodeNotFound, err.Error())
	case errors.Is(err, service.ErrNotMember):
		return realtime.NewErrorFrame(requestID, realtime.CodeForbidden, err.Error())
	default:
		slog.ErrorContext(ctx, "websocket send_message failed", "error", err)
		return realtime.NewErrorFrame(requestID, realtime.CodeSendFailed, "failed to send message")
	}
}

func (h *RealtimeHandler) reply(ctx context.Context, conn *realtime.Conn, frame any) {
	writeCtx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Send(writeCtx, realtime.Encode(frame)); err != nil {
		slog.DebugContext(ctx, "dropping reply to closed connection", "error", err)
	}
}

func (h *RealtimeHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, dto.RealtimeStatsResponse{
		Connections: h.registry.Count(),
		Users:       h.registry.UserCount(),
	})
}
