package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"huddle.app/relay/common/id"
	"huddle.app/relay/internal/http/dto"
	"huddle.app/relay/internal/service"
)

type InteractionHandler struct {
	service service.InteractionService
}

func NewInteractionHandler(service service.InteractionService) *InteractionHandler {
	return &InteractionHandler{service: service}
}

func (h *InteractionHandler) Get(c *gin.Context) {
	recordID, err := id.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interaction id"})
		return
	}

	rec, err := h.service.Get(c.Request.Context(), recordID)
	if err != nil {
		writeServiceError(c, err, "failed to load interaction")
		return
	}

	c.JSON(http.StatusOK, dto.ToInteractionResponse(rec))
}

func (h *InteractionHandler) ListForMessage(c *gin.Context) {
	messageID, err := id.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	records, err := h.service.ListForMessage(c.Request.Context(), messageID)
	if err != nil {
		writeServiceError(c, err, "failed to list interactions")
		return
	}

	c.JSON(http.StatusOK, dto.ToInteractionListResponse(records))
}
