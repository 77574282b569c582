package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/jewelry-assistant/internal/assistant"
	"github.com/suPer8Hu/jewelry-assistant/internal/common"
	"github.com/suPer8Hu/jewelry-assistant/internal/httpapi/middleware"
	"go.uber.org/zap"
)

type sendMessageReq struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

func (h *Handler) SendAssistantMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	turn, err := h.Assistant.Run(c.Request.Context(), assistant.TurnRequest{SessionID: req.SessionID, Utterance: req.Message})
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyUtterance) {
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
			return
		}
		h.Logger.Error("assistant turn failed",
			zap.String("session_id", req.SessionID),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err),
		)
		common.Fail(c, http.StatusBadGateway, 50201, "assistant unavailable")
		return
	}
	common.OK(c, gin.H{"turn": turn})
}
