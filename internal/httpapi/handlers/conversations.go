package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/jewelry-assistant/internal/chat"
	"github.com/suPer8Hu/jewelry-assistant/internal/common"
	"go.uber.org/zap"
)

type appendMessageReq struct {
	SessionID string        `json:"session_id" binding:"required"`
	Role      chat.Role     `json:"role" binding:"required"`
	Content   string        `json:"content"`
	ToolsUsed []string      `json:"tools_used"`
	UserID    *string       `json:"user_id"`
	Context   *chat.Context `json:"context"`
}

func (h *Handler) AppendConversationMessage(c *gin.Context) {
	var req appendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	m, err := h.Sessions.AppendMessage(c.Request.Context(), req.SessionID, chat.NewMessage{
		Role:      req.Role,
		Content:   req.Content,
		ToolsUsed: req.ToolsUsed,
		UserID:    req.UserID,
	}, req.Context)
	if err != nil {
		h.sessionError(c, req.SessionID, err)
		return
	}
	common.OK(c, gin.H{"message": m, "messageIndex": m.Position})
}

type appendFeedbackReq struct {
	SessionID    string      `json:"session_id" binding:"required"`
	MessageIndex *int        `json:"message_index" binding:"required"`
	Rating       chat.Rating `json:"rating" binding:"required"`
	Comment      *string     `json:"comment"`
}

func (h *Handler) AppendFeedback(c *gin.Context) {
	var req appendFeedbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	f, err := h.Sessions.AppendFeedback(c.Request.Context(), req.SessionID, *req.MessageIndex, req.Rating, req.Comment)
	if err != nil {
		h.sessionError(c, req.SessionID, err)
		return
	}
	common.OK(c, gin.H{"feedback": f})
}

func (h *Handler) GetConversation(c *gin.Context) {
	sess, err := h.Sessions.Get(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		h.sessionError(c, c.Param("session_id"), err)
		return
	}
	common.OK(c, gin.H{"session": sess})
}

func (h *Handler) ListTrainingData(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	skip, _ := strconv.Atoi(c.Query("skip"))

	convs, total, err := h.Sessions.ListTrainingData(c.Request.Context(), limit, skip)
	if err != nil {
		h.sessionError(c, "", err)
		return
	}
	common.OK(c, gin.H{"conversations": convs, "total": total})
}

func (h *Handler) sessionError(c *gin.Context, sessionID string, err error) {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "session not found")
	case errors.Is(err, chat.ErrInvalidMessageIndex),
		errors.Is(err, chat.ErrInvalidRating),
		errors.Is(err, chat.ErrInvalidRole),
		errors.Is(err, chat.ErrEmptySessionID):
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
	default:
		h.Logger.Error("session request failed", zap.String("session_id", sessionID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
