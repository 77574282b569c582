package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/jewelry-assistant/internal/common"
	"github.com/suPer8Hu/jewelry-assistant/internal/imagegen"
	"go.uber.org/zap"
)

type requestImageReq struct {
	SessionID  string `json:"session_id" binding:"required"`
	ToolCallID string `json:"tool_call_id" binding:"required"`
	Prompt     string `json:"prompt" binding:"required"`
}

func (h *Handler) RequestImage(c *gin.Context) {
	var req requestImageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	t, err := h.Images.Request(c.Request.Context(), req.SessionID, req.ToolCallID, req.Prompt)
	switch {
	case errors.Is(err, imagegen.ErrDuplicateRequest):
		common.Fail(c, http.StatusConflict, 40901, "tool call id already used")
		return
	case errors.Is(err, imagegen.ErrInvalidRequest):
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
		return
	case err != nil:
		h.Logger.Error("image request failed", zap.String("tool_call_id", req.ToolCallID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"toolCallId": t.ToolCallID, "status": t.Status})
}

// GetImageStatus returns the job view. With ?wait=<duration> it long-polls
// until the job is terminal or the wait (capped) runs out.
func (h *Handler) GetImageStatus(c *gin.Context) {
	id := c.Param("tool_call_id")
	ctx := c.Request.Context()

	if w := c.Query("wait"); w != "" {
		wait, err := time.ParseDuration(w)
		if err != nil || wait < 0 {
			common.Fail(c, http.StatusBadRequest, 10003, "invalid wait duration")
			return
		}
		if wait > maxStatusWait {
			wait = maxStatusWait
		}
		p := imagegen.DefaultPollPolicy
		p.MaxWait = wait
		_, err = imagegen.Await(ctx, func(ctx context.Context) (*imagegen.StatusView, error) {
			return h.Images.Status(ctx, id)
		}, p)
		if err != nil && !errors.Is(err, imagegen.ErrStillWorking) {
			h.statusError(c, id, err)
			return
		}
	}

	b, err := h.Images.StatusJSON(ctx, id)
	if err != nil {
		h.statusError(c, id, err)
		return
	}
	common.OK(c, json.RawMessage(b))
}

func (h *Handler) statusError(c *gin.Context, id string, err error) {
	switch {
	case errors.Is(err, imagegen.ErrJobNotFound):
		common.Fail(c, http.StatusNotFound, 40402, "image job not found")
	case errors.Is(err, context.Canceled):
		// client went away
		c.Abort()
	default:
		h.Logger.Error("image status failed", zap.String("tool_call_id", id), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
