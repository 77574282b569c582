package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/jewelry-assistant/internal/common"
	"github.com/suPer8Hu/jewelry-assistant/internal/knowledge"
	"go.uber.org/zap"
)

type searchKnowledgeReq struct {
	Query    string             `json:"query" binding:"required"`
	Category knowledge.Category `json:"category"`
	Limit    int                `json:"limit"`
}

func (h *Handler) SearchKnowledge(c *gin.Context) {
	var req searchKnowledgeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	res, err := h.Knowledge.Search(c.Request.Context(), req.Query, req.Category, req.Limit)
	if err != nil {
		h.knowledgeError(c, err)
		return
	}
	common.OK(c, gin.H{"results": res})
}

func (h *Handler) ListKnowledge(c *gin.Context) {
	f := knowledge.ListFilter{Category: knowledge.Category(c.Query("category"))}
	f.Limit, _ = strconv.Atoi(c.Query("limit"))
	f.Skip, _ = strconv.Atoi(c.Query("skip"))
	if v := c.Query("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10003, "active must be a boolean")
			return
		}
		f.IsActive = &b
	}

	entries, total, err := h.Knowledge.List(c.Request.Context(), f)
	if err != nil {
		h.knowledgeError(c, err)
		return
	}
	common.OK(c, gin.H{"entries": entries, "total": total})
}

func (h *Handler) AddKnowledge(c *gin.Context) {
	var req knowledge.NewEntry
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	e, err := h.Knowledge.Add(c.Request.Context(), req)
	if err != nil {
		h.knowledgeError(c, err)
		return
	}
	common.OK(c, gin.H{"entry": e})
}

func (h *Handler) UpdateKnowledge(c *gin.Context) {
	var req knowledge.Patch
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	e, err := h.Knowledge.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.knowledgeError(c, err)
		return
	}
	common.OK(c, gin.H{"entry": e})
}

func (h *Handler) DeactivateKnowledge(c *gin.Context) {
	if err := h.Knowledge.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		h.knowledgeError(c, err)
		return
	}
	common.OK(c, gin.H{"id": c.Param("id"), "isActive": false})
}

func (h *Handler) knowledgeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, knowledge.ErrEntryNotFound):
		common.Fail(c, http.StatusNotFound, 40403, "knowledge entry not found")
	case errors.Is(err, knowledge.ErrInvalidCategory),
		errors.Is(err, knowledge.ErrInvalidSource),
		errors.Is(err, knowledge.ErrEmptyField):
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
	default:
		h.Logger.Error("knowledge request failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
