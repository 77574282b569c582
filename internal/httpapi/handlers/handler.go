package handlers

import (
	"time"

	"github.com/suPer8Hu/jewelry-assistant/internal/assistant"
	"github.com/suPer8Hu/jewelry-assistant/internal/catalog"
	"github.com/suPer8Hu/jewelry-assistant/internal/chat"
	"github.com/suPer8Hu/jewelry-assistant/internal/imagegen"
	"github.com/suPer8Hu/jewelry-assistant/internal/knowledge"
	"github.com/suPer8Hu/jewelry-assistant/internal/store/redisstore"
	"go.uber.org/zap"
)

// maxStatusWait caps the ?wait= long-poll on image status.
const maxStatusWait = 30 * time.Second

type Handler struct {
	Assistant *assistant.Loop
	Images    *imagegen.Manager
	Knowledge *knowledge.Service
	Sessions  *chat.Service
	Catalog   *catalog.Repo
	Wishlist  *redisstore.Store
	Logger    *zap.Logger
}

func NewHandler(h Handler) *Handler {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	h.Logger = h.Logger.Named("http")
	return &h
}
