package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/jewelry-assistant/internal/common"
	"github.com/suPer8Hu/jewelry-assistant/internal/httpapi/handlers"
	"github.com/suPer8Hu/jewelry-assistant/internal/httpapi/middleware"
	"go.uber.org/zap"
)

func NewRouter(h *handlers.Handler, adminSecret string, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(logger.Named("access")))
	r.Use(middleware.Recovery(logger))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", func(c *gin.Context) { common.OK(c, gin.H{"pong": true}) })

	// assistant
	r.POST("/assistant/messages", h.SendAssistantMessage)
	r.POST("/assistant/images", h.RequestImage)
	r.GET("/assistant/images/:tool_call_id", h.GetImageStatus)

	// catalog + wishlist
	r.GET("/products", h.ListProducts)
	r.GET("/products/:id", h.GetProduct)
	r.GET("/wishlist/:session_id", h.GetWishlist)

	r.POST("/knowledge/search", h.SearchKnowledge)

	r.POST("/conversations/messages", h.AppendConversationMessage)
	r.POST("/conversations/feedback", h.AppendFeedback)
	r.GET("/conversations/:session_id", h.GetConversation)

	// curation (admin JWT required)
	admin := r.Group("/admin")
	admin.Use(middleware.AdminRequired(adminSecret))
	admin.GET("/knowledge", h.ListKnowledge)
	admin.POST("/knowledge", h.AddKnowledge)
	admin.PATCH("/knowledge/:id", h.UpdateKnowledge)
	admin.DELETE("/knowledge/:id", h.DeactivateKnowledge)
	admin.GET("/conversations/training", h.ListTrainingData)
	return r
}
