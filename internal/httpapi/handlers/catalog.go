package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/jewelry-assistant/internal/catalog"
	"github.com/suPer8Hu/jewelry-assistant/internal/common"
	"go.uber.org/zap"
)

func (h *Handler) ListProducts(c *gin.Context) {
	f := catalog.Filter{
		Category: catalog.Category(c.Query("category")),
		Shape:    c.Query("shape"),
		Metal:    c.Query("metal"),
	}
	f.Limit, _ = strconv.Atoi(c.Query("limit"))
	f.Skip, _ = strconv.Atoi(c.Query("skip"))
	if v, err := strconv.ParseFloat(c.Query("min_price"), 64); err == nil {
		f.MinPrice = &v
	}
	if v, err := strconv.ParseFloat(c.Query("max_price"), 64); err == nil {
		f.MaxPrice = &v
	}

	products, total, err := h.Catalog.List(c.Request.Context(), f)
	if err != nil {
		h.Logger.Error("list products failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"products": products, "total": total})
}

func (h *Handler) GetProduct(c *gin.Context) {
	p, err := h.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "product not found")
			return
		}
		h.Logger.Error("get product failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"product": p})
}

// GetWishlist lists the product ids saved for a session.
func (h *Handler) GetWishlist(c *gin.Context) {
	ids, err := h.Wishlist.Wishlist(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		h.Logger.Error("wishlist read failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50003, "wishlist unavailable")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	common.OK(c, gin.H{"productIds": ids})
}
