package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"home-services-server/middleware"
	"home-services-server/models"
	"home-services-server/services"
)

type reviewHandler struct {
	svc *services.ReviewService
	log *zap.Logger
}

// RegisterReviewRoutes registers review endpoints. Listing and stats are public; auth
// and optional are the required and optional authentication middlewares.
func RegisterReviewRoutes(rg *gin.RouterGroup, svc *services.ReviewService, auth, optional gin.HandlerFunc, log *zap.Logger) {
	h := &reviewHandler{svc: svc, log: log}
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	rg.GET("", optional, h.list)
	rg.GET("/stats/:serviceId", h.stats)

	rg.GET("/me", auth, h.mine)
	rg.POST("", auth, h.upsert)
	rg.PATCH("/:id", auth, h.update)
	rg.DELETE("/:id", auth, h.remove)

	rg.GET("/moderation", auth, adminOnly, h.moderationQueue)
	rg.PATCH("/:id/moderate", auth, adminOnly, h.moderate)
	rg.PUT("/:id/moderate", auth, adminOnly, h.moderate)
}

func (h *reviewHandler) list(c *gin.Context) {
	page, err := h.svc.List(c.Request.Context(), optionalActor(c), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *reviewHandler) stats(c *gin.Context) {
	serviceID, ok := paramID(c, "serviceId")
	if !ok {
		return
	}
	stats, err := h.svc.Stats(c.Request.Context(), serviceID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *reviewHandler) mine(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	page, err := h.svc.Mine(c.Request.Context(), a, c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type upsertReviewRequest struct {
	Service flexID `json:"service"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *reviewHandler) upsert(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req upsertReviewRequest
	if !bindJSON(c, &req) {
		return
	}
	review, err := h.svc.Upsert(c.Request.Context(), a, services.UpsertReviewInput{
		ServiceID: req.Service.String(),
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h *reviewHandler) update(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Rating  *int    `json:"rating"`
		Comment *string `json:"comment"`
	}
	if !bindJSON(c, &req) {
		return
	}
	review, err := h.svc.UpdateMine(c.Request.Context(), a, id, services.UpdateReviewInput{
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h *reviewHandler) remove(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), a, id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "review deleted"})
}

func (h *reviewHandler) moderationQueue(c *gin.Context) {
	page, err := h.svc.ModerationQueue(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *reviewHandler) moderate(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !bindJSON(c, &req) {
		return
	}
	review, err := h.svc.Moderate(c.Request.Context(), a, id, req.Status)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, review)
}
