package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"home-services-server/middleware"
	"home-services-server/models"
	"home-services-server/services"
)

type providerHandler struct {
	svc *services.ProviderService
	log *zap.Logger
}

// RegisterProviderRoutes registers the provider directory, profiles and onboarding.
func RegisterProviderRoutes(rg *gin.RouterGroup, svc *services.ProviderService, auth, optional gin.HandlerFunc, log *zap.Logger) {
	h := &providerHandler{svc: svc, log: log}
	adminOnly := middleware.RequireRole(models.RoleAdmin)
	providerOnly := middleware.RequireRole(models.RoleProvider)

	rg.GET("", optional, h.list)

	rg.GET("/me/profile", auth, providerOnly, h.myProfile)
	rg.PUT("/me/profile", auth, providerOnly, h.updateMyProfile)
	rg.POST("/apply", auth, h.apply)

	rg.GET("/applications", auth, adminOnly, h.listApplications)
	for _, method := range []string{http.MethodPost, http.MethodPatch} {
		rg.Handle(method, "/applications/:id/approve", auth, adminOnly, h.approve)
		rg.Handle(method, "/applications/:id/reject", auth, adminOnly, h.reject)
	}

	rg.GET("/:userId", h.get)
	rg.PATCH("/:userId/verify", auth, adminOnly, h.verify)
	rg.PUT("/:userId/verify", auth, adminOnly, h.verify)
}

func (h *providerHandler) list(c *gin.Context) {
	page, err := h.svc.List(c.Request.Context(), optionalActor(c), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *providerHandler) get(c *gin.Context) {
	userID, ok := paramID(c, "userId")
	if !ok {
		return
	}
	profile, err := h.svc.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *providerHandler) myProfile(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	profile, err := h.svc.MyProfile(c.Request.Context(), a)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type profileRequest struct {
	DisplayName  *string  `json:"displayName"`
	Phone        *string  `json:"phone"`
	Bio          *string  `json:"bio"`
	Skills       []string `json:"skills"`
	Categories   []string `json:"categories"`
	ServiceAreas []string `json:"serviceAreas"`
	HourlyRate   *float64 `json:"hourlyRate"`
	MinFee       *float64 `json:"minFee"`
}

func (h *providerHandler) updateMyProfile(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req profileRequest
	if !bindJSON(c, &req) {
		return
	}
	profile, err := h.svc.UpdateMyProfile(c.Request.Context(), a, services.ProfileInput{
		DisplayName:  req.DisplayName,
		Phone:        req.Phone,
		Bio:          req.Bio,
		Skills:       req.Skills,
		Categories:   req.Categories,
		ServiceAreas: req.ServiceAreas,
		HourlyRate:   req.HourlyRate,
		MinFee:       req.MinFee,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *providerHandler) verify(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	userID, ok := paramID(c, "userId")
	if !ok {
		return
	}
	var req struct {
		IsVerified *bool `json:"isVerified"`
		Verified   *bool `json:"verified"`
	}
	if !bindJSON(c, &req) {
		return
	}
	verified := req.IsVerified
	if verified == nil {
		verified = req.Verified
	}
	if verified == nil {
		badRequest(c, "isVerified is required")
		return
	}
	profile, err := h.svc.SetVerified(c.Request.Context(), a, userID, *verified)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type applicationRequest struct {
	Phone      string   `json:"phone"`
	City       string   `json:"city"`
	Skills     []string `json:"skills"`
	Experience string   `json:"experience"`
	Bio        string   `json:"bio"`
}

func (h *providerHandler) apply(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req applicationRequest
	if !bindJSON(c, &req) {
		return
	}
	app, err := h.svc.Apply(c.Request.Context(), a, services.ApplicationInput{
		Phone:      req.Phone,
		City:       req.City,
		Skills:     req.Skills,
		Experience: req.Experience,
		Bio:        req.Bio,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

func (h *providerHandler) listApplications(c *gin.Context) {
	page, err := h.svc.ListApplications(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *providerHandler) approve(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	app, err := h.svc.Approve(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *providerHandler) reject(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	app, err := h.svc.Reject(c.Request.Context(), a, id, req.Reason)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, app)
}
