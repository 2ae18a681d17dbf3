package routes

import (
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"home-services-server/middleware"
	"home-services-server/models"
	"home-services-server/services"
)

const maxImageBytes = 5 << 20

type catalogHandler struct {
	svc *services.CatalogService
	log *zap.Logger
}

// RegisterServiceRoutes registers the service catalog. Reads are public; writes need auth.
func RegisterServiceRoutes(rg *gin.RouterGroup, svc *services.CatalogService, auth, optional gin.HandlerFunc, log *zap.Logger) {
	h := &catalogHandler{svc: svc, log: log}
	managers := middleware.RequireRole(models.RoleAdmin, models.RoleProvider)

	rg.GET("", optional, h.list)
	rg.GET("/:id", optional, h.get)

	rg.POST("", auth, managers, h.create)
	rg.PATCH("/:id", auth, managers, h.update)
	rg.PUT("/:id", auth, managers, h.update)
	rg.DELETE("/:id", auth, managers, h.deactivate)
	rg.POST("/:id/image", auth, managers, h.uploadImage)
}

type serviceRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Category    *string  `json:"category"`
	Active      *bool    `json:"active"`
}

func (r serviceRequest) input() services.ServiceInput {
	return services.ServiceInput{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Category:    r.Category,
		Active:      r.Active,
	}
}

func (h *catalogHandler) list(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context(), optionalActor(c), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if items == nil {
		items = []models.Service{}
	}
	c.JSON(http.StatusOK, items)
}

func (h *catalogHandler) get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	service, err := h.svc.Get(c.Request.Context(), optionalActor(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, service)
}

func (h *catalogHandler) create(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req serviceRequest
	if !bindJSON(c, &req) {
		return
	}
	service, err := h.svc.Create(c.Request.Context(), a, req.input())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, service)
}

func (h *catalogHandler) update(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req serviceRequest
	if !bindJSON(c, &req) {
		return
	}
	service, err := h.svc.Update(c.Request.Context(), a, id, req.input())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, service)
}

func (h *catalogHandler) deactivate(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	service, err := h.svc.Deactivate(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, service)
}

// validateImageFile accepts jpg, png and webp up to 5MB.
func validateImageFile(h *multipart.FileHeader) bool {
	if h == nil || h.Size <= 0 || h.Size > maxImageBytes {
		return false
	}
	switch strings.ToLower(filepath.Ext(h.Filename)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	default:
		return false
	}
}

func (h *catalogHandler) uploadImage(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	header, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "multipart field \"image\" is required")
		return
	}
	if !validateImageFile(header) {
		badRequest(c, "image must be a jpg, png or webp file of at most 5MB")
		return
	}
	file, err := header.Open()
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	defer file.Close()

	service, err := h.svc.UploadImage(c.Request.Context(), a, id, file)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, service)
}
