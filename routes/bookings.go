package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"home-services-server/middleware"
	"home-services-server/models"
	"home-services-server/services"
)

type bookingHandler struct {
	svc *services.BookingService
	log *zap.Logger
	now func() time.Time
}

// RegisterBookingRoutes registers the booking lifecycle endpoints. rg must already require authentication.
func RegisterBookingRoutes(rg *gin.RouterGroup, svc *services.BookingService, log *zap.Logger) {
	h := &bookingHandler{svc: svc, log: log, now: time.Now}

	rg.POST("", h.create)
	rg.GET("/me", h.listMine)
	rg.GET("/provider/me", middleware.RequireRole(models.RoleProvider), h.listForProvider)

	admin := rg.Group("", middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("", h.adminList)
		admin.GET("/export.csv", h.exportCSV)
		admin.PUT("/:id/assign-provider", h.assignProvider)
	}

	rg.PATCH("/:id", h.update)
	rg.POST("/:id/cancel", h.cancel)
	rg.PUT("/:id/status", middleware.RequireRole(models.RoleAdmin, models.RoleProvider), h.updateStatus)
	rg.GET("/:id", h.get)
}

type createBookingRequest struct {
	Service       flexID `json:"service"`
	ServiceID     flexID `json:"serviceId"`
	ScheduledAt   string `json:"scheduledAt"`
	Address       string `json:"address"`
	Notes         string `json:"notes"`
	PaymentMethod string `json:"paymentMethod"`
}

func (h *bookingHandler) create(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req createBookingRequest
	if !bindJSON(c, &req) {
		return
	}
	serviceID := req.Service
	if serviceID == "" {
		serviceID = req.ServiceID
	}

	booking, err := h.svc.Create(c.Request.Context(), a, services.CreateBookingInput{
		ServiceID:     serviceID.String(),
		ScheduledAt:   req.ScheduledAt,
		Address:       req.Address,
		Notes:         req.Notes,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func (h *bookingHandler) listMine(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	bookings, err := h.svc.ListMine(c.Request.Context(), a)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	c.JSON(http.StatusOK, bookings)
}

func (h *bookingHandler) get(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	booking, err := h.svc.Get(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

type updateBookingRequest struct {
	Status      *string `json:"status"`
	ScheduledAt *string `json:"scheduledAt"`
}

func (h *bookingHandler) update(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req updateBookingRequest
	if !bindJSON(c, &req) {
		return
	}
	booking, err := h.svc.Update(c.Request.Context(), a, id, services.UpdateBookingInput{
		Status:      req.Status,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *bookingHandler) cancel(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	booking, err := h.svc.Cancel(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *bookingHandler) updateStatus(c *gin.Context) {
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
	booking, err := h.svc.UpdateStatus(c.Request.Context(), a, id, req.Status)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *bookingHandler) assignProvider(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Provider   flexID `json:"provider"`
		ProviderID flexID `json:"providerId"`
	}
	if !bindJSON(c, &req) {
		return
	}
	providerID := req.Provider
	if providerID == "" {
		providerID = req.ProviderID
	}
	booking, err := h.svc.AssignProvider(c.Request.Context(), a, id, providerID.String())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *bookingHandler) listForProvider(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	page, err := h.svc.ProviderList(c.Request.Context(), a, c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *bookingHandler) adminList(c *gin.Context) {
	page, err := h.svc.AdminList(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// exportCSV streams every booking matching the admin filters. Filter errors are
// reported as JSON before any CSV byte is written.
func (h *bookingHandler) exportCSV(c *gin.Context) {
	export, err := h.svc.NewExport(c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, services.ExportFilename(h.now())))
	c.Status(http.StatusOK)

	if err := export.WriteTo(c.Request.Context(), c.Writer); err != nil {
		// Headers are gone; all we can do is log and cut the stream short.
		h.log.Error("booking export aborted", zap.Error(err))
		_ = c.Error(err)
	}
}
