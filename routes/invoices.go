package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"home-services-server/middleware"
	"home-services-server/models"
	"home-services-server/services"
)

type invoiceHandler struct {
	svc *services.InvoiceService
	log *zap.Logger
}

// RegisterInvoiceRoutes registers invoice endpoints. rg must already require authentication.
func RegisterInvoiceRoutes(rg *gin.RouterGroup, svc *services.InvoiceService, log *zap.Logger) {
	h := &invoiceHandler{svc: svc, log: log}
	adminOrProvider := middleware.RequireRole(models.RoleAdmin, models.RoleProvider)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	rg.POST("/generate", adminOrProvider, h.generate)
	rg.GET("/me", h.listMine)
	rg.GET("/provider/me", middleware.RequireRole(models.RoleProvider), h.listForProvider)
	rg.GET("", adminOnly, h.listAll)
	rg.GET("/:id", h.get)

	for _, method := range []string{http.MethodPost, http.MethodPut} {
		rg.Handle(method, "/:id/pay", adminOrProvider, h.markPaid)
		rg.Handle(method, "/:id/void", adminOnly, h.void)
	}
}

// RegisterPaymentRoutes registers the charge endpoint. rg must already require authentication.
func RegisterPaymentRoutes(rg *gin.RouterGroup, svc *services.InvoiceService, log *zap.Logger) {
	h := &invoiceHandler{svc: svc, log: log}
	rg.POST("/charge", h.charge)
}

type generateInvoiceRequest struct {
	BookingID flexID   `json:"bookingId"`
	TaxPct    *float64 `json:"taxPct"`
	Currency  string   `json:"currency"`
	Notes     string   `json:"notes"`
}

func (h *invoiceHandler) generate(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req generateInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	invoice, created, err := h.svc.Generate(c.Request.Context(), a, services.GenerateInvoiceInput{
		BookingID: req.BookingID.String(),
		TaxPct:    req.TaxPct,
		Currency:  req.Currency,
		Notes:     req.Notes,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, invoice)
}

func (h *invoiceHandler) listMine(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	page, err := h.svc.ListMine(c.Request.Context(), a, c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *invoiceHandler) listForProvider(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	page, err := h.svc.ListForProvider(c.Request.Context(), a, c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *invoiceHandler) listAll(c *gin.Context) {
	page, err := h.svc.ListAll(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *invoiceHandler) get(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	invoice, err := h.svc.Get(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (h *invoiceHandler) markPaid(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		TrxID string `json:"trxId"`
	}
	// The body is optional.
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	invoice, err := h.svc.MarkPaid(c.Request.Context(), a, id, req.TrxID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (h *invoiceHandler) void(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	invoice, err := h.svc.Void(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

type chargeRequest struct {
	BookingID flexID `json:"bookingId"`
	Method    string `json:"method"`
	TrxID     string `json:"trxId"`
}

func (h *invoiceHandler) charge(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req chargeRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.svc.Charge(c.Request.Context(), a, services.ChargeInput{
		BookingID: req.BookingID.String(),
		Method:    req.Method,
		TrxID:     req.TrxID,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
