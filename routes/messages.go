package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"home-services-server/services"
)

type messageHandler struct {
	svc *services.MessageService
	log *zap.Logger
}

// RegisterMessageRoutes registers booking chat endpoints. rg must already require authentication.
func RegisterMessageRoutes(rg *gin.RouterGroup, svc *services.MessageService, log *zap.Logger) {
	h := &messageHandler{svc: svc, log: log}
	rg.GET("/:bookingId", h.list)
	rg.POST("", h.send)
}

func (h *messageHandler) list(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	bookingID, ok := paramID(c, "bookingId")
	if !ok {
		return
	}
	messages, err := h.svc.List(c.Request.Context(), a, bookingID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

type sendMessageRequest struct {
	Booking  flexID `json:"booking"`
	Content  string `json:"content"`
	Receiver flexID `json:"receiver"`
}

func (h *messageHandler) send(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	message, err := h.svc.Send(c.Request.Context(), a, services.SendMessageInput{
		BookingID:  req.Booking.String(),
		Content:    req.Content,
		ReceiverID: req.Receiver.String(),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}
