package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"home-services-server/middleware"
	"home-services-server/models"
	"home-services-server/services"
)

type userHandler struct {
	svc *services.AuthService
	log *zap.Logger
}

// RegisterUserRoutes registers sign-up, sign-in and account endpoints.
func RegisterUserRoutes(rg *gin.RouterGroup, svc *services.AuthService, auth gin.HandlerFunc, log *zap.Logger) {
	h := &userHandler{svc: svc, log: log}

	rg.POST("/register", h.register)
	rg.POST("/login", h.login)
	rg.GET("/me", auth, h.me)
	rg.PATCH("/:id/role", auth, middleware.RequireRole(models.RoleAdmin), h.setRole)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *userHandler) register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Register(c.Request.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *userHandler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *userHandler) me(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	user, err := h.svc.Me(c.Request.Context(), a)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *userHandler) setRole(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.svc.SetRole(c.Request.Context(), a, id, req.Role)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
