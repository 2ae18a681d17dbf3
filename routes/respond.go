package routes

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"home-services-server/middleware"
	"home-services-server/repository"
	"home-services-server/services"
	"home-services-server/utils"
)

var kindStatus = map[services.Kind]int{
	services.KindValidation:   http.StatusBadRequest,
	services.KindUnauthorized: http.StatusUnauthorized,
	services.KindForbidden:    http.StatusForbidden,
	services.KindNotFound:     http.StatusNotFound,
	services.KindConflict:     http.StatusConflict,
	services.KindUnavailable:  http.StatusServiceUnavailable,
}

// respondError writes {message} for known failures and a generic 500 for everything else.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		c.AbortWithStatusJSON(kindStatus[svcErr.Kind], gin.H{"message": svcErr.Message})
		return
	}
	if repository.IsNotFound(err) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "not found"})
		return
	}
	if errors.Is(err, repository.ErrStaleWrite) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": "record was modified by another request, reload and retry"})
		return
	}

	log.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString(middleware.RequestIDKey)),
		zap.Error(err))
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": msg})
}

// bindJSON decodes the body into dst and answers 400 on malformed input.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// paramID parses a positive integer path parameter and answers 400 otherwise.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := utils.ParseID(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// actor returns the authenticated caller. Routes using it sit behind AuthMiddleware.
func actor(c *gin.Context) (services.Actor, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return services.Actor{}, false
	}
	return services.ActorFromUser(user), true
}

// optionalActor returns the caller on public routes, or nil for anonymous requests.
func optionalActor(c *gin.Context) *services.Actor {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return nil
	}
	a := services.ActorFromUser(user)
	return &a
}

// flexID accepts an id sent either as a JSON number or a string; services validate its shape.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("id must be a number or a string")
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string { return string(f) }
