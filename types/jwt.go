package types

import (
	"github.com/golang-jwt/jwt/v5"

	"home-services-server/models"
)

// Claims is the access token payload. Role is informational; requests re-read the user.
type Claims struct {
	UserID uint            `json:"uid"`
	Role   models.UserRole `json:"role"`
	jwt.RegisteredClaims
}
