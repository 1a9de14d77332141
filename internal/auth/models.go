package auth

import (
	"errors"
	"time"

	"github.com/tommygebru/vitrine-highlights/internal/common"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("missing access token")
)

// Config holds auth configuration
type Config struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// TokenClaims represents JWT token claims
type TokenClaims struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	Role      string `json:"role"`
}

// Viewer converts claims into the request identity
func (c *TokenClaims) Viewer() *common.Viewer {
	return &common.Viewer{
		ID:        c.UserID,
		Name:      c.Name,
		Email:     c.Email,
		AvatarURL: c.AvatarURL,
		Role:      c.Role,
	}
}
