package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tommygebru/vitrine-highlights/internal/common"
)

// Service issues and validates access tokens. Accounts live in the main
// marketplace; this service only trusts tokens signed with the shared secret.
type Service interface {
	GenerateAccessToken(viewer *common.Viewer) (string, error)
	ValidateAccessToken(token string) (*TokenClaims, error)
}

type service struct {
	config *Config
	now    func() time.Time
}

func NewService(config *Config) Service {
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 15 * time.Minute
	}
	return &service{config: config, now: time.Now}
}

func (s *service) GenerateAccessToken(viewer *common.Viewer) (string, error) {
	if viewer == nil || strings.TrimSpace(viewer.ID) == "" {
		return "", errors.New("viewer id is required")
	}
	role := viewer.Role
	if role == "" {
		role = common.RoleUser
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub":        viewer.ID,
		"name":       viewer.Name,
		"email":      viewer.Email,
		"avatar_url": viewer.AvatarURL,
		"role":       role,
		"type":       "access",
		"exp":        now.Add(s.config.AccessTokenExpiry).Unix(),
		"iat":        now.Unix(),
	}
	if s.config.Issuer != "" {
		claims["iss"] = s.config.Issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

func (s *service) ValidateAccessToken(tokenString string) (*TokenClaims, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired()}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if tokenType, _ := claims["type"].(string); tokenType != "access" {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, tokenType)
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	out := &TokenClaims{UserID: userID}
	out.Name, _ = claims["name"].(string)
	out.Email, _ = claims["email"].(string)
	out.AvatarURL, _ = claims["avatar_url"].(string)
	out.Role, _ = claims["role"].(string)
	if out.Role != common.RoleAdmin {
		out.Role = common.RoleUser
	}
	return out, nil
}
