package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/buymart/dealflow-api/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// JWTValidator validates HS256 access tokens issued by the marketplace identity service
type JWTValidator struct {
	secret   []byte
	issuer   string
	audience string
}

// NewJWTValidator creates a new JWT validator
func NewJWTValidator(cfg *config.AuthConfig) *JWTValidator {
	return &JWTValidator{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
	}
}

// ValidateToken validates a JWT token and returns user context
func (v *JWTValidator) ValidateToken(tokenString string) (*UserContext, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: signing secret not configured", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	parsedToken, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !parsedToken.Valid {
		return nil, ErrInvalidToken
	}

	sub, _ := claims.GetSubject()
	uid, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}

	return &UserContext{
		UserID:      uid,
		DisplayName: extractString(claims, "name", "full_name", "email"),
		Email:       extractString(claims, "email"),
		Roles:       ExtractRoles(claims),
		AuthMethod:  AuthMethodJWT,
	}, nil
}

func extractString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if val, ok := claims[key]; ok {
			if str, ok := val.(string); ok && str != "" {
				return str
			}
		}
		if meta, ok := claims["user_metadata"].(map[string]interface{}); ok {
			if str, ok := meta[key].(string); ok && str != "" {
				return str
			}
		}
	}
	return ""
}

// ExtractRoles reads marketplace roles from the top-level claims or app_metadata
func ExtractRoles(claims jwt.MapClaims) []Role {
	roles := []Role{}

	sources := []map[string]interface{}{claims}
	if meta, ok := claims["app_metadata"].(map[string]interface{}); ok {
		sources = append(sources, meta)
	}

	for _, src := range sources {
		for _, key := range []string{"roles", "role"} {
			switch v := src[key].(type) {
			case []interface{}:
				for _, r := range v {
					if str, ok := r.(string); ok {
						roles = appendRole(roles, str)
					}
				}
			case []string:
				for _, str := range v {
					roles = appendRole(roles, str)
				}
			case string:
				roles = appendRole(roles, v)
			}
		}
	}

	return roles
}

func appendRole(roles []Role, raw string) []Role {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleBuyer, RoleSeller, RoleBroker, RoleAdmin:
	default:
		return roles
	}
	for _, r := range roles {
		if r == role {
			return roles
		}
	}
	return append(roles, role)
}
