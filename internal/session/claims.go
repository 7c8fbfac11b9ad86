package session

import (
	"fmt"
	"strings"
	"time"

	"psyconsult-chat/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields read from a backend-issued token. The backend has
// used several names for the same attributes over time; they are collapsed
// here and nowhere else.
type Claims struct {
	ID        interface{} `json:"id,omitempty"`
	UserID    interface{} `json:"user_id,omitempty"`
	Role      string      `json:"role,omitempty"`
	Rol       string      `json:"rol,omitempty"`
	Tipo      string      `json:"tipo,omitempty"`
	Email     string      `json:"email,omitempty"`
	FirstName string      `json:"first_name,omitempty"`
	LastName  string      `json:"last_name,omitempty"`
	Name      string      `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the normalized view of a token.
type Identity struct {
	UserID    string
	Role      models.Role
	Profile   models.Profile
	ExpiresAt time.Time
}

// ParseToken reads the claims of tokenString. With a non-empty secret the
// HS256 signature and expiry are verified; without one the claims are read
// as-is.
func ParseToken(tokenString, secret string) (*Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, models.ErrUnauthenticated
	}

	claims := &Claims{}
	if secret != "" {
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
		}
		if !token.Valid {
			return nil, fmt.Errorf("%w: invalid token", models.ErrUnauthenticated)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
		}
	}

	return claims.identity()
}

func (c *Claims) identity() (*Identity, error) {
	userID := firstNonEmpty(idString(c.ID), idString(c.UserID), c.Subject)
	if userID == "" {
		return nil, fmt.Errorf("%w: token carries no user id", models.ErrUnauthenticated)
	}

	role, err := models.ParseRole(firstNonEmpty(c.Role, c.Rol, c.Tipo))
	if err != nil {
		return nil, err
	}

	id := &Identity{
		UserID: userID,
		Role:   role,
		Profile: models.Profile{
			ID:        userID,
			FirstName: c.FirstName,
			LastName:  c.LastName,
			Name:      c.Name,
			Email:     c.Email,
		},
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id, nil
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
