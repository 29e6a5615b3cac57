package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles issued by the identity service. Only staff roles reach the admin
// routes.
const (
	RoleArtist = "artist"
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
)

const clockSkew = 30 * time.Second

var ErrUnknownRole = errors.New("unknown role")

type Claims struct {
	UserID uuid.UUID
	Role   string
}

func (c *Claims) IsStaff() bool {
	return c.Role == RoleAdmin || c.Role == RoleOwner
}

// The user id travels in "sub"; "role" is absent on plain artist tokens.
type ledgerClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// GenerateToken mints an HS256 token. The API only does this for the dev token
// route and tests; production tokens come from the identity service.
func GenerateToken(userID uuid.UUID, role string, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := ledgerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("GenerateToken: %w", err)
	}
	return signed, nil
}

func ValidateToken(tokenString string, secret string) (*Claims, error) {
	var lc ledgerClaims
	_, err := jwt.ParseWithClaims(tokenString, &lc,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: %w", err)
	}

	userID, err := uuid.Parse(lc.Subject)
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: subject is not a user id: %w", err)
	}

	role := lc.Role
	switch role {
	case "":
		role = RoleArtist
	case RoleArtist, RoleAdmin, RoleOwner:
	default:
		return nil, fmt.Errorf("ValidateToken: %q: %w", role, ErrUnknownRole)
	}
	return &Claims{UserID: userID, Role: role}, nil
}
