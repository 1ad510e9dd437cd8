package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

// Claims is the bearer-token payload. Tokens are minted by the identity
// service; this server only verifies them.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Issue signs an HS256 token for actor. Used by tests and the dev bootstrap.
func (a *Authenticator) Issue(actor types.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   actor.ID,
		Username: actor.Username,
		Role:     string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   fmt.Sprintf("%d", actor.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses a bearer token into an Actor.
func (a *Authenticator) Verify(token string) (types.Actor, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return types.Actor{}, err
	}
	if !parsed.Valid {
		return types.Actor{}, errors.New("invalid token")
	}

	role := types.Role(claims.Role)
	if role != types.RoleAdmin && role != types.RoleEmployee {
		return types.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	if claims.UserID <= 0 {
		return types.Actor{}, errors.New("token has no user_id")
	}
	return types.Actor{ID: claims.UserID, Username: claims.Username, Role: role}, nil
}

type actorKey struct{}

func withActor(ctx context.Context, a types.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func actorFrom(ctx context.Context) types.Actor {
	a, _ := ctx.Value(actorKey{}).(types.Actor)
	return a
}

// requireActor rejects requests without a valid bearer token.
func (a *Authenticator) requireActor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
			return
		}
		actor, err := a.Verify(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
			return
		}
		next(w, r.WithContext(withActor(r.Context(), actor)))
	}
}
