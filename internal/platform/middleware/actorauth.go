package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"tidemark/pkg/requestcontext"
)

// ActorClaims carries the operator identity extracted from a bearer token.
type ActorClaims struct {
	ActorID string `json:"actor_id,omitempty"`
	jwt.RegisteredClaims
}

// ActorValidator validates bearer tokens on governance routes.
type ActorValidator struct {
	signingKey []byte
}

func NewActorValidator(signingKey string) *ActorValidator {
	return &ActorValidator{signingKey: []byte(signingKey)}
}

// Validate parses and verifies an HS256 token, returning the actor identity.
func (v *ActorValidator) Validate(tokenString string) (string, error) {
	claims := &ActorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	actor := claims.ActorID
	if actor == "" {
		actor = claims.Subject
	}
	if actor == "" {
		return "", errors.New("token carries no actor identity")
	}
	return actor, nil
}

// RequireActor authenticates governance (taxonomy/correction/remediation)
// requests and stores the actor identity in context for audit attribution.
func RequireActor(validator *ActorValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing_bearer_token"})
				return
			}
			actor, err := validator.Validate(strings.TrimPrefix(authHeader, bearerPrefix))
			if err != nil {
				logger.WarnContext(r.Context(), "actor token rejected",
					"request_id", requestcontext.RequestID(r.Context()),
					"error", err.Error(),
				)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
				return
			}
			ctx := requestcontext.WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
