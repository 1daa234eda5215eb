package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"budgettracker/internal/core"
	applog "budgettracker/internal/log"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDKey contextKey = "user_id"

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

// Authenticator verifies HS256 bearer tokens issued by the external auth
// layer. The subject claim carries the integer user id.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthenticator creates an authenticator for secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// UserID validates tokenString and returns the user it identifies.
func (a *Authenticator) UserID(tokenString string) (int64, error) {
	token, err := a.parser.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return 0, errInvalidToken
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return 0, errInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || core.ValidateUserID(userID) != nil {
		return 0, errInvalidToken
	}
	return userID, nil
}

// IssueToken signs claims for userID. Only tests and local tooling issue
// tokens; production tokens come from the auth layer.
func (a *Authenticator) IssueToken(userID int64, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = strconv.FormatInt(userID, 10)
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware rejects requests without a valid bearer token and stores the
// user id in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeErrorMessage(w, http.StatusUnauthorized, err.Error())
			return
		}
		userID, err := a.UserID(tokenString)
		if err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Rejected bearer token",
				applog.FieldOperation, "authenticate",
				applog.FieldError, err.Error())
			writeErrorMessage(w, http.StatusUnauthorized, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = applog.WithLogger(ctx, applog.FromContext(ctx).With(applog.FieldUserID, userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errMissingToken
	}
	return strings.TrimSpace(token), nil
}

// userIDFromContext returns the authenticated user, or 0 outside the
// authenticated routes.
func userIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}
