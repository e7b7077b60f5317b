package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/store"
)

const tokenTTL = 24 * time.Hour

// tokenManager issues and verifies the HS256 bearer tokens that identify
// users to the API.
type tokenManager struct {
	secret []byte
}

// Issue signs a token for the given user.
func (tm *tokenManager) Issue(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses a bearer token and returns the user it identifies.
func (tm *tokenManager) Verify(raw string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			return tm.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return uuid.Nil, errors.New("token has no subject")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject: %w", err)
	}
	return userID, nil
}

// authMiddleware requires a valid bearer token and puts the user ID in the
// request context.
func authMiddleware(tm *tokenManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "missing_token", "authorization required", logger)
				return
			}

			userID, err := tm.Verify(raw)
			if err != nil {
				logger.Debug("token rejected", "error", err)
				WriteError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token", logger)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// authHandler provisions users and exchanges credentials for tokens.
type authHandler struct {
	store  *store.Store
	tokens *tokenManager
	logger *slog.Logger
}

type loginRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type loginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// login finds or creates the user for the given email and returns a token.
func (h *authHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if req.Email == "" {
		WriteError(w, http.StatusBadRequest, "missing_email", "email is required", h.logger)
		return
	}

	u, err := h.store.UserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrUserNotFound) {
		u, err = h.store.CreateUser(r.Context(), req.Email, req.Name)
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "user_error", "failed to resolve user", h.logger)
		return
	}

	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "token_error", "failed to issue token", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, loginResponse{Token: token, UserID: u.ID.String()})
}
