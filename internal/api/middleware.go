// Package api implements the Fiche REST API using chi.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/starford/fiche/internal/models"
)

// Identity and session headers set by the fronting gateway.
const (
	HeaderUserID    = "X-User-ID"
	HeaderCompanyID = "X-Company-ID"
	HeaderRole      = "X-Role"
	HeaderSessionID = "X-Session-ID"
)

type ctxKey int

const identityKey ctxKey = iota

// AuthMiddleware returns middleware that validates a Bearer token.
// If enabled is false, all requests pass through (disabled mode).
// If enabled is true, requests must carry a valid "Authorization: Bearer <token>" header.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityMiddleware resolves the caller from the identity headers. The role
// defaults to "user"; an unknown role is rejected.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := models.Identity{
			UserID:    strings.TrimSpace(r.Header.Get(HeaderUserID)),
			CompanyID: strings.TrimSpace(r.Header.Get(HeaderCompanyID)),
			Role:      strings.TrimSpace(r.Header.Get(HeaderRole)),
		}
		switch id.Role {
		case "":
			id.Role = models.RoleUser
		case models.RoleUser, models.RoleAdmin, models.RoleSuperAdmin:
		default:
			writeJSON(w, http.StatusBadRequest, errorBody("unknown role"))
			return
		}
		if id.UserID == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody("missing "+HeaderUserID+" header"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

func identity(r *http.Request) models.Identity {
	id, _ := r.Context().Value(identityKey).(models.Identity)
	return id
}
