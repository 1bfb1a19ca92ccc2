package api

import (
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/quietroom/stillengine/internal/config"
)

// Role represents an authorization role. Admins manage the engine;
// facilitators run meditation sessions from the room console.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleFacilitator Role = "facilitator"
)

// authConfig holds credentials loaded from environment variables.
type authConfig struct {
	adminUser       string
	adminPass       string
	facilitatorUser string
	facilitatorPass string
	enabled         bool
}

var auth *authConfig

// InitAuth loads auth credentials from environment variables or files.
// Supports the *_FILE convention: if STILL_ADMIN_USER_FILE is set, the
// value is read from that file. If no admin credentials are set,
// authentication is disabled (dev-friendly).
func InitAuth() {
	adminUser, err := config.ResolveSecret("STILL_ADMIN_USER")
	if err != nil {
		log.Fatalf("failed to resolve STILL_ADMIN_USER: %v", err)
	}
	adminPass, err := config.ResolveSecret("STILL_ADMIN_PASS")
	if err != nil {
		log.Fatalf("failed to resolve STILL_ADMIN_PASS: %v", err)
	}
	facilitatorUser, err := config.ResolveSecret("STILL_FACILITATOR_USER")
	if err != nil {
		log.Fatalf("failed to resolve STILL_FACILITATOR_USER: %v", err)
	}
	facilitatorPass, err := config.ResolveSecret("STILL_FACILITATOR_PASS")
	if err != nil {
		log.Fatalf("failed to resolve STILL_FACILITATOR_PASS: %v", err)
	}

	auth = &authConfig{
		adminUser:       adminUser,
		adminPass:       adminPass,
		facilitatorUser: facilitatorUser,
		facilitatorPass: facilitatorPass,
		enabled:         adminUser != "" && adminPass != "",
	}
}

// IsAuthEnabled returns true if authentication is configured.
func IsAuthEnabled() bool {
	return auth != nil && auth.enabled
}

// authenticate checks basic auth credentials and returns the role if
// valid, empty string otherwise.
func authenticate(r *http.Request) Role {
	if auth == nil || !auth.enabled {
		return RoleAdmin // no auth configured = full access
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}

	if auth.adminUser != "" && auth.adminPass != "" {
		if secureCompare(user, auth.adminUser) && secureCompare(pass, auth.adminPass) {
			return RoleAdmin
		}
	}

	if auth.facilitatorUser != "" && auth.facilitatorPass != "" {
		if secureCompare(user, auth.facilitatorUser) && secureCompare(pass, auth.facilitatorPass) {
			return RoleFacilitator
		}
	}

	return ""
}

// secureCompare performs constant-time string comparison to prevent timing attacks.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requireAuth returns 401 Unauthorized with WWW-Authenticate header.
func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Still Engine"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring admin OR facilitator role.
func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin, RoleFacilitator)
}

// RequireAdmin wraps a handler requiring admin role only.
func RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin)
}
