package httphandler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

const (
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfTokenBytes = 32
)

// csrfToken ensures a CSRF token cookie is set on the response. If the request
// already has a CSRF cookie, this is a no-op. The cookie is readable by the
// panel script so it can echo the value in the X-CSRF-Token header.
func csrfToken(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    generateToken(),
		Path:     "/",
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

// validateCSRF checks that the X-CSRF-Token header matches the cookie.
func validateCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	token := r.Header.Get(csrfHeaderName)
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) == 1
}

// requireCSRF rejects state-changing requests without a matching token.
func requireCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !validateCSRF(r) {
			writeError(w, http.StatusForbidden, "missing or invalid CSRF token")
			return
		}
		next(w, r)
	}
}

func generateToken() string {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic("csrf: failed to generate random token: " + err.Error())
	}
	return hex.EncodeToString(b)
}
