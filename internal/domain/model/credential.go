package model

import (
	"strings"
	"time"
	"unicode"
)

// Credential holds the bearer Authorization value observed on host traffic.
// Value is the raw header value including its scheme ("Bearer eyJ...") and is
// replayed verbatim against the upstream service.
type Credential struct {
	Value      string
	CapturedAt time.Time
}

// IsZero reports whether no credential has been captured.
func (c Credential) IsZero() bool {
	return c.Value == ""
}

// Token returns the credential without its scheme prefix.
func (c Credential) Token() string {
	token, _ := ParseBearer(c.Value)
	return token
}

// Redacted returns a log-safe rendering that keeps only the scheme and the
// last four characters of the token.
func (c Credential) Redacted() string {
	token := c.Token()
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "Bearer ****"
	}
	return "Bearer ****" + token[len(token)-4:]
}

// ParseBearer splits an Authorization header value at its first whitespace and
// returns the token when the scheme is "bearer" (case-insensitive) and a
// non-empty token follows it.
func ParseBearer(value string) (string, bool) {
	value = strings.TrimSpace(value)
	i := strings.IndexFunc(value, unicode.IsSpace)
	if i < 0 || !strings.EqualFold(value[:i], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(value[i:])
	if token == "" {
		return "", false
	}
	return token, true
}
