// Package intercept observes outgoing host traffic for a bearer credential.
package intercept

import (
	"net/http"
	"strings"

	"github.com/ericfisherdev/archiverestore/internal/domain/model"
	"github.com/ericfisherdev/archiverestore/internal/domain/port/driven"
)

const authorizationHeader = "Authorization"

// Observer is an http.RoundTripper decorator that inspects every outgoing
// request for a bearer Authorization header and hands it to a recorder
// before forwarding the request unchanged. It never alters, delays or
// rejects a request, and the response is returned as-is.
type Observer struct {
	next     http.RoundTripper
	recorder driven.CredentialRecorder
}

// Wrap returns an Observer around next. A nil next uses
// http.DefaultTransport.
func Wrap(next http.RoundTripper, recorder driven.CredentialRecorder) *Observer {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Observer{next: next, recorder: recorder}
}

// RoundTrip records the request's bearer credential, if any, and delegates
// to the wrapped transport.
func (o *Observer) RoundTrip(req *http.Request) (*http.Response, error) {
	if req != nil && o.recorder != nil {
		if raw, ok := BearerFromHeader(req.Header); ok {
			o.recorder.Record(raw)
		}
	}
	return o.next.RoundTrip(req)
}

// BearerFromHeader returns the first bearer Authorization value in h. The
// canonical key is checked first, then any other spelling of it, so headers
// assigned directly to the map without canonicalization are still found.
func BearerFromHeader(h http.Header) (string, bool) {
	if h == nil {
		return "", false
	}
	if raw, ok := firstBearer(h.Values(authorizationHeader)); ok {
		return raw, true
	}
	for key, values := range h {
		if key == authorizationHeader || !strings.EqualFold(key, authorizationHeader) {
			continue
		}
		if raw, ok := firstBearer(values); ok {
			return raw, true
		}
	}
	return "", false
}

// BearerFromMap is BearerFromHeader for headers held as a plain
// string-to-string mapping.
func BearerFromMap(headers map[string]string) (string, bool) {
	for key, value := range headers {
		if !strings.EqualFold(strings.TrimSpace(key), authorizationHeader) {
			continue
		}
		if raw, ok := acceptBearer(value); ok {
			return raw, true
		}
	}
	return "", false
}

func firstBearer(values []string) (string, bool) {
	for _, v := range values {
		if raw, ok := acceptBearer(v); ok {
			return raw, true
		}
	}
	return "", false
}

func acceptBearer(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if _, ok := model.ParseBearer(value); !ok {
		return "", false
	}
	return value, true
}
