package application

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/archiverestore/internal/domain/model"
	"github.com/ericfisherdev/archiverestore/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.CredentialSource   = (*CredentialHolder)(nil)
	_ driven.CredentialRecorder = (*CredentialHolder)(nil)
)

// CredentialHolder is the shared context object carrying the single bearer
// credential for the process. The first recorded value wins; every later
// Record call is a no-op. Readiness is signalled by closing the channel
// returned from Ready, which happens exactly once.
type CredentialHolder struct {
	mu    sync.RWMutex
	cred  model.Credential
	ready chan struct{}
	now   func() time.Time
}

// NewCredentialHolder creates an empty holder.
func NewCredentialHolder() *CredentialHolder {
	return &CredentialHolder{
		ready: make(chan struct{}),
		now:   time.Now,
	}
}

// Record stores raw as the credential if none is held yet and raw carries a
// bearer scheme. It returns true only for the call that stored the value.
func (h *CredentialHolder) Record(raw string) bool {
	if _, ok := model.ParseBearer(raw); !ok {
		return false
	}

	// Fast path: once captured, sightings never take the write lock.
	h.mu.RLock()
	captured := !h.cred.IsZero()
	h.mu.RUnlock()
	if captured {
		return false
	}

	h.mu.Lock()
	if !h.cred.IsZero() {
		h.mu.Unlock()
		return false
	}
	h.cred = model.Credential{Value: raw, CapturedAt: h.now().UTC()}
	cred := h.cred
	close(h.ready)
	h.mu.Unlock()

	slog.Info("bearer credential captured", "credential", cred.Redacted(), "captured_at", cred.CapturedAt)
	return true
}

// Credential returns the captured credential, if any.
func (h *CredentialHolder) Credential() (model.Credential, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cred, !h.cred.IsZero()
}

// HasCredential returns true once a credential has been captured.
func (h *CredentialHolder) HasCredential() bool {
	_, ok := h.Credential()
	return ok
}

// Ready returns a channel that is closed when the credential is captured.
func (h *CredentialHolder) Ready() <-chan struct{} {
	return h.ready
}
