package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ericfisherdev/archiverestore/internal/domain/model"
)

// --- Mock implementations ---

// mockLister serves pages in order and records the offset of every call.
// Calls past the last page return an empty page.
type mockLister struct {
	pages   [][]model.ArchivedItem
	failAt  int // call index that fails; -1 disables
	err     error
	offsets []int
	limits  []int
}

func newMockLister(pages ...[]model.ArchivedItem) *mockLister {
	return &mockLister{pages: pages, failAt: -1}
}

func (m *mockLister) ListArchived(_ context.Context, _ model.Credential, offset, limit int) ([]model.ArchivedItem, error) {
	call := len(m.offsets)
	m.offsets = append(m.offsets, offset)
	m.limits = append(m.limits, limit)
	if call == m.failAt {
		return nil, m.err
	}
	if call >= len(m.pages) {
		return []model.ArchivedItem{}, nil
	}
	return m.pages[call], nil
}

// mockWriter records every unarchive attempt and fails the ids in failIDs.
type mockWriter struct {
	mu       sync.Mutex
	failIDs  map[string]bool
	attempts []string
	creds    []string
	onCall   func(id string)
}

func (m *mockWriter) Unarchive(_ context.Context, cred model.Credential, id string) error {
	m.mu.Lock()
	m.attempts = append(m.attempts, id)
	m.creds = append(m.creds, cred.Value)
	fail := m.failIDs[id]
	onCall := m.onCall
	m.mu.Unlock()

	if onCall != nil {
		onCall(id)
	}
	if fail {
		return errors.New("upstream rejected " + id)
	}
	return nil
}

func (m *mockWriter) attempted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.attempts...)
}

// countingPacer counts waits without sleeping.
type countingPacer struct {
	waits int
}

func (p *countingPacer) Wait(ctx context.Context) error {
	p.waits++
	return ctx.Err()
}

// staticCredentials is a CredentialSource with a fixed value.
type staticCredentials struct {
	cred model.Credential
}

func (s staticCredentials) Credential() (model.Credential, bool) {
	return s.cred, !s.cred.IsZero()
}

const testBearer = "Bearer eyJhbGciOiJIUzI1NiJ9.test"

func makeItems(prefix string, n int) []model.ArchivedItem {
	items := make([]model.ArchivedItem, n)
	for i := range items {
		items[i] = model.ArchivedItem{ID: fmt.Sprintf("%s-%03d", prefix, i)}
	}
	return items
}
