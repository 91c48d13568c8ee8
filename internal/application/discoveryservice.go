package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/archiverestore/internal/domain/model"
	"github.com/ericfisherdev/archiverestore/internal/domain/port/driven"
)

// DefaultPageSize is the number of items requested per listing page.
const DefaultPageSize = 50

// ErrDiscoveryFailed wraps every error that aborts archive discovery.
var ErrDiscoveryFailed = errors.New("archive discovery failed")

// DiscoveryService enumerates the full archive by paging through the
// upstream listing endpoint one request at a time.
type DiscoveryService struct {
	lister   driven.ConversationLister
	pageSize int
	pacer    Pacer
}

// NewDiscoveryService creates a DiscoveryService. A non-positive pageSize
// falls back to DefaultPageSize; a nil pacer disables the inter-page delay.
func NewDiscoveryService(lister driven.ConversationLister, pageSize int, pacer Pacer) *DiscoveryService {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pacer == nil {
		pacer = NoDelay{}
	}
	return &DiscoveryService{
		lister:   lister,
		pageSize: pageSize,
		pacer:    pacer,
	}
}

// FetchAll pages through the archive starting at offset 0 until a page comes
// back empty. The offset advances by the length of each returned page, so
// short pages from the upstream are handled. onFound, if non-nil, receives
// the running item count after every non-empty page.
//
// Any failure aborts discovery: the caller receives either the complete
// list or an error wrapping ErrDiscoveryFailed, never a truncated list.
func (s *DiscoveryService) FetchAll(ctx context.Context, cred model.Credential, onFound func(found int)) ([]model.ArchivedItem, error) {
	start := time.Now()
	offset := 0
	pages := 0
	all := []model.ArchivedItem{}

	for {
		page, err := s.lister.ListArchived(ctx, cred, offset, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("%w: listing archived items at offset %d: %w", ErrDiscoveryFailed, offset, err)
		}
		pages++

		slog.Debug("archive page fetched", "offset", offset, "count", len(page))

		if len(page) == 0 {
			break
		}

		all = append(all, page...)
		offset += len(page)
		if onFound != nil {
			onFound(len(all))
		}

		if err := s.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: waiting before offset %d: %w", ErrDiscoveryFailed, offset, err)
		}
	}

	slog.Info("archive discovery complete",
		"items", len(all),
		"pages", pages,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return all, nil
}
