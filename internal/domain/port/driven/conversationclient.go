package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/archiverestore/internal/domain/model"
)

// ErrUnexpectedStatus is wrapped by adapter errors when the upstream answers
// with a non-2xx status code.
var ErrUnexpectedStatus = errors.New("unexpected upstream status")

// ConversationLister defines the driven port for reading the archive listing.
type ConversationLister interface {
	// ListArchived returns one page of archived conversations ordered by most
	// recent update. An empty slice marks the end of the archive.
	ListArchived(ctx context.Context, cred model.Credential, offset, limit int) ([]model.ArchivedItem, error)
}

// ConversationWriter defines the driven port for conversation mutations.
// It is kept separate from ConversationLister so the batch mutator depends
// only on the write side.
type ConversationWriter interface {
	// Unarchive clears the archived flag of a single conversation. A nil error
	// means the upstream acknowledged the change with a 2xx status.
	Unarchive(ctx context.Context, cred model.Credential, id string) error
}
