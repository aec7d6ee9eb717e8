// Package catalog defines the remote media list contract and its implementations.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/fumetsu/hibiki/internal/domain"
)

// Client is the polymorphic catalog operation set.  Implementations map remote
// wire types into the generic domain model; remote enums with no generic
// equivalent map to the nearest documented value or are dropped.
type Client interface {
	// Authenticate validates a token against the catalog.  On success the token is
	// persisted; on rejection any stored credential is cleared.
	Authenticate(ctx context.Context, token string) (*domain.UserProfile, error)
	IsAuthenticated() bool
	ViewerProfile() *domain.UserProfile

	SearchMedia(ctx context.Context, params domain.MediaSearchParams) (*domain.MediaSearchResult, error)
	// SearchMediaList requires authentication and filters by user list status
	SearchMediaList(ctx context.Context, params domain.UserMediaListSearchParams) (*domain.MediaSearchResult, error)

	// UpdateListEntry returns true iff the remote accepted the mutation
	UpdateListEntry(ctx context.Context, params domain.UpdateListEntryParams) bool
	// DeleteListEntry is idempotent
	DeleteListEntry(ctx context.Context, mediaID int) bool

	Recommendations(ctx context.Context, mediaID int) ([]*domain.MediaItem, error)
	Characters(ctx context.Context, mediaID int) ([]domain.CharacterInfo, error)
	RelatedAnime(ctx context.Context, mediaID int) ([]*domain.MediaItem, error)
	AiringSchedule(ctx context.Context, mediaID int) ([]domain.AiringScheduleItem, error)
	Reviews(ctx context.Context, mediaID int) ([]domain.Review, error)

	// Notifications returns only unread notifications; fetching marks them read server-side
	Notifications(ctx context.Context) ([]domain.Notification, error)
}

// ErrAuthRejected indicates the catalog rejected the stored or supplied token
var ErrAuthRejected = errors.New("catalog: authentication rejected")

// ErrNotAuthenticated indicates an operation that requires auth was called without it
var ErrNotAuthenticated = errors.New("catalog: not authenticated")

// NetworkError wraps transport failures so callers can distinguish them from
// semantically empty responses.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
