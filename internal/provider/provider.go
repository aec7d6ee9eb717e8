// Package provider defines the scraper contract and its implementations.
package provider

import (
	"context"

	"github.com/fumetsu/hibiki/internal/domain"
)

// Provider is the uniform three-operation scraper contract.  An empty result
// is returned as nil-with-nil-error; only transport and parse failures raise.
type Provider interface {
	// Name returns the factory tag of the provider
	Name() string

	Search(ctx context.Context, params domain.SearchParams) (*domain.SearchResults, error)
	Get(ctx context.Context, params domain.AnimeParams) (*domain.ProviderAnime, error)

	// EpisodeStreams returns a lazy iterator of servers in preference order.
	// The caller may stop after any server; Close aborts pending work.
	EpisodeStreams(ctx context.Context, params domain.EpisodeStreamsParams) (ServerIterator, error)

	// Normalizer strips the decorations this provider appends to titles,
	// so resolver matching compares clean names.
	Normalizer() func(title string) string
}

// ServerIterator is a pull cursor over an episode's servers
type ServerIterator interface {
	// Next returns the next server, or nil when the iteration is exhausted.
	// Fetch errors inside the iteration are logged and end it cleanly.
	Next() *domain.Server
	Close()
}

// sliceIterator serves a pre-fetched server list
type sliceIterator struct {
	servers []domain.Server
	pos     int
}

// NewSliceIterator wraps an eagerly built server list in the iterator contract
func NewSliceIterator(servers []domain.Server) ServerIterator {
	return &sliceIterator{servers: servers}
}

func (it *sliceIterator) Next() *domain.Server {
	if it.pos >= len(it.servers) {
		return nil
	}
	server := &it.servers[it.pos]
	it.pos++
	return server
}

func (it *sliceIterator) Close() {}

// funcIterator pulls servers from a fetch function one at a time, so sources
// that need one HTTP round trip per server only pay for what the caller takes.
type funcIterator struct {
	fetch  func() *domain.Server
	cancel context.CancelFunc
	done   bool
}

// NewFuncIterator builds an iterator around a pull function.  cancel may be
// nil when there is no in-flight work to abort.
func NewFuncIterator(fetch func() *domain.Server, cancel context.CancelFunc) ServerIterator {
	return &funcIterator{fetch: fetch, cancel: cancel}
}

func (it *funcIterator) Next() *domain.Server {
	if it.done {
		return nil
	}
	server := it.fetch()
	if server == nil {
		it.done = true
	}
	return server
}

func (it *funcIterator) Close() {
	it.done = true
	if it.cancel != nil {
		it.cancel()
	}
}

// IdentityNormalizer is the normalizer for providers that report clean titles
func IdentityNormalizer(title string) string { return title }
