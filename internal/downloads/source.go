package downloads

import (
	"context"

	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/downloader"
	"github.com/fumetsu/hibiki/internal/log"
	"github.com/fumetsu/hibiki/internal/provider"
	"github.com/fumetsu/hibiki/internal/resolver"
)

// ResolvedStream is a playable URL with everything the downloader needs
type ResolvedStream struct {
	URL          string
	Headers      map[string]string
	Quality      string
	Provider     string
	Server       string
	EpisodeTitle string
	Subtitles    []downloader.SubtitleSource

	MergeSubtitles  bool
	CleanAfterMerge bool
}

// StreamSource turns a media item and episode number into a stream
type StreamSource interface {
	Resolve(ctx context.Context, item *domain.MediaItem, episode string) (*ResolvedStream, error)
}

// ProviderSource resolves streams by fuzzy-binding the catalog item to a
// provider result and taking the first server the provider offers.
type ProviderSource struct {
	Provider        provider.Provider
	TranslationType domain.TranslationType
	Quality         string
	WantSubtitles   bool
	MergeSubtitles  bool
	CleanAfterMerge bool
}

func (s *ProviderSource) Resolve(ctx context.Context, item *domain.MediaItem, episode string) (*ResolvedStream, error) {
	results, err := s.Provider.Search(ctx, domain.SearchParams{
		Query:           item.Title.Preferred(),
		TranslationType: s.TranslationType,
		AllowNSFW:       item.IsAdult,
	})
	if err != nil {
		return nil, err
	}
	if results == nil || len(results.Results) == 0 {
		log.Debug("Provider found no results", "provider", s.Provider.Name(), "title", item.Title.Preferred())
		return nil, nil
	}

	match := resolver.BestMatch(results.Results, s.Provider.Normalizer(), item)
	if match == nil {
		return nil, nil
	}

	iterator, err := s.Provider.EpisodeStreams(ctx, domain.EpisodeStreamsParams{
		AnimeID:         match.Result.ID,
		Query:           match.Result.Title,
		Episode:         episode,
		TranslationType: s.TranslationType,
		Quality:         s.Quality,
		WantSubtitles:   s.WantSubtitles,
	})
	if err != nil {
		return nil, err
	}
	if iterator == nil {
		return nil, nil
	}
	defer iterator.Close()

	server := iterator.Next()
	if server == nil {
		return nil, nil
	}
	link := server.BestLink(s.Quality)
	if link == nil {
		return nil, nil
	}

	stream := &ResolvedStream{
		URL:             link.Link,
		Headers:         server.Headers,
		Quality:         link.Quality,
		Provider:        s.Provider.Name(),
		Server:          server.Name,
		EpisodeTitle:    server.EpisodeTitle,
		MergeSubtitles:  s.MergeSubtitles,
		CleanAfterMerge: s.CleanAfterMerge,
	}
	for _, sub := range server.Subtitles {
		stream.Subtitles = append(stream.Subtitles, downloader.SubtitleSource{URL: sub.URL, Language: sub.Language})
	}
	return stream, nil
}
