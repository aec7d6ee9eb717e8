// Package factory constructs providers by tag.
package factory

import (
	"fmt"

	"github.com/fumetsu/hibiki/internal/provider"
	"github.com/fumetsu/hibiki/internal/provider/allanime"
	"github.com/fumetsu/hibiki/internal/provider/animepahe"
	"github.com/fumetsu/hibiki/internal/provider/animeunity"
	"github.com/fumetsu/hibiki/internal/provider/hianime"
	"github.com/fumetsu/hibiki/internal/provider/nyaa"
	"github.com/fumetsu/hibiki/internal/provider/yugen"
)

// Tags lists the known provider tags in default preference order
var Tags = []string{"allanime", "animepahe", "hianime", "animeunity", "yugen", "nyaa"}

// New returns a ready provider for a tag
func New(tag string) (provider.Provider, error) {
	switch tag {
	case "allanime":
		return allanime.New(), nil
	case "animepahe":
		return animepahe.New(), nil
	case "hianime":
		return hianime.New(), nil
	case "animeunity":
		return animeunity.New(), nil
	case "yugen":
		return yugen.New(), nil
	case "nyaa":
		return nyaa.New(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", tag)
	}
}
