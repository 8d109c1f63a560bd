package search

import (
	"context"
	"log"

	"nyaymitra/client/internal/remote"
)

// Cache stores result sets by query.
type Cache interface {
	Get(ctx context.Context, query string) ([]remote.RightCard, bool, error)
	Put(ctx context.Context, query string, cards []remote.RightCard) error
}

// Service is the Searcher the controller dispatches to: a cache in front of
// the remote legal-search service, feeding every fresh result set into the
// rights catalog.
type Service struct {
	remote  Searcher
	cache   Cache
	catalog *Catalog
}

// NewService creates a search service. cache and catalog may be nil.
func NewService(remote Searcher, cache Cache, catalog *Catalog) *Service {
	return &Service{remote: remote, cache: cache, catalog: catalog}
}

// SearchLaws serves from the cache when possible. Failures and the busy
// sentinel are never cached.
func (s *Service) SearchLaws(ctx context.Context, query string) ([]remote.RightCard, error) {
	if s.cache != nil {
		cards, ok, err := s.cache.Get(ctx, query)
		if err != nil {
			log.Printf("search: cache lookup for %q: %v", query, err)
		} else if ok {
			return cards, nil
		}
	}

	cards, err := s.remote.SearchLaws(ctx, query)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, query, cards); err != nil {
			log.Printf("search: cache store for %q: %v", query, err)
		}
	}
	if s.catalog != nil {
		s.catalog.Harvest(cards)
	}
	return cards, nil
}
