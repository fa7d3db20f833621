package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samirrijal/safewalk/internal/core/domain"
	"github.com/samirrijal/safewalk/internal/core/ports"
	"github.com/samirrijal/safewalk/internal/pkg/metrics"
)

// MinSuggestionQuery is the shortest query forwarded to the geocoder.
const MinSuggestionQuery = 3

// SuggestionService answers place-name autocomplete queries.
type SuggestionService struct {
	geocoder ports.Geocoder
	cache    ports.CacheService
}

// NewSuggestionService creates a new SuggestionService.
func NewSuggestionService(geocoder ports.Geocoder, cache ports.CacheService) *SuggestionService {
	return &SuggestionService{geocoder: geocoder, cache: cache}
}

// Search returns geocoding hits for query. Queries shorter than
// MinSuggestionQuery return an empty list without calling the geocoder.
func (s *SuggestionService) Search(ctx context.Context, query string, limit int) ([]domain.Suggestion, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinSuggestionQuery {
		return []domain.Suggestion{}, nil
	}
	if limit <= 0 || limit > 20 {
		limit = 5
	}

	cacheKey := fmt.Sprintf("suggest:%s:%d", strings.ToLower(query), limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var hits []domain.Suggestion
			if err := json.Unmarshal(data, &hits); err == nil {
				metrics.CacheHits.WithLabelValues("suggestions").Inc()
				return hits, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("suggestions").Inc()
	}

	hits, err := s.geocoder.Geocode(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: geocode %q: %w", domain.ErrProviderUnavailable, query, err)
	}
	if hits == nil {
		hits = []domain.Suggestion{}
	}

	// Place names are stable; 5 minutes.
	if s.cache != nil {
		if data, err := json.Marshal(hits); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 300)
		}
	}
	return hits, nil
}
