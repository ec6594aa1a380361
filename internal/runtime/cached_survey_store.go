package runtime

import (
	"context"

	"github.com/surveyrt/runtime/internal/cache"
	"github.com/surveyrt/runtime/internal/models"
)

// CachedSurveyStore wraps a SurveyStore with internal/cache's best-effort
// TTL cache: survey definitions are read-mostly and keyed by surveyId
// (spec.md §9 Open Question (a)), so a cache miss only costs a repeat
// store round trip, never a correctness problem.
type CachedSurveyStore struct {
	store SurveyStore
	cache *cache.Cache
}

func NewCachedSurveyStore(store SurveyStore, c *cache.Cache) *CachedSurveyStore {
	return &CachedSurveyStore{store: store, cache: c}
}

func (s *CachedSurveyStore) GetPublished(ctx context.Context, surveyID string) (models.Survey, error) {
	if v, ok := s.cache.Get(surveyID); ok {
		return v.(models.Survey), nil
	}
	survey, err := s.store.GetPublished(ctx, surveyID)
	if err != nil {
		return models.Survey{}, err
	}
	s.cache.Set(surveyID, survey)
	return survey, nil
}
