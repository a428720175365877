package service

import (
	"fmt"
	"strings"

	"github.com/BarkinBalci/star-feed-service/internal/domain"
	"github.com/BarkinBalci/star-feed-service/internal/dto"
	"github.com/BarkinBalci/star-feed-service/internal/repository"
)

// buildFilter validates the raw query and converts it into a normalized
// filter. All invalid fields are collected before returning, so a client sees
// its whole problem at once.
func buildFilter(query dto.StarsQuery, matchTopics bool) (repository.EventFilter, error) {
	var fields []domain.FieldError
	invalid := func(field, message string) {
		fields = append(fields, domain.FieldError{Field: field, Message: message})
	}

	if query.Page < 1 {
		invalid("page", "must be at least 1")
	}
	if query.PageSize < 1 || query.PageSize > repository.MaxPageSize {
		invalid("page_size", fmt.Sprintf("must be between 1 and %d", repository.MaxPageSize))
	}

	sort := repository.SortMode(strings.ToLower(strings.TrimSpace(query.Sort)))
	switch sort {
	case "", repository.SortNewest, repository.SortAlpha:
	default:
		invalid("sort", "must be one of: newest, alpha")
	}

	mode := repository.AccountMode(strings.ToLower(strings.TrimSpace(query.UserMode)))
	switch mode {
	case "", repository.AccountAll, repository.AccountPin, repository.AccountExclude:
	default:
		invalid("user_mode", "must be one of: all, pin, exclude")
	}
	if (mode == repository.AccountPin || mode == repository.AccountExclude) &&
		strings.TrimSpace(query.User) == "" {
		invalid("user", "required when user_mode is pin or exclude")
	}

	activity := strings.ToLower(strings.TrimSpace(query.Activity))
	switch domain.ActivityTier(activity) {
	case "", domain.TierHigh, domain.TierMedium, domain.TierLow, domain.TierUnknown:
	default:
		invalid("activity", "must be one of: high, medium, low, unknown")
	}

	if len(fields) > 0 {
		return repository.EventFilter{}, &domain.ValidationError{Fields: fields}
	}

	return repository.EventFilter{
		Search:        query.Search,
		Language:      query.Language,
		Tier:          activity,
		AccountMode:   mode,
		AccountHandle: query.User,
		Sort:          sort,
		Page:          query.Page,
		PageSize:      query.PageSize,
		MatchTopics:   matchTopics,
	}.Normalize(), nil
}
