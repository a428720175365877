package postgres

import (
	"fmt"
	"strings"

	"github.com/BarkinBalci/star-feed-service/internal/repository"
)

// buildWhere folds the tagged predicate list into a parameterized WHERE
// clause. User input only ever appears as bound arguments.
func buildWhere(preds []repository.Predicate) (string, []any) {
	if len(preds) == 0 {
		return "", nil
	}

	var clauses []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, p := range preds {
		switch p.Kind {
		case repository.PredSearch:
			pattern := "%" + p.Value + "%"
			fields := []string{
				"LOWER(e.repo_full_name) LIKE " + next(pattern),
				"LOWER(COALESCE(e.repo_description, '')) LIKE " + next(pattern),
				"LOWER(a.handle) LIKE " + next(pattern),
			}
			if p.MatchTopics {
				fields = append(fields,
					"LOWER(COALESCE(e.repo_topics, '[]'::jsonb)::text) LIKE "+next(pattern))
			}
			clauses = append(clauses, "("+strings.Join(fields, " OR ")+")")
		case repository.PredLanguage:
			clauses = append(clauses, "LOWER(COALESCE(e.repo_language, '')) = "+next(p.Value))
		case repository.PredTier:
			clauses = append(clauses, "a.activity_tier = "+next(p.Value))
		case repository.PredPinAccount:
			clauses = append(clauses, "LOWER(a.handle) = "+next(p.Value))
		case repository.PredExcludeAccount:
			clauses = append(clauses, "LOWER(a.handle) <> "+next(p.Value))
		}
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

// orderClause maps a sort mode to stable ordering. The sequence tiebreak
// keeps pagination deterministic when observation timestamps collide.
func orderClause(sort repository.SortMode) string {
	if sort == repository.SortAlpha {
		return "ORDER BY LOWER(e.repo_full_name) ASC, e.observed_at DESC, e.sequence DESC"
	}
	return "ORDER BY e.observed_at DESC, e.sequence DESC"
}
