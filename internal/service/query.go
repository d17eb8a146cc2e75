package service

import (
	"strconv"
	"strings"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/repository"
)

// TaskListParams is the parsed form of the task list query string.
type TaskListParams struct {
	Completed *bool
	SortBy    repository.SortField
	SortDesc  bool
	Limit     int
	Skip      int
}

var sortable = map[repository.SortField]bool{
	repository.SortByCreatedAt:   true,
	repository.SortByUpdatedAt:   true,
	repository.SortByCompleted:   true,
	repository.SortByDescription: true,
}

// ParseListParams turns raw query values into list criteria.
//
//   - completed: empty means both states; otherwise "true" selects completed
//     tasks and any other value selects open ones.
//   - sortBy: "field:direction". Only "desc" sorts descending. The field must
//     be one of createdAt, updatedAt, completed, description.
//   - limit, skip: integers. Empty, non-numeric and negative values mean
//     "unbounded"; limit=0 also means no limit.
func ParseListParams(completed, sortBy, limit, skip string) (TaskListParams, error) {
	p := TaskListParams{
		Limit: parseBound(limit),
		Skip:  parseBound(skip),
	}
	if p.Limit == 0 {
		p.Limit = repository.Unbounded
	}

	if completed != "" {
		v := completed == "true"
		p.Completed = &v
	}

	if sortBy != "" {
		field, dir, _ := strings.Cut(sortBy, ":")
		f := repository.SortField(field)
		if !sortable[f] {
			return TaskListParams{}, apperror.ValidationFailed("sortBy",
				"sortBy field must be one of createdAt, updatedAt, completed, description")
		}
		p.SortBy = f
		p.SortDesc = dir == "desc"
	}

	return p, nil
}

// parseBound reads a non-negative integer, or returns Unbounded.
func parseBound(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return repository.Unbounded
	}
	return n
}
