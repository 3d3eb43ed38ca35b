// Package repo defines a generic keyed repository and its Neo4j
// implementation.
package repo

import (
	"context"
	"errors"
	"regexp"
)

var (
	// ErrNotFound is returned when no entity has the requested id.
	ErrNotFound = errors.New("repo: not found")
	// ErrBadProperty is returned for property names that are not plain
	// identifiers and so cannot be spliced into a query.
	ErrBadProperty = errors.New("repo: invalid property name")
)

// Repository is a keyed store of T.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Upsert(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls pagination, ordering and equality filters.
type ListOpts struct {
	Offset  int
	Limit   int
	OrderBy string
	Filter  map[string]any
}

var propertyRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validProperty(name string) bool {
	return propertyRe.MatchString(name)
}
