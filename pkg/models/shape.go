package models

import (
	"sort"
	"strings"
)

// ColumnType is the host-side type of a single result column.
type ColumnType struct {
	HostType string // e.g. "number", "string", "Instant", "UserId"
	NotNull  bool
}

// Render returns the host-language literal for this column type,
// e.g. "Req<number>" or "Opt<string>".
func (t ColumnType) Render() string {
	if t.NotNull {
		return "Req<" + t.HostType + ">"
	}
	return "Opt<" + t.HostType + ">"
}

// ColumnShape maps result column names to their types. A nil shape means
// "skip type checking" for the statement that carries it; an empty shape
// means the statement is expected to return no columns.
type ColumnShape map[string]ColumnType

// CanonicalString renders the shape in a stable, order-independent form used
// for shape comparison and cache signatures. A nil shape renders as a
// sentinel distinct from the empty shape.
func (s ColumnShape) CanonicalString() string {
	if s == nil {
		return "<any>"
	}

	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+s[name].Render())
	}
	return "{" + strings.Join(parts, "; ") + "}"
}

// Equal reports whether two shapes contain exactly the same columns with the
// same nullability and type, independent of declaration order.
func (s ColumnShape) Equal(other ColumnShape) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	return s.CanonicalString() == other.CanonicalString()
}
