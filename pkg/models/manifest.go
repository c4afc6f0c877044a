// Package models defines the plain data structures exchanged between the
// extraction layer, the validation engine, and the front ends.
package models

// ViewName identifies a view fragment within the manifest's view library.
type ViewName struct {
	Module string
	Name   string
}

func (n ViewName) String() string {
	return n.Module + "." + n.Name
}

// SegmentKind distinguishes the two kinds of view fragment segments.
type SegmentKind int

const (
	// SegmentLiteral is a run of literal SQL text.
	SegmentLiteral SegmentKind = iota
	// SegmentViewRef is a reference to another named view in the library.
	SegmentViewRef
)

// FragmentSegment is one piece of a view fragment: either literal SQL text
// or a reference to another named view. SourceOffset points back into the
// host source file where this segment originates.
type FragmentSegment struct {
	Kind         SegmentKind
	Text         string   // literal text (SegmentLiteral)
	Ref          ViewName // referenced view (SegmentViewRef)
	SourceOffset int
}

// ViewFragment is a named, composable SQL view fragment as extracted from
// host source. Fragments are immutable; resolution produces new values.
type ViewFragment struct {
	Name         ViewName
	VarName      string // host variable name, used to prefix the generated view name
	Segments     []FragmentSegment
	FileName     string
	FileContents string
}

// ResolvedQuery is a query statement with all host interpolations already
// turned into positional placeholders, ready to probe.
type ResolvedQuery struct {
	Text         string
	SourceMap    SourceMap
	FileName     string
	FileContents string

	// Expected is the declared result shape; nil skips type checking.
	Expected ColumnShape

	// CallSpan locates the host call site for diagnostics that cannot be
	// positioned more precisely (e.g. a missing type annotation).
	CallSpan Span

	// MethodName is set when the call used a sugar form with no explicit
	// type argument; quick fixes are then prefixed with the method name.
	MethodName string
}

// ResolvedInsert is an insert statement plus the metadata needed to
// cross-check the supplied columns against the target table.
type ResolvedInsert struct {
	ResolvedQuery

	TableName       string
	SuppliedColumns ColumnShape
}

// Statement is a tagged union of the two statement kinds. Exactly one field
// is non-nil.
type Statement struct {
	Query  *ResolvedQuery
	Insert *ResolvedInsert
}

// Base returns the common query fields regardless of statement kind.
func (s Statement) Base() *ResolvedQuery {
	if s.Insert != nil {
		return &s.Insert.ResolvedQuery
	}
	return s.Query
}

// BrandedTypeBinding binds a host nominal type to one table column. The
// sandbox rewrites the column to a range type so columns with different
// brands are structurally incompatible.
type BrandedTypeBinding struct {
	TypeName   string
	TableName  string
	ColumnName string
}

// TypeMapping maps a SQL type name to a host type name.
type TypeMapping struct {
	SQLTypeName  string
	HostTypeName string
}

// ColTypesFormat controls how expected-shape replacement text is laid out.
type ColTypesFormat struct {
	Delimiter           string // "," or ";"
	IncludeRegionMarker bool
}

// RunConfig is the per-run configuration slice of the manifest.
type RunConfig struct {
	StrictTemporalTyping bool
	ColTypesFormat       ColTypesFormat
	CustomTypeMappings   []TypeMapping
}

// Manifest is the complete input to one validation run. It is immutable
// once submitted.
type Manifest struct {
	ViewLibrary  []ViewFragment
	Statements   []Statement
	BrandedTypes []BrandedTypeBinding
	Config       RunConfig
}
