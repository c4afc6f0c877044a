// Package diagnostics turns validation outcomes and schema errors into
// positioned diagnostics, rebasing generated-SQL offsets back into host
// source through each statement's source map.
package diagnostics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pgvet-io/pgvet-engine/pkg/database"
	"github.com/pgvet-io/pgvet-engine/pkg/models"
	"github.com/pgvet-io/pgvet-engine/pkg/sandbox"
	"github.com/pgvet-io/pgvet-engine/pkg/validate"
	"github.com/pgvet-io/pgvet-engine/pkg/views"
)

// Mapper renders outcomes as diagnostics. It carries the column-types layout
// configuration used for quick-fix replacement text.
type Mapper struct {
	format models.ColTypesFormat
}

// NewMapper creates a mapper with the given column-types layout.
func NewMapper(format models.ColTypesFormat) *Mapper {
	if format.Delimiter == "" {
		format.Delimiter = ","
	}
	return &Mapper{format: format}
}

// spanForGeneratedOffset rebases a 0-based byte offset in the statement's
// generated SQL back to a point span in the host source. Falls back to the
// statement's call span when the offset cannot be mapped.
func spanForGeneratedOffset(q *models.ResolvedQuery, offset int) models.Span {
	src, ok := q.SourceMap.ToSource(offset)
	if !ok {
		return q.CallSpan
	}
	return models.PointSpanForOffset(q.FileContents, src)
}

// dbErrorMessages renders a database error as message lines: the primary
// message first, then detail and hint when present.
func dbErrorMessages(pg *database.PGError) []string {
	msgs := []string{fmt.Sprintf("database error %s: %s", pg.Code, pg.Message)}
	if pg.Detail != "" {
		msgs = append(msgs, "detail: "+pg.Detail)
	}
	if pg.Hint != "" {
		msgs = append(msgs, "hint: "+pg.Hint)
	}
	return msgs
}

// FromOutcome converts one statement's validation outcome into diagnostics.
// OutcomeNoErrors yields none.
func (m *Mapper) FromOutcome(stmt models.Statement, outcome validate.Outcome) []models.Diagnostic {
	base := stmt.Base()

	switch outcome.Kind {
	case validate.OutcomeNoErrors:
		return nil

	case validate.OutcomeDescribeError:
		span := base.CallSpan
		if outcome.DB.Position > 0 {
			span = spanForGeneratedOffset(base, outcome.DB.Position-1)
		}
		return []models.Diagnostic{{
			FileName:     base.FileName,
			FileContents: base.FileContents,
			Span:         span,
			Messages:     dbErrorMessages(outcome.DB),
		}}

	case validate.OutcomeDuplicateColumnNames:
		names := append([]string(nil), outcome.DuplicateNames...)
		sort.Strings(names)
		return []models.Diagnostic{{
			FileName:     base.FileName,
			FileContents: base.FileContents,
			Span:         base.CallSpan,
			Messages: []string{
				"query returns duplicate column names: " + strings.Join(names, ", "),
			},
		}}

	case validate.OutcomeWrongColumnTypes:
		replacement := m.RenderShapeArgument(outcome.Actual, base.MethodName)
		return []models.Diagnostic{{
			FileName:     base.FileName,
			FileContents: base.FileContents,
			Span:         base.CallSpan,
			Messages:     []string{"wrong column types"},
			Epilogue: "expected: " + base.Expected.CanonicalString() +
				"\nactual:   " + outcome.Actual.CanonicalString(),
			QuickFix: &models.QuickFix{
				Name:            "Change type annotation to: " + outcome.Actual.CanonicalString(),
				ReplacementText: replacement,
			},
		}}

	case validate.OutcomeInvalidTableName:
		return []models.Diagnostic{{
			FileName:     base.FileName,
			FileContents: base.FileContents,
			Span:         base.CallSpan,
			Messages:     []string{fmt.Sprintf("table %q does not exist", outcome.Table)},
		}}

	case validate.OutcomeInvalidInsertColumns:
		msgs := make([]string, 0, len(outcome.Violations))
		for _, v := range outcome.Violations {
			msgs = append(msgs, violationMessage(v))
		}
		return []models.Diagnostic{{
			FileName:     base.FileName,
			FileContents: base.FileContents,
			Span:         base.CallSpan,
			Messages:     msgs,
		}}

	default:
		panic(fmt.Sprintf("unhandled outcome kind %d", outcome.Kind))
	}
}

func violationMessage(v validate.InsertViolation) string {
	switch v.Kind {
	case validate.ColNotFound:
		return fmt.Sprintf("column %q does not exist on table %q", v.Column, v.Table)
	case validate.ColTypeMismatch:
		return fmt.Sprintf("column %q of table %q expects %s but %s was supplied",
			v.Column, v.Table, v.Expected, v.Actual)
	case validate.MissingRequiredCol:
		return fmt.Sprintf("column %q of table %q is required (%s, no default) but was not supplied",
			v.Column, v.Table, v.Expected)
	default:
		panic(fmt.Sprintf("unhandled violation kind %d", v.Kind))
	}
}

// FromMigrationError renders the single fatal diagnostic for a failed
// migration replay, positioned at the failing statement inside the file.
func (m *Mapper) FromMigrationError(me *sandbox.MigrationError) models.Diagnostic {
	return models.Diagnostic{
		FileName:     me.FileName,
		FileContents: me.Contents,
		Span:         models.PointSpanForOffset(me.Contents, me.Offset),
		Messages: append([]string{"migration failed: " + me.FileName},
			dbErrorMessages(me.PG)...),
	}
}

// FromResolutionError renders a view resolution failure (cycle or missing
// dependency) at the offending position in the host source.
func (m *Mapper) FromResolutionError(re views.ResolutionError) models.Diagnostic {
	return models.Diagnostic{
		FileName:     re.FileName,
		FileContents: re.FileContents,
		Span:         models.PointSpanForOffset(re.FileContents, re.SourceOffset),
		Messages:     []string{re.Message()},
	}
}

// FromViewError renders a per-view installation failure, rebasing the offset
// inside the resolved view body back to the host source.
func (m *Mapper) FromViewError(ve sandbox.ViewError) models.Diagnostic {
	span := models.FileSpan()
	if src, ok := ve.View.SourceMap.ToSource(ve.Offset); ok {
		span = models.PointSpanForOffset(ve.View.FileContents, src)
	}

	var msgs []string
	switch ve.Kind {
	case sandbox.ViewCreateError:
		msgs = append([]string{fmt.Sprintf("cannot create view %q", ve.View.Name)},
			dbErrorMessages(ve.PG)...)
	case sandbox.ViewInvalidWildcard:
		msgs = []string{
			fmt.Sprintf("view %q selects * without a table qualifier", ve.View.Name),
			"an unqualified wildcard makes the view's column set change silently with the schema; list the columns or qualify the wildcard",
		}
	default:
		panic(fmt.Sprintf("unhandled view error kind %d", ve.Kind))
	}

	return models.Diagnostic{
		FileName:     ve.View.FileName,
		FileContents: ve.View.FileContents,
		Span:         span,
		Messages:     msgs,
	}
}

// RenderShapeArgument renders a shape as the replacement text for a host
// type argument: "<{}>" for an empty shape, a one-liner for a single column,
// and an indented block otherwise, honoring the configured delimiter and the
// optional folding-region markers. A method name prefixes the whole argument
// when the original call carried no explicit type argument to replace.
func (m *Mapper) RenderShapeArgument(shape models.ColumnShape, methodName string) string {
	var body string

	names := make([]string, 0, len(shape))
	for name := range shape {
		names = append(names, name)
	}
	sort.Strings(names)

	switch len(names) {
	case 0:
		body = "<{}>"
	case 1:
		body = "<{" + names[0] + ": " + shape[names[0]].Render() + "}>"
	default:
		var b strings.Builder
		b.WriteString("<{\n")
		if m.format.IncludeRegionMarker {
			b.WriteString("    // #region ColTypes\n")
		}
		for i, name := range names {
			b.WriteString("    " + name + ": " + shape[name].Render())
			if i < len(names)-1 {
				b.WriteString(m.format.Delimiter)
			}
			b.WriteString("\n")
		}
		if m.format.IncludeRegionMarker {
			b.WriteString("    // #endregion\n")
		}
		b.WriteString("}>")
		body = b.String()
	}

	if methodName != "" {
		return methodName + body
	}
	return body
}
