// Package manifestio decodes the JSON manifest interchange format produced
// by extraction layers into the engine's data model. The wire format uses
// string-tagged unions; the internal model uses Go tagged structs.
package manifestio

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pgvet-io/pgvet-engine/pkg/models"
)

type wireManifest struct {
	ViewLibrary []wireFragment  `json:"viewLibrary"`
	Statements  []wireStatement `json:"statements"`
}

type wireFragment struct {
	Module       string        `json:"module"`
	Name         string        `json:"name"`
	VarName      string        `json:"varName"`
	FileName     string        `json:"fileName"`
	FileContents string        `json:"fileContents"`
	Segments     []wireSegment `json:"segments"`
}

type wireSegment struct {
	Kind         string `json:"kind"` // "literal" | "ref"
	Text         string `json:"text,omitempty"`
	RefModule    string `json:"refModule,omitempty"`
	RefName      string `json:"refName,omitempty"`
	SourceOffset int    `json:"sourceOffset"`
}

type wireColumnType struct {
	Type    string `json:"type"`
	NotNull bool   `json:"notNull"`
}

type wireStatement struct {
	Kind         string                    `json:"kind"` // "query" | "insert"
	Text         string                    `json:"text"`
	FileName     string                    `json:"fileName"`
	FileContents string                    `json:"fileContents"`
	SourceMap    []wireSpan                `json:"sourceMap"`
	Expected     *wireShape                `json:"expected"` // null skips type checking
	CallSpan     *wireSpan2D               `json:"callSpan"`
	MethodName   string                    `json:"methodName,omitempty"`
	TableName    string                    `json:"tableName,omitempty"` // insert only
	Supplied     map[string]wireColumnType `json:"suppliedColumns,omitempty"`
}

type wireShape map[string]wireColumnType

type wireSpan struct {
	SourceOffset int  `json:"sourceOffset"`
	TextStart    int  `json:"textStart"`
	TextEnd      int  `json:"textEnd"`
	Linear       bool `json:"linear"`
}

type wireSpan2D struct {
	StartLine int `json:"startLine"`
	StartCol  int `json:"startCol"`
	EndLine   int `json:"endLine,omitempty"`
	EndCol    int `json:"endCol,omitempty"`
}

// Decode reads a JSON manifest. The run config and branded-type bindings are
// not part of the interchange format; they come from the config file and are
// attached by the caller.
func Decode(r io.Reader) (*models.Manifest, error) {
	var wire wireManifest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	manifest := &models.Manifest{}

	for i, f := range wire.ViewLibrary {
		frag, err := decodeFragment(f)
		if err != nil {
			return nil, fmt.Errorf("viewLibrary[%d]: %w", i, err)
		}
		manifest.ViewLibrary = append(manifest.ViewLibrary, frag)
	}

	for i, s := range wire.Statements {
		stmt, err := decodeStatement(s)
		if err != nil {
			return nil, fmt.Errorf("statements[%d]: %w", i, err)
		}
		manifest.Statements = append(manifest.Statements, stmt)
	}

	return manifest, nil
}

// Load decodes a manifest from a file.
func Load(path string) (*models.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

func decodeFragment(f wireFragment) (models.ViewFragment, error) {
	frag := models.ViewFragment{
		Name:         models.ViewName{Module: f.Module, Name: f.Name},
		VarName:      f.VarName,
		FileName:     f.FileName,
		FileContents: f.FileContents,
	}
	for i, seg := range f.Segments {
		switch seg.Kind {
		case "literal":
			frag.Segments = append(frag.Segments, models.FragmentSegment{
				Kind:         models.SegmentLiteral,
				Text:         seg.Text,
				SourceOffset: seg.SourceOffset,
			})
		case "ref":
			frag.Segments = append(frag.Segments, models.FragmentSegment{
				Kind:         models.SegmentViewRef,
				Ref:          models.ViewName{Module: seg.RefModule, Name: seg.RefName},
				SourceOffset: seg.SourceOffset,
			})
		default:
			return frag, fmt.Errorf("segments[%d]: unknown kind %q", i, seg.Kind)
		}
	}
	return frag, nil
}

func decodeStatement(s wireStatement) (models.Statement, error) {
	query := models.ResolvedQuery{
		Text:         s.Text,
		FileName:     s.FileName,
		FileContents: s.FileContents,
		SourceMap:    decodeSourceMap(s.SourceMap),
		Expected:     decodeShape(s.Expected),
		CallSpan:     decodeCallSpan(s.CallSpan),
		MethodName:   s.MethodName,
	}

	switch s.Kind {
	case "query":
		return models.Statement{Query: &query}, nil
	case "insert":
		if s.TableName == "" {
			return models.Statement{}, fmt.Errorf("insert statement missing tableName")
		}
		supplied := make(models.ColumnShape, len(s.Supplied))
		for name, ct := range s.Supplied {
			supplied[name] = models.ColumnType{HostType: ct.Type, NotNull: ct.NotNull}
		}
		return models.Statement{Insert: &models.ResolvedInsert{
			ResolvedQuery:   query,
			TableName:       s.TableName,
			SuppliedColumns: supplied,
		}}, nil
	default:
		return models.Statement{}, fmt.Errorf("unknown statement kind %q", s.Kind)
	}
}

func decodeSourceMap(spans []wireSpan) models.SourceMap {
	converted := make([]models.SourceSpan, 0, len(spans))
	for _, sp := range spans {
		converted = append(converted, models.SourceSpan{
			SourceOffset: sp.SourceOffset,
			TextStart:    sp.TextStart,
			TextEnd:      sp.TextEnd,
			Linear:       sp.Linear,
		})
	}
	return models.NewSourceMap(converted)
}

func decodeShape(shape *wireShape) models.ColumnShape {
	if shape == nil {
		return nil
	}
	out := make(models.ColumnShape, len(*shape))
	for name, ct := range *shape {
		out[name] = models.ColumnType{HostType: ct.Type, NotNull: ct.NotNull}
	}
	return out
}

func decodeCallSpan(span *wireSpan2D) models.Span {
	if span == nil {
		return models.FileSpan()
	}
	if span.EndLine == 0 {
		return models.PointSpan(span.StartLine, span.StartCol)
	}
	return models.RangeSpan(span.StartLine, span.StartCol, span.EndLine, span.EndCol)
}
