// Package views resolves a library of named, composable SQL view fragments
// into a dependency-ordered list of concrete CREATE VIEW bodies.
package views

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pgvet-io/pgvet-engine/pkg/models"
)

// ResolvedView is a view with zero remaining references: its body is
// concrete SQL in which every referenced view has been substituted by that
// view's generated name.
type ResolvedView struct {
	Name          models.ViewName
	GeneratedName string
	Body          string
	SourceMap     models.SourceMap
	FileName      string
	FileContents  string

	// Dependencies holds the generated names of directly referenced views.
	Dependencies []string
}

// ErrorKind classifies resolution failures.
type ErrorKind int

const (
	// ErrorCycle marks a view that depends on itself, directly or transitively.
	ErrorCycle ErrorKind = iota
	// ErrorMissingDependency marks a reference to a view absent from the library.
	ErrorMissingDependency
)

// ResolutionError is a non-fatal, per-view resolution failure. Resolution
// continues for independent views.
type ResolutionError struct {
	Kind         ErrorKind
	View         models.ViewName
	Missing      models.ViewName // set for ErrorMissingDependency
	FileName     string
	FileContents string
	SourceOffset int
}

// Message renders the human-readable error text.
func (e ResolutionError) Message() string {
	switch e.Kind {
	case ErrorCycle:
		return fmt.Sprintf("view %q depends on itself", e.View)
	case ErrorMissingDependency:
		return fmt.Sprintf("view %q references %q, which does not exist in module %q",
			e.View, e.Missing, e.Missing.Module)
	default:
		return "unknown resolution error"
	}
}

// Result is the output of one resolution pass: concrete views in dependency
// order (children strictly before parents, each exactly once) plus the
// errors for views that could not be resolved. Unresolvable views are
// excluded from Views entirely, never emitted partially substituted.
type Result struct {
	Views  []ResolvedView
	Errors []ResolutionError
}

// Resolver resolves view libraries. Resolution is a pure function of the
// submitted library: fragments are never mutated, so a changed view source
// is automatically re-resolved from its original segments, and the change
// propagates to dependents because their bodies embed the child's
// content-hash-derived generated name.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a resolver. If logger is nil, a no-op logger is used.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

type resolveState int

const (
	stateUnvisited resolveState = iota
	stateInProgress
	stateResolved
	stateFailed
)

type resolution struct {
	library map[models.ViewName]models.ViewFragment
	states  map[models.ViewName]resolveState
	done    map[models.ViewName]*ResolvedView
	errors  []ResolutionError

	// stack tracks the current DFS path for cycle-member attribution.
	stack []models.ViewName
}

// Resolve resolves every fragment in library. Views are processed in a
// deterministic order so diagnostics and emission order are stable across
// runs.
func (r *Resolver) Resolve(library []models.ViewFragment) Result {
	res := &resolution{
		library: make(map[models.ViewName]models.ViewFragment, len(library)),
		states:  make(map[models.ViewName]resolveState, len(library)),
		done:    make(map[models.ViewName]*ResolvedView, len(library)),
	}

	names := make([]models.ViewName, 0, len(library))
	for _, frag := range library {
		res.library[frag.Name] = frag
		names = append(names, frag.Name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i].Module != names[j].Module {
			return names[i].Module < names[j].Module
		}
		return names[i].Name < names[j].Name
	})

	for _, name := range names {
		res.resolve(name)
	}

	// Depth-first emission: children strictly before parents, each view
	// exactly once even when it is a dependency of multiple parents.
	added := make(map[string]bool)
	var ordered []ResolvedView
	var emit func(name models.ViewName)
	emit = func(name models.ViewName) {
		view, ok := res.done[name]
		if !ok || added[view.GeneratedName] {
			return
		}
		for _, seg := range res.library[name].Segments {
			if seg.Kind == models.SegmentViewRef {
				emit(seg.Ref)
			}
		}
		if !added[view.GeneratedName] {
			added[view.GeneratedName] = true
			ordered = append(ordered, *view)
		}
	}
	for _, name := range names {
		emit(name)
	}

	r.logger.Debug("resolved view library",
		zap.Int("views", len(ordered)),
		zap.Int("errors", len(res.errors)))

	return Result{Views: ordered, Errors: res.errors}
}

// resolve resolves one view and, recursively, its dependencies. Results are
// memoized; an already-resolved view is never re-resolved.
func (res *resolution) resolve(name models.ViewName) *ResolvedView {
	switch res.states[name] {
	case stateResolved:
		return res.done[name]
	case stateFailed:
		return nil
	case stateInProgress:
		res.failCycle(name)
		return nil
	}

	frag, ok := res.library[name]
	if !ok {
		// Caller reports the missing dependency with its own context.
		return nil
	}

	res.states[name] = stateInProgress
	res.stack = append(res.stack, name)
	defer func() {
		res.stack = res.stack[:len(res.stack)-1]
	}()

	var body []byte
	var spans []models.SourceSpan
	var deps []string
	failed := false

	for _, seg := range frag.Segments {
		switch seg.Kind {
		case models.SegmentLiteral:
			spans = append(spans, models.SourceSpan{
				SourceOffset: seg.SourceOffset,
				TextStart:    len(body),
				TextEnd:      len(body) + len(seg.Text),
				Linear:       true,
			})
			body = append(body, seg.Text...)

		case models.SegmentViewRef:
			if _, exists := res.library[seg.Ref]; !exists {
				res.errors = append(res.errors, ResolutionError{
					Kind:         ErrorMissingDependency,
					View:         name,
					Missing:      seg.Ref,
					FileName:     frag.FileName,
					FileContents: frag.FileContents,
					SourceOffset: seg.SourceOffset,
				})
				failed = true
				continue
			}

			child := res.resolve(seg.Ref)
			if child == nil {
				// Cycle or transitively failed dependency; the root cause
				// already carries its own diagnostic.
				failed = true
				continue
			}

			spans = append(spans, models.SourceSpan{
				SourceOffset: seg.SourceOffset,
				TextStart:    len(body),
				TextEnd:      len(body) + len(child.GeneratedName),
				Linear:       false,
			})
			body = append(body, child.GeneratedName...)
			deps = append(deps, child.GeneratedName)
		}
	}

	// A view marked as a cycle member while its own segments were resolving
	// must not be emitted.
	if res.states[name] == stateFailed || failed {
		res.states[name] = stateFailed
		return nil
	}

	view := &ResolvedView{
		Name:          name,
		GeneratedName: GeneratedViewName(frag.VarName, string(body)),
		Body:          string(body),
		SourceMap:     models.NewSourceMap(spans),
		FileName:      frag.FileName,
		FileContents:  frag.FileContents,
		Dependencies:  deps,
	}
	res.states[name] = stateResolved
	res.done[name] = view
	return view
}

// failCycle marks every view on the DFS path from the back-edge target
// onward as a cycle member and records one diagnostic per member, attributed
// to the member's first fragment source position.
func (res *resolution) failCycle(target models.ViewName) {
	start := -1
	for i, n := range res.stack {
		if n == target {
			start = i
			break
		}
	}
	if start < 0 {
		return
	}

	for _, member := range res.stack[start:] {
		if res.states[member] == stateFailed {
			continue
		}
		res.states[member] = stateFailed

		frag := res.library[member]
		offset := 0
		if len(frag.Segments) > 0 {
			offset = frag.Segments[0].SourceOffset
		}
		res.errors = append(res.errors, ResolutionError{
			Kind:         ErrorCycle,
			View:         member,
			FileName:     frag.FileName,
			FileContents: frag.FileContents,
			SourceOffset: offset,
		})
	}
}
