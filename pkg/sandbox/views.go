package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/pgvet-io/pgvet-engine/pkg/database"
	"github.com/pgvet-io/pgvet-engine/pkg/views"
)

// reconcileViews brings the sandbox's installed views in line with the
// resolved view library. Because generated names are content hashes, the
// existence check doubles as a SQL-equivalence check: a view whose source
// changed has a new name and is simply a new view, and its dependents'
// bodies (which embed the old name) changed with it.
func (m *Manager) reconcileViews(ctx context.Context, resolved []views.ResolvedView, strict bool) ([]ViewError, error) {
	conn := m.sandbox.Conn()

	desired := make(map[string]struct{}, len(resolved))
	for _, v := range resolved {
		desired[v.GeneratedName] = struct{}{}
	}

	// Drop stale views. CASCADE is safe: a desired view can never depend on
	// a stale one, since its body would then embed the stale name and hash
	// to a stale name itself.
	for name := range m.state.InstalledViews {
		if _, keep := desired[name]; keep {
			continue
		}
		dropSQL := fmt.Sprintf("DROP VIEW IF EXISTS %s CASCADE", pgx.Identifier{name}.Sanitize())
		if _, err := conn.Exec(ctx, dropSQL); err != nil {
			return nil, fmt.Errorf("drop stale view %s: %w", name, err)
		}
		delete(m.state.InstalledViews, name)
		m.logger.Debug("Dropped stale view", zap.String("view", name))
	}

	var errs []ViewError
	for _, v := range resolved {
		if _, exists := m.state.InstalledViews[v.GeneratedName]; exists {
			continue
		}

		if offset, found := findUnqualifiedWildcard(v.Body); found {
			errs = append(errs, ViewError{Kind: ViewInvalidWildcard, View: v, Offset: offset})
			continue
		}

		createSQL := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s",
			pgx.Identifier{v.GeneratedName}.Sanitize(), v.Body)

		// Probe the definition inside a transaction that is always rolled
		// back. The rollback undoes the strict temporal catalog patch, not
		// the view: on success the definition is redone outside the
		// transaction so it persists.
		probeErr, err := m.probeViewCreate(ctx, createSQL, strict)
		if err != nil {
			return nil, err
		}
		if probeErr != nil {
			offset := 0
			if probeErr.Position > 0 {
				// Rebase the server position past the CREATE prefix so it
				// indexes into the view body.
				prefixLen := len(createSQL) - len(v.Body)
				offset = probeErr.Position - 1 - prefixLen
				if offset < 0 {
					offset = 0
				}
			}
			errs = append(errs, ViewError{Kind: ViewCreateError, View: v, PG: probeErr, Offset: offset})
			continue
		}

		if _, err := conn.Exec(ctx, createSQL); err != nil {
			return nil, fmt.Errorf("create view %s: %w", v.GeneratedName, err)
		}
		m.state.InstalledViews[v.GeneratedName] = struct{}{}
		m.logger.Debug("Created view",
			zap.String("view", v.GeneratedName),
			zap.String("source", v.Name.String()))
	}

	return errs, nil
}

// probeViewCreate runs the CREATE VIEW statement inside a rolled-back
// transaction, with the strict temporal patch applied when enabled. A
// database error is returned as a structured probe error; anything else
// propagates as fatal.
func (m *Manager) probeViewCreate(ctx context.Context, createSQL string, strict bool) (*database.PGError, error) {
	tx, err := m.BeginProbe(ctx, strict)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, createSQL); err != nil {
		pgErr, ok := database.ExtractPGError(err)
		if !ok {
			return nil, fmt.Errorf("probe view creation: %w", err)
		}
		return pgErr, nil
	}
	return nil, nil
}

// BeginProbe opens the transaction all probes for one batch run inside,
// applying the strict temporal catalog patch when enabled. The caller must
// roll the transaction back; the patch must never be committed.
func (m *Manager) BeginProbe(ctx context.Context, strict bool) (pgx.Tx, error) {
	tx, err := m.sandbox.Conn().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin probe transaction: %w", err)
	}
	if strict {
		if err := applyStrictTemporalPatch(ctx, tx); err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}
	}
	return tx, nil
}

// findUnqualifiedWildcard scans a view body for an unqualified `*`
// projection (after SELECT/DISTINCT/ALL, a DISTINCT ON (...) group, or a
// select-list comma). Qualified wildcards (`t.*`), multiplication, and
// `count(*)` are fine. Returns the byte offset of the offending `*`.
func findUnqualifiedWildcard(body string) (int, bool) {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	var lastSig byte    // last significant byte seen outside strings/comments
	var lastWord string // last completed identifier/keyword, lowercased
	var prevWord string // the identifier/keyword before lastWord, lowercased
	var word []byte     // identifier currently being accumulated
	onDepth := 0        // paren depth inside a DISTINCT ON (...) group

	isWordByte := func(b byte) bool {
		return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
	}
	flushWord := func() {
		if len(word) > 0 {
			prevWord = lastWord
			lastWord = strings.ToLower(string(word))
			word = word[:0]
		}
	}

	for i := 0; i < len(body); i++ {
		b := body[i]

		switch state {
		case stateSingleQuote:
			if b == '\'' {
				state = stateNormal
			}
			continue
		case stateDoubleQuote:
			if b == '"' {
				state = stateNormal
			}
			continue
		case stateLineComment:
			if b == '\n' {
				state = stateNormal
			}
			continue
		case stateBlockComment:
			if b == '*' && i+1 < len(body) && body[i+1] == '/' {
				state = stateNormal
				i++
			}
			continue
		}

		switch {
		case b == '\'':
			flushWord()
			state = stateSingleQuote
			lastSig = b
		case b == '"':
			flushWord()
			state = stateDoubleQuote
			lastSig = b
		case b == '-' && i+1 < len(body) && body[i+1] == '-':
			flushWord()
			state = stateLineComment
			i++
		case b == '/' && i+1 < len(body) && body[i+1] == '*':
			flushWord()
			state = stateBlockComment
			i++
		case b == '*':
			flushWord()
			switch {
			case lastSig == '.':
				// qualified wildcard
			case lastSig == ',' || lastSig == 0:
				return i, true
			case isWordByte(lastSig) && (lastWord == "select" || lastWord == "distinct" || lastWord == "all"):
				return i, true
			}
			lastSig = b
		case b == '(':
			flushWord()
			if onDepth > 0 {
				onDepth++
			} else if lastWord == "on" && prevWord == "distinct" {
				onDepth = 1
			}
			lastSig = b
		case b == ')':
			flushWord()
			if onDepth > 0 {
				onDepth--
				if onDepth == 0 {
					// The ON group closed; the select list starts here, so a
					// following `*` is as unqualified as one right after
					// SELECT.
					lastSig = 0
					lastWord = ""
					prevWord = ""
					continue
				}
			}
			lastSig = b
		case b == ' ' || b == '\t' || b == '\n' || b == '\r':
			flushWord()
		case isWordByte(b):
			word = append(word, b)
			lastSig = b
		default:
			flushWord()
			lastSig = b
		}
	}

	return 0, false
}
