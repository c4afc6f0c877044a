package sandbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// temporalTypeNames are the date/time types whose implicit mixing strict
// temporal typing forbids. The catalog patch below is driven by these names
// rather than hard-coded operator/cast OIDs, so it is independent of the
// server's catalog numbering; it has been verified against the PostgreSQL
// 14 through 16 catalogs.
var temporalTypeNames = []string{"date", "timestamp", "timestamptz", "time", "timetz"}

// applyStrictTemporalPatch narrows the sandbox's own operator and cast
// tables: cross-type comparison operators between temporal types are
// deleted, and implicit or assignment casts between them are downgraded to
// explicit-only. Queries that implicitly mix date/time/timestamp/timestamptz
// then fail loudly at describe time instead of silently truncating.
//
// Must run inside a transaction that is always rolled back; the patch must
// never escape the current probe.
func applyStrictTemporalPatch(ctx context.Context, tx pgx.Tx) error {
	const dropOperators = `
		DELETE FROM pg_operator o
		USING pg_type lt, pg_type rt
		WHERE o.oprleft = lt.oid
		  AND o.oprright = rt.oid
		  AND lt.typname <> rt.typname
		  AND lt.typname = ANY($1)
		  AND rt.typname = ANY($1)
	`
	if _, err := tx.Exec(ctx, dropOperators, temporalTypeNames); err != nil {
		return fmt.Errorf("delete implicit temporal operators: %w", err)
	}

	const downgradeCasts = `
		UPDATE pg_cast c
		SET castcontext = 'e'
		FROM pg_type s, pg_type t
		WHERE c.castsource = s.oid
		  AND c.casttarget = t.oid
		  AND s.typname <> t.typname
		  AND s.typname = ANY($1)
		  AND t.typname = ANY($1)
		  AND c.castcontext <> 'e'
	`
	if _, err := tx.Exec(ctx, downgradeCasts, temporalTypeNames); err != nil {
		return fmt.Errorf("downgrade implicit temporal casts: %w", err)
	}

	return nil
}
