package validate

import (
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/pgvet-io/pgvet-engine/pkg/models"
)

// Cache memoizes validation outcomes per statement signature within one
// schema generation. A run builds a fresh cache from hits against the old
// one and swaps it in only after the run completes, so entries for
// statements that disappeared from the manifest age out naturally.
type Cache struct {
	entries map[string]Outcome
}

// NewCache returns an empty outcome cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Outcome)}
}

// Get looks up a previously classified outcome by signature.
func (c *Cache) Get(sig string) (Outcome, bool) {
	o, ok := c.entries[sig]
	return o, ok
}

// Set records an outcome under its signature.
func (c *Cache) Set(sig string, o Outcome) {
	c.entries[sig] = o
}

// Len reports the number of cached outcomes.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Clear drops every entry. Called after a schema reset, since outcomes are
// only valid for the schema generation that produced them.
func (c *Cache) Clear() {
	c.entries = make(map[string]Outcome)
}

func signature(parts ...string) string {
	h := murmur3.New128()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	hi, lo := h.Sum128()
	return fmt.Sprintf("%016x%016x", hi, lo)
}

// QuerySignature derives the cache key for a resolved query from its text
// and expected shape. Two occurrences with identical text and expectation
// share one probe.
func QuerySignature(q *models.ResolvedQuery) string {
	return signature(q.Text, q.Expected.CanonicalString())
}

// InsertSignature derives the cache key for a resolved insert, additionally
// covering the target table and the supplied column declarations that the
// cross-check depends on.
func InsertSignature(ins *models.ResolvedInsert) string {
	return signature(
		ins.Text,
		ins.Expected.CanonicalString(),
		ins.TableName,
		ins.SuppliedColumns.CanonicalString(),
	)
}
