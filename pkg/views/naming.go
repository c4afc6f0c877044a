package views

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// viewNamePrefix marks sandbox views created by this engine so the schema
// manager can tell them apart from migration-defined views.
const viewNamePrefix = "pgvet_v_"

// generatedNameHashLen is the number of hex digits of the content hash kept
// in a generated view name. 32 digits (128 bits) keeps the full name well
// under PostgreSQL's 63-byte identifier limit.
const generatedNameHashLen = 32

// maxVarNameLen bounds the readable variable-name segment so the full view
// name never exceeds the 63-byte identifier limit.
const maxVarNameLen = 20

// GeneratedViewName derives the sandbox view name from the host variable the
// fragment was bound to and the fully-substituted view body. The name is a
// pure function of the fragment: identical fragments always yield the
// identical name, so a view-existence check doubles as an equivalence check,
// and any edit to the body produces a brand-new name. The sanitized variable
// name is only there to keep pg_views legible; identity comes from the hash.
func GeneratedViewName(varName, body string) string {
	prefix := viewNamePrefix
	if varName != "" {
		v := SanitizeIdentifier(varName)
		if len(v) > maxVarNameLen {
			v = v[:maxVarNameLen]
		}
		prefix += v + "_"
	}
	sum := sha256.Sum256([]byte(body))
	return prefix + hex.EncodeToString(sum[:])[:generatedNameHashLen]
}

// IsGeneratedViewName reports whether name was produced by GeneratedViewName.
func IsGeneratedViewName(name string) bool {
	return strings.HasPrefix(name, viewNamePrefix)
}

// SanitizeIdentifier lowercases s and replaces every byte that is not a
// letter, digit, or underscore with an underscore, yielding a safe
// unquoted PostgreSQL identifier fragment.
func SanitizeIdentifier(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		return "_"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
