package concept

import (
	"crypto/sha256"
	"strings"
)

// Normalize trims leading/trailing whitespace from content before id
// derivation. Case is preserved: "Cats" and "cats" are distinct concepts.
func Normalize(content string) string {
	return strings.TrimSpace(content)
}

// DeriveID computes the deterministic concept id over (tenant, normalized
// content): the same content in the same tenant always yields the same id.
func DeriveID(tenant Tenant, content string) ID {
	normalized := Normalize(content)
	h := sha256.New()
	h.Write(tenant[:])
	h.Write([]byte(normalized))
	sum := h.Sum(nil)
	var id ID
	copy(id[:], sum[:16])
	return id
}
