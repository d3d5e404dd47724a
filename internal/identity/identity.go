// Package identity derives stable, content-addressed symbol identifiers.
package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"regexp"
	"strings"
)

// uidPrefix versions the identifier scheme so a future change cannot collide with old ids
const uidPrefix = "sym1_"

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeSignature canonicalises a signature string: runs of whitespace collapse to
// a single space and the ends are trimmed. Anything else, including case and
// punctuation, is significant.
func NormalizeSignature(signature string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(signature, " "))
}

// ComputeSignatureHash returns the hex SHA-256 of the canonical signature
func ComputeSignatureHash(signature string) string {
	sum := sha256.Sum256([]byte(NormalizeSignature(signature)))
	return hex.EncodeToString(sum[:])
}

// MakeSymbolUID derives the symbol identifier from language, qualified name and
// signature hash. Fields are length-prefixed before hashing so that no two
// distinct triples share an encoding.
func MakeSymbolUID(language, qualifiedName, signatureHash string) string {
	h := sha256.New()
	for _, part := range []string{language, qualifiedName, signatureHash} {
		writeField(h, part)
	}
	return uidPrefix + hex.EncodeToString(h.Sum(nil))[:40]
}

func writeField(h hash.Hash, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}
