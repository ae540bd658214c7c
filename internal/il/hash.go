package il

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// DomainStream separates stream fingerprints from any other hash the module
// computes. The version suffix allows changing the encoding later.
const DomainStream = "mpcompat/stream/v1"

// Fingerprint returns a stable hex digest of a stream's content.
// Format: SHA256(domain + 0x00 + encoding), where the encoding lists each
// instruction's mnemonic and NFC-normalized operand text separated by 0x1f
// and terminated by 0x1e.
func Fingerprint(stream []Instruction) string {
	h := sha256.New()
	h.Write([]byte(DomainStream))
	h.Write([]byte{0x00})
	for _, in := range stream {
		h.Write([]byte(in.Op.String()))
		h.Write([]byte{0x1f})
		h.Write([]byte(norm.NFC.String(in.Operand.String())))
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}
