package il

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintStable(t *testing.T) {
	a := []Instruction{LdStr("x"), Pop(), Ret()}
	b := []Instruction{LdStr("x"), Pop(), Ret()}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Len(t, Fingerprint(a), 64)
}

func TestFingerprintDistinguishesStreams(t *testing.T) {
	a := []Instruction{LdcI4(1), Pop()}
	b := []Instruction{LdcI4(2), Pop()}
	c := []Instruction{LdcI4(1)}

	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestFingerprintNormalizesStrings(t *testing.T) {
	composed := []Instruction{LdStr("caf\u00e9")}
	decomposed := []Instruction{LdStr("cafe\u0301")}

	assert.Equal(t, Fingerprint(composed), Fingerprint(decomposed))
}
