// Package syncwire is the typed read/write contract state replication uses.
//
// A Worker is either writing or reading. Writer and reader must issue the
// same sequence of typed operations; there is no framing beyond the values
// themselves and no request/response.
package syncwire

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ErrWrongDirection is returned when a reading worker is asked to write or
// the reverse.
var ErrWrongDirection = errors.New("syncwire: wrong direction")

// Worker is the read/write contract.
type Worker interface {
	IsWriting() bool
	Write(v any) error
	Read(v any) error
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("syncwire: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Writer encodes values to a stream.
type Writer struct {
	enc *cbor.Encoder
	n   int
}

// NewWriter returns a writing worker over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: encMode.NewEncoder(w)}
}

func (w *Writer) IsWriting() bool { return true }

// Write encodes v as the next value of the stream.
func (w *Writer) Write(v any) error {
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("syncwire: write value %d: %w", w.n, err)
	}
	w.n++
	return nil
}

func (w *Writer) Read(any) error { return ErrWrongDirection }

// Reader decodes values from a stream.
type Reader struct {
	dec *cbor.Decoder
	n   int
}

// NewReader returns a reading worker over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

func (r *Reader) IsWriting() bool { return false }

func (r *Reader) Write(any) error { return ErrWrongDirection }

// Read decodes the next value of the stream into v, which must be a
// pointer.
func (r *Reader) Read(v any) error {
	if err := r.dec.Decode(v); err != nil {
		return fmt.Errorf("syncwire: read value %d: %w", r.n, err)
	}
	r.n++
	return nil
}

// Bind writes *v on a writing worker and reads into v on a reading one, so
// one function describes both directions.
func Bind[T any](w Worker, v *T) error {
	if w.IsWriting() {
		return w.Write(*v)
	}
	return w.Read(v)
}

// Marshal encodes one value canonically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes one value.
func Unmarshal(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("syncwire: unmarshal: %w", err)
	}
	return nil
}
