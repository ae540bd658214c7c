package game

import (
	"errors"
	"fmt"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// ErrArgumentOutOfRange is returned by native bodies for invalid ranges.
var ErrArgumentOutOfRange = errors.New("argument out of range")

func badArg(c *host.Call, i int, want string) error {
	return &host.RuntimeError{
		Code:    host.ErrCodeBadOperand,
		Message: fmt.Sprintf("argument %d: want %s, got %T", i, want, c.Arg(i)),
		Method:  c.Method.Descriptor(),
	}
}

// IntArg reads argument i as an int.
func IntArg(c *host.Call, i int) (int, error) {
	switch v := c.Arg(i).(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	}
	return 0, badArg(c, i, "int")
}

// FloatArg reads argument i as a float. Ints widen.
func FloatArg(c *host.Call, i int) (float64, error) {
	switch v := c.Arg(i).(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	}
	return 0, badArg(c, i, "float")
}

// BytesArg reads argument i as a byte buffer. A nil buffer is a null
// reference.
func BytesArg(c *host.Call, i int) ([]byte, error) {
	switch v := c.Arg(i).(type) {
	case []byte:
		if v == nil {
			break
		}
		return v, nil
	case nil:
	default:
		return nil, badArg(c, i, "byte[]")
	}
	return nil, &host.RuntimeError{
		Code:    host.ErrCodeNullReference,
		Message: fmt.Sprintf("argument %d is null", i),
		Method:  c.Method.Descriptor(),
	}
}

// ObjectArg reads argument i as an object. nil is allowed.
func ObjectArg(c *host.Call, i int) (*host.Object, error) {
	switch v := c.Arg(i).(type) {
	case *host.Object:
		return v, nil
	case nil:
		return nil, nil
	}
	return nil, badArg(c, i, "object")
}

func nullReceiver(c *host.Call) error {
	return &host.RuntimeError{
		Code:    host.ErrCodeNullReference,
		Message: "receiver is null",
		Method:  c.Method.Descriptor(),
	}
}

// objectField reads an object-typed field, failing on a null owner. An
// unset field reads as an untyped nil.
func objectField(c *host.Call, owner *host.Object, f *il.Field) (any, error) {
	if owner == nil {
		return nil, &host.RuntimeError{
			Code:    host.ErrCodeNullReference,
			Message: "null reference reading " + f.Descriptor(),
			Method:  c.Method.Descriptor(),
		}
	}
	v, ok := owner.Get(f).(*host.Object)
	if !ok || v == nil {
		return nil, nil
	}
	return v, nil
}
