package resp

import (
	"fmt"
	"strconv"

	"github.com/nverba/redwire/pkg/common"
)

// ArgsEncoder is the encoder capability: turn a typed value into one or
// more byte-string wire arguments. IsSingleArg reports whether the value
// encodes to exactly one argument; higher layers use it to choose
// between singular and multi-key command variants (GET vs MGET).
type ArgsEncoder interface {
	EncodeArgs() [][]byte
	IsSingleArg() bool
}

// AppendArgs encodes v and appends the resulting arguments to dst. It
// covers the primitive and collection shapes commands are built from;
// anything else must implement ArgsEncoder.
func AppendArgs(dst [][]byte, v any) ([][]byte, error) {
	switch val := v.(type) {
	case ArgsEncoder:
		return append(dst, val.EncodeArgs()...), nil
	case []byte:
		return append(dst, val), nil
	case string:
		return append(dst, []byte(val)), nil
	case bool:
		if val {
			return append(dst, []byte("1")), nil
		}
		return append(dst, []byte("0")), nil
	case int:
		return append(dst, strconv.AppendInt(nil, int64(val), 10)), nil
	case int32:
		return append(dst, strconv.AppendInt(nil, int64(val), 10)), nil
	case int64:
		return append(dst, strconv.AppendInt(nil, val, 10)), nil
	case uint64:
		return append(dst, strconv.AppendUint(nil, val, 10)), nil
	case float32:
		return append(dst, strconv.AppendFloat(nil, float64(val), 'g', -1, 32)), nil
	case float64:
		return append(dst, strconv.AppendFloat(nil, val, 'g', -1, 64)), nil
	case []string:
		for _, s := range val {
			dst = append(dst, []byte(s))
		}
		return dst, nil
	case [][]byte:
		return append(dst, val...), nil
	case map[string]string:
		for k, item := range val {
			dst = append(dst, []byte(k), []byte(item))
		}
		return dst, nil
	case nil:
		return dst, nil
	default:
		return nil, common.NewErrorDetail(common.ClientError,
			"cannot encode value as command argument", fmt.Sprintf("%T", v))
	}
}

// IsSingleArg reports whether v encodes to exactly one wire argument.
func IsSingleArg(v any) bool {
	switch val := v.(type) {
	case ArgsEncoder:
		return val.IsSingleArg()
	case []string:
		return len(val) == 1
	case [][]byte:
		return len(val) == 1
	case map[string]string:
		return false
	case nil:
		return false
	default:
		return true
	}
}

func typeError(v Value, detail string) *common.RedisError {
	return common.NewErrorDetail(common.TypeError,
		"Response was of incompatible type",
		fmt.Sprintf("%s (response was %s)", detail, v.String()))
}

// ValueDecoder is the decoder capability: turn a received Value back
// into a typed result, failing with a type error on shape mismatch.
type ValueDecoder interface {
	DecodeValue(v Value) error
}

// AsInt64 decodes integer-shaped replies. Servers occasionally return
// numbers as strings, so those are accepted too.
func AsInt64(v Value) (int64, error) {
	switch v.Kind {
	case Int:
		return v.Int, nil
	case Status:
		n, err := strconv.ParseInt(v.Status, 10, 64)
		if err != nil {
			return 0, typeError(v, "Could not convert from string")
		}
		return n, nil
	case Data:
		n, err := strconv.ParseInt(string(v.Data), 10, 64)
		if err != nil {
			return 0, typeError(v, "Could not convert from string")
		}
		return n, nil
	default:
		return 0, typeError(v, "Response type not convertible to numeric")
	}
}

func AsFloat64(v Value) (float64, error) {
	switch v.Kind {
	case Int:
		return float64(v.Int), nil
	case Status:
		f, err := strconv.ParseFloat(v.Status, 64)
		if err != nil {
			return 0, typeError(v, "Could not convert from string")
		}
		return f, nil
	case Data:
		f, err := strconv.ParseFloat(string(v.Data), 64)
		if err != nil {
			return 0, typeError(v, "Could not convert from string")
		}
		return f, nil
	default:
		return 0, typeError(v, "Response type not convertible to numeric")
	}
}

func AsString(v Value) (string, error) {
	switch v.Kind {
	case Data:
		return string(v.Data), nil
	case Status:
		return v.Status, nil
	case Okay:
		return "OK", nil
	default:
		return "", typeError(v, "Response type not string compatible")
	}
}

func AsBool(v Value) (bool, error) {
	switch v.Kind {
	case Nil:
		return false, nil
	case Int:
		return v.Int != 0, nil
	case Okay:
		return true, nil
	case Status:
		switch v.Status {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
	case Data:
		switch string(v.Data) {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
	}
	return false, typeError(v, "Response type not bool compatible")
}

// AsStrings decodes a sequence reply into strings. Nil decodes to an
// empty slice.
func AsStrings(v Value) ([]string, error) {
	items, ok := v.AsSequence()
	if !ok {
		return nil, typeError(v, "Response type not vector compatible")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, err := AsString(item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// AsStringMap decodes a flat key/value reply into a map.
func AsStringMap(v Value) (map[string]string, error) {
	it, ok := v.AsMapIter()
	if !ok {
		return nil, typeError(v, "Response type not map compatible")
	}
	out := make(map[string]string)
	for {
		k, val, more := it.Next()
		if !more {
			break
		}
		key, err := AsString(k)
		if err != nil {
			return nil, err
		}
		value, err := AsString(val)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

// AsOkay decodes replies where only the "OK" status is acceptable.
func AsOkay(v Value) error {
	if v.Kind == Okay {
		return nil
	}
	return typeError(v, "Response was not OK")
}
