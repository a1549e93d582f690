package resp

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nverba/redwire/pkg/common"
)

var logger = common.InitLogger().WithName("resp")

// Kind discriminates the Value union. Error frames never become a
// Value: the reader translates them into the error channel at parse
// time, so the union only holds the remaining reply shapes.
type Kind uint8

const (
	// Nil is a nil response from the server ($-1 or *-1).
	Nil Kind = iota
	// Int is an integer response.
	Int
	// Data is arbitrary binary data (a bulk string).
	Data
	// Bulk is a nested array of values.
	Bulk
	// Status is a simple-string response other than "OK".
	Status
	// Okay is the status response "OK".
	Okay
)

type Value struct {
	Kind   Kind
	Int    int64
	Data   []byte
	Bulk   []Value
	Status string
}

var (
	NilValue = Value{Kind: Nil}
	OkValue  = Value{Kind: Okay}
)

func IntValue(n int64) Value      { return Value{Kind: Int, Int: n} }
func DataValue(b []byte) Value    { return Value{Kind: Data, Data: b} }
func StringValue(s string) Value  { return Value{Kind: Data, Data: []byte(s)} }
func BulkValue(vs ...Value) Value { return Value{Kind: Bulk, Bulk: vs} }

func StatusValue(s string) Value {
	if s == "OK" {
		return OkValue
	}
	return Value{Kind: Status, Status: s}
}

// LooksLikeCursor checks whether the value fulfils the cursor protocol
// used by incremental scan replies: a bulk item of length two with a
// data cursor first and a bulk page second.
func (v Value) LooksLikeCursor() bool {
	if v.Kind != Bulk || len(v.Bulk) != 2 {
		return false
	}
	return v.Bulk[0].Kind == Data && v.Bulk[1].Kind == Bulk
}

// AsSequence returns a read-only view of the value as a sequence. Nil
// behaves as an empty sequence.
func (v Value) AsSequence() ([]Value, bool) {
	switch v.Kind {
	case Bulk:
		return v.Bulk, true
	case Nil:
		return nil, true
	default:
		return nil, false
	}
}

// MapIter pairs up adjacent elements of a bulk reply for map-shaped
// iteration. An odd trailing element with no partner is silently
// dropped.
type MapIter struct {
	items []Value
	pos   int
}

func (v Value) AsMapIter() (*MapIter, bool) {
	if v.Kind != Bulk {
		return nil, false
	}
	return &MapIter{items: v.Bulk}, true
}

func (it *MapIter) Next() (Value, Value, bool) {
	if it.pos+1 >= len(it.items) {
		return Value{}, Value{}, false
	}
	k, val := it.items[it.pos], it.items[it.pos+1]
	it.pos += 2
	return k, val, true
}

// Equal compares two values structurally.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case Int:
		return v.Int == other.Int
	case Data:
		return string(v.Data) == string(other.Data)
	case Status:
		return v.Status == other.Status
	case Bulk:
		if len(v.Bulk) != len(other.Bulk) {
			return false
		}
		for i := range v.Bulk {
			if !v.Bulk[i].Equal(other.Bulk[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String returns a debug representation of the value.
func (v Value) String() string {
	switch v.Kind {
	case Nil:
		return "(nil)"
	case Int:
		return fmt.Sprintf("Integer: %d", v.Int)
	case Data:
		if utf8.Valid(v.Data) {
			return fmt.Sprintf("String: %q", string(v.Data))
		}
		return fmt.Sprintf("Binary: %v", v.Data)
	case Status:
		return fmt.Sprintf("Status: %q", v.Status)
	case Okay:
		return "OK"
	case Bulk:
		if len(v.Bulk) == 0 {
			return "Bulk: (empty)"
		}
		var b strings.Builder
		b.WriteString("Bulk:\n")
		for i, elem := range v.Bulk {
			elemStr := elem.String()
			lines := strings.Split(elemStr, "\n")
			b.WriteString(fmt.Sprintf("  %d) %s\n", i+1, lines[0]))
			for _, line := range lines[1:] {
				b.WriteString(fmt.Sprintf("     %s\n", line))
			}
		}
		return strings.TrimRight(b.String(), "\n")
	default:
		return fmt.Sprintf("(unknown kind: %d)", v.Kind)
	}
}
