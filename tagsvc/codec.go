package tagsvc

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/atharvakhole/modgate/catalog"
	"github.com/atharvakhole/modgate/gwerr"
)

// decode interprets words as dataType, both byte and word order
// big-endian (network order, high word first), matching the wire
// interface every Modbus register read produces.
func decode(dataType catalog.DataType, words []uint16) (any, error) {
	if len(words) != dataType.WordCount() {
		return nil, gwerr.New(gwerr.Encoding,
			fmt.Sprintf("decode %s: expected %d words, got %d", dataType, dataType.WordCount(), len(words)))
	}

	raw := wordsToBytes(words)

	switch dataType {
	case catalog.Uint16:
		return binary.BigEndian.Uint16(raw), nil
	case catalog.Int16:
		return int16(binary.BigEndian.Uint16(raw)), nil
	case catalog.Uint32:
		return binary.BigEndian.Uint32(raw), nil
	case catalog.Int32:
		return int32(binary.BigEndian.Uint32(raw)), nil
	case catalog.Uint64:
		return binary.BigEndian.Uint64(raw), nil
	case catalog.Int64:
		return int64(binary.BigEndian.Uint64(raw)), nil
	case catalog.Float32:
		return math.Float32frombits(binary.BigEndian.Uint32(raw)), nil
	case catalog.Float64:
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
	default:
		return nil, gwerr.New(gwerr.Encoding, fmt.Sprintf("unsupported data type %q", dataType))
	}
}

// encode is decode's inverse: it renders a numeric value as the words
// a write operation carries on the wire.
func encode(dataType catalog.DataType, value float64) ([]uint16, error) {
	raw := make([]byte, dataType.WordCount()*2)

	switch dataType {
	case catalog.Uint16:
		binary.BigEndian.PutUint16(raw, uint16(value))
	case catalog.Int16:
		binary.BigEndian.PutUint16(raw, uint16(int16(value)))
	case catalog.Uint32:
		binary.BigEndian.PutUint32(raw, uint32(value))
	case catalog.Int32:
		binary.BigEndian.PutUint32(raw, uint32(int32(value)))
	case catalog.Uint64:
		binary.BigEndian.PutUint64(raw, uint64(value))
	case catalog.Int64:
		binary.BigEndian.PutUint64(raw, uint64(int64(value)))
	case catalog.Float32:
		binary.BigEndian.PutUint32(raw, math.Float32bits(float32(value)))
	case catalog.Float64:
		binary.BigEndian.PutUint64(raw, math.Float64bits(value))
	default:
		return nil, gwerr.New(gwerr.Encoding, fmt.Sprintf("unsupported data type %q", dataType))
	}

	return bytesToWords(raw), nil
}

func wordsToBytes(words []uint16) []byte {
	b := make([]byte, len(words)*2)
	for i, w := range words {
		binary.BigEndian.PutUint16(b[i*2:], w)
	}
	return b
}

func bytesToWords(b []byte) []uint16 {
	words := make([]uint16, len(b)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(b[i*2:])
	}
	return words
}

// toFloat64 coerces a decoded or caller-supplied value into a float64
// for numeric comparison and validation, mirroring the permissive
// coercion the procedure condition grammar also relies on.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
