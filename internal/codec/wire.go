package codec

import (
	"math"
	"strconv"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded tag/value pair. Varint and fixed values share v.
type field struct {
	num protowire.Number
	typ protowire.Type
	v   uint64
	b   []byte
}

// walk visits every field of a protobuf-encoded message in order.
func walk(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return &DecodeError{Field: "tag", Err: protowire.ParseError(n)}
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.v, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			var v32 uint32
			v32, n = protowire.ConsumeFixed32(b)
			f.v = uint64(v32)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			return malformed(fieldName(num), "unsupported wire type %d", typ)
		}
		if n < 0 {
			return &DecodeError{Field: fieldName(num), Err: protowire.ParseError(n)}
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func fieldName(num protowire.Number) string {
	return "field " + strconv.Itoa(int(num))
}

func (f field) varint(name string) (uint64, error) {
	if f.typ != protowire.VarintType {
		return 0, malformed(name, "wire type %d, want varint", f.typ)
	}
	return f.v, nil
}

func (f field) u32(name string) (uint32, error) {
	v, err := f.varint(name)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, malformed(name, "value %d overflows uint32", v)
	}
	return uint32(v), nil
}

func (f field) i64(name string) (int64, error) {
	v, err := f.varint(name)
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt64 {
		return 0, malformed(name, "value %d overflows int64", v)
	}
	return int64(v), nil
}

func (f field) boolean(name string) (bool, error) {
	v, err := f.varint(name)
	if err != nil {
		return false, err
	}
	return protowire.DecodeBool(v), nil
}

func (f field) double(name string) (float64, error) {
	if f.typ != protowire.Fixed64Type {
		return 0, malformed(name, "wire type %d, want fixed64", f.typ)
	}
	return math.Float64frombits(f.v), nil
}

func (f field) bytes(name string) ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, malformed(name, "wire type %d, want length-delimited", f.typ)
	}
	return f.b, nil
}

func (f field) str(name string) (string, error) {
	b, err := f.bytes(name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// fixed64s accepts both packed and unpacked repeated fixed64.
func (f field) fixed64s(name string, dst []uint64) ([]uint64, error) {
	switch f.typ {
	case protowire.Fixed64Type:
		return append(dst, f.v), nil
	case protowire.BytesType:
		if len(f.b)%8 != 0 {
			return nil, malformed(name, "packed length %d is not a multiple of 8", len(f.b))
		}
		b := f.b
		for len(b) > 0 {
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, &DecodeError{Field: name, Err: protowire.ParseError(n)}
			}
			dst = append(dst, v)
			b = b[n:]
		}
		return dst, nil
	default:
		return nil, malformed(name, "wire type %d, want fixed64", f.typ)
	}
}

// Encoders omit zero scalars the way proto3 does; messages are always written
// so that presence survives.

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendPackedFixed64(b []byte, num protowire.Number, words []uint64) []byte {
	if len(words) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(len(words)*8))
	for _, w := range words {
		b = protowire.AppendFixed64(b, w)
	}
	return b
}
