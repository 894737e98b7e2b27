package protocol

import "io"

// AppendVarint appends v to dst as an unsigned varint: 7 value bits per byte,
// least significant group first, high bit set on every byte but the last.
func AppendVarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// VarintLen returns the number of bytes AppendVarint writes for v.
func VarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// ReadVarint decodes one unsigned varint from r, consuming exactly its bytes.
//
// The full 64-bit value is returned. A varint that does not fit in 64 bits
// is a DecodeError.
func ReadVarint(r io.ByteReader) (uint64, error) {
	var v uint64
	var shift uint

	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, readError(err)
		}

		// Only bit 0 of the tenth byte fits in a uint64.
		if shift == 63 && b&0x7f > 1 {
			return 0, &DecodeError{Message: "varint overflows 64 bits"}
		}

		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}

		shift += 7
		if shift >= 64 {
			return 0, &DecodeError{Message: "varint overflows 64 bits"}
		}
	}
}

// ReadVarintLength decodes a varint length prefix and rejects values above
// MaxVInt.
func ReadVarintLength(r io.ByteReader) (int, error) {
	v, err := ReadVarint(r)
	if err != nil {
		return 0, err
	}
	if v > MaxVInt {
		return 0, &DecodeError{Message: "length prefix exceeds 32 bits"}
	}
	return int(v), nil
}
