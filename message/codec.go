package message

import "math"

// AddVarUint writes value using a LEB128-style varuint encoding: 7 bits of
// payload per byte, high bit set on every byte but the last. Small values
// (the overwhelming majority of sequence IDs, lengths, and message IDs)
// cost a single byte instead of a fixed 4 or 8.
func (m *Message) AddVarUint(value uint64) error {
	for {
		b := uint64(value & 0x7f)
		value >>= 7
		if value != 0 {
			b |= 0x80
		}
		if err := m.AddBits(b, 8); err != nil {
			return err
		}
		if value == 0 {
			return nil
		}
	}
}

// GetVarUint reads a varuint written by AddVarUint.
func (m *Message) GetVarUint() uint64 {
	var result uint64
	var shift uint
	for {
		b := m.GetBits(8)
		result |= (b & 0x7f) << shift
		if b&0x80 == 0 {
			return result
		}
		shift += 7
		if shift >= 64 {
			return result
		}
	}
}

// AddVarInt zigzag-encodes value so small-magnitude negatives cost as
// little as small-magnitude positives, then writes it as a varuint.
func (m *Message) AddVarInt(value int64) error {
	u := uint64((value << 1) ^ (value >> 63))
	return m.AddVarUint(u)
}

// GetVarInt reverses AddVarInt's zigzag encoding.
func (m *Message) GetVarInt() int64 {
	u := m.GetVarUint()
	return int64(u>>1) ^ -int64(u&1)
}

// AddBool writes a single bit.
func (m *Message) AddBool(value bool) error {
	v := uint64(0)
	if value {
		v = 1
	}
	return m.AddBits(v, 1)
}

// GetBool reads a single bit.
func (m *Message) GetBool() bool {
	return m.GetBits(1) != 0
}

// AddUInt8 writes a fixed-width unsigned byte.
func (m *Message) AddUInt8(value uint8) error { return m.AddBits(uint64(value), 8) }

// GetUInt8 reads a fixed-width unsigned byte.
func (m *Message) GetUInt8() uint8 { return uint8(m.GetBits(8)) }

// AddInt8 writes a fixed-width signed byte.
func (m *Message) AddInt8(value int8) error { return m.AddBits(uint64(uint8(value)), 8) }

// GetInt8 reads a fixed-width signed byte.
func (m *Message) GetInt8() int8 { return int8(m.GetBits(8)) }

// AddUInt16 writes a fixed-width unsigned 16-bit value.
func (m *Message) AddUInt16(value uint16) error { return m.AddBits(uint64(value), 16) }

// GetUInt16 reads a fixed-width unsigned 16-bit value.
func (m *Message) GetUInt16() uint16 { return uint16(m.GetBits(16)) }

// AddInt16 writes a fixed-width signed 16-bit value.
func (m *Message) AddInt16(value int16) error { return m.AddBits(uint64(uint16(value)), 16) }

// GetInt16 reads a fixed-width signed 16-bit value.
func (m *Message) GetInt16() int16 { return int16(m.GetBits(16)) }

// AddUInt32 writes a fixed-width unsigned 32-bit value.
func (m *Message) AddUInt32(value uint32) error { return m.AddBits(uint64(value), 32) }

// GetUInt32 reads a fixed-width unsigned 32-bit value.
func (m *Message) GetUInt32() uint32 { return uint32(m.GetBits(32)) }

// AddInt32 writes a fixed-width signed 32-bit value.
func (m *Message) AddInt32(value int32) error { return m.AddBits(uint64(uint32(value)), 32) }

// GetInt32 reads a fixed-width signed 32-bit value.
func (m *Message) GetInt32() int32 { return int32(m.GetBits(32)) }

// AddUInt64 writes a fixed-width unsigned 64-bit value.
func (m *Message) AddUInt64(value uint64) error { return m.AddBits(value, 64) }

// GetUInt64 reads a fixed-width unsigned 64-bit value.
func (m *Message) GetUInt64() uint64 { return m.GetBits(64) }

// AddInt64 writes a fixed-width signed 64-bit value.
func (m *Message) AddInt64(value int64) error { return m.AddBits(uint64(value), 64) }

// GetInt64 reads a fixed-width signed 64-bit value.
func (m *Message) GetInt64() int64 { return int64(m.GetBits(64)) }

// AddFloat32 writes an IEEE-754 single-precision float in its raw bit
// representation.
func (m *Message) AddFloat32(value float32) error {
	return m.AddBits(uint64(math.Float32bits(value)), 32)
}

// GetFloat32 reads an IEEE-754 single-precision float.
func (m *Message) GetFloat32() float32 {
	return math.Float32frombits(uint32(m.GetBits(32)))
}

// AddFloat64 writes an IEEE-754 double-precision float in its raw bit
// representation.
func (m *Message) AddFloat64(value float64) error {
	return m.AddBits(math.Float64bits(value), 64)
}

// GetFloat64 reads an IEEE-754 double-precision float.
func (m *Message) GetFloat64() float64 {
	return math.Float64frombits(m.GetBits(64))
}

// AddBytes writes a varuint length prefix followed by the raw bytes.
func (m *Message) AddBytes(value []byte) error {
	if err := m.AddVarUint(uint64(len(value))); err != nil {
		return err
	}
	for _, b := range value {
		if err := m.AddUInt8(b); err != nil {
			return err
		}
	}
	return nil
}

// GetBytes reads a varuint-length-prefixed byte slice written by AddBytes.
func (m *Message) GetBytes() []byte {
	n := m.GetVarUint()
	out := make([]byte, n)
	for i := range out {
		out[i] = m.GetUInt8()
	}
	return out
}

// AddString writes a varuint-length-prefixed UTF-8 string.
func (m *Message) AddString(value string) error {
	return m.AddBytes([]byte(value))
}

// GetString reads a varuint-length-prefixed UTF-8 string.
func (m *Message) GetString() string {
	return string(m.GetBytes())
}
