package message

// Array helpers: each writes a varuint element count followed by the
// elements themselves, so readers never need to know the length out of
// band. Byte arrays have their own dedicated path in AddBytes.

// AddBoolArray writes a varuint count followed by one bit per element.
func (m *Message) AddBoolArray(values []bool) error {
	if err := m.AddVarUint(uint64(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := m.AddBool(v); err != nil {
			return err
		}
	}
	return nil
}

// GetBoolArray reads an array written by AddBoolArray.
func (m *Message) GetBoolArray() []bool {
	out := make([]bool, m.GetVarUint())
	for i := range out {
		out[i] = m.GetBool()
	}
	return out
}

// AddUInt16Array writes a varuint count followed by the elements.
func (m *Message) AddUInt16Array(values []uint16) error {
	if err := m.AddVarUint(uint64(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := m.AddUInt16(v); err != nil {
			return err
		}
	}
	return nil
}

// GetUInt16Array reads an array written by AddUInt16Array.
func (m *Message) GetUInt16Array() []uint16 {
	out := make([]uint16, m.GetVarUint())
	for i := range out {
		out[i] = m.GetUInt16()
	}
	return out
}

// AddInt16Array writes a varuint count followed by the elements.
func (m *Message) AddInt16Array(values []int16) error {
	if err := m.AddVarUint(uint64(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := m.AddInt16(v); err != nil {
			return err
		}
	}
	return nil
}

// GetInt16Array reads an array written by AddInt16Array.
func (m *Message) GetInt16Array() []int16 {
	out := make([]int16, m.GetVarUint())
	for i := range out {
		out[i] = m.GetInt16()
	}
	return out
}

// AddUInt32Array writes a varuint count followed by the elements.
func (m *Message) AddUInt32Array(values []uint32) error {
	if err := m.AddVarUint(uint64(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := m.AddUInt32(v); err != nil {
			return err
		}
	}
	return nil
}

// GetUInt32Array reads an array written by AddUInt32Array.
func (m *Message) GetUInt32Array() []uint32 {
	out := make([]uint32, m.GetVarUint())
	for i := range out {
		out[i] = m.GetUInt32()
	}
	return out
}

// AddInt32Array writes a varuint count followed by the elements.
func (m *Message) AddInt32Array(values []int32) error {
	if err := m.AddVarUint(uint64(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := m.AddInt32(v); err != nil {
			return err
		}
	}
	return nil
}

// GetInt32Array reads an array written by AddInt32Array.
func (m *Message) GetInt32Array() []int32 {
	out := make([]int32, m.GetVarUint())
	for i := range out {
		out[i] = m.GetInt32()
	}
	return out
}

// AddUInt64Array writes a varuint count followed by the elements.
func (m *Message) AddUInt64Array(values []uint64) error {
	if err := m.AddVarUint(uint64(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := m.AddUInt64(v); err != nil {
			return err
		}
	}
	return nil
}

// GetUInt64Array reads an array written by AddUInt64Array.
func (m *Message) GetUInt64Array() []uint64 {
	out := make([]uint64, m.GetVarUint())
	for i := range out {
		out[i] = m.GetUInt64()
	}
	return out
}

// AddInt64Array writes a varuint count followed by the elements.
func (m *Message) AddInt64Array(values []int64) error {
	if err := m.AddVarUint(uint64(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := m.AddInt64(v); err != nil {
			return err
		}
	}
	return nil
}

// GetInt64Array reads an array written by AddInt64Array.
func (m *Message) GetInt64Array() []int64 {
	out := make([]int64, m.GetVarUint())
	for i := range out {
		out[i] = m.GetInt64()
	}
	return out
}

// AddFloat32Array writes a varuint count followed by the elements.
func (m *Message) AddFloat32Array(values []float32) error {
	if err := m.AddVarUint(uint64(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := m.AddFloat32(v); err != nil {
			return err
		}
	}
	return nil
}

// GetFloat32Array reads an array written by AddFloat32Array.
func (m *Message) GetFloat32Array() []float32 {
	out := make([]float32, m.GetVarUint())
	for i := range out {
		out[i] = m.GetFloat32()
	}
	return out
}

// AddFloat64Array writes a varuint count followed by the elements.
func (m *Message) AddFloat64Array(values []float64) error {
	if err := m.AddVarUint(uint64(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := m.AddFloat64(v); err != nil {
			return err
		}
	}
	return nil
}

// GetFloat64Array reads an array written by AddFloat64Array.
func (m *Message) GetFloat64Array() []float64 {
	out := make([]float64, m.GetVarUint())
	for i := range out {
		out[i] = m.GetFloat64()
	}
	return out
}

// AddStringArray writes a varuint count followed by the elements.
func (m *Message) AddStringArray(values []string) error {
	if err := m.AddVarUint(uint64(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := m.AddString(v); err != nil {
			return err
		}
	}
	return nil
}

// GetStringArray reads an array written by AddStringArray.
func (m *Message) GetStringArray() []string {
	out := make([]string, m.GetVarUint())
	for i := range out {
		out[i] = m.GetString()
	}
	return out
}
