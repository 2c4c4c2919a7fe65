package permission

// Mask is a fixed 512-bit permission set.
type Mask [MaxBits / 64]uint64

// Has reports whether bit is set.
func (m *Mask) Has(bit int) bool {
	if bit < 0 || bit >= MaxBits {
		return false
	}
	return m[bit/64]&(1<<(bit%64)) != 0
}

// Set sets bit. Out-of-range bits are ignored.
func (m *Mask) Set(bit int) {
	if bit < 0 || bit >= MaxBits {
		return
	}
	m[bit/64] |= 1 << (bit % 64)
}

// Clear clears bit.
func (m *Mask) Clear(bit int) {
	if bit < 0 || bit >= MaxBits {
		return
	}
	m[bit/64] &^= 1 << (bit % 64)
}

// Covers reports whether every bit of other is also set in m.
func (m *Mask) Covers(other Mask) bool {
	for i := range m {
		if other[i]&^m[i] != 0 {
			return false
		}
	}
	return true
}
