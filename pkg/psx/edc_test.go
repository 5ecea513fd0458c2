// Package psx provides tests for the sector error detection code
package psx

import "testing"

// referenceEDC is a bit-by-bit implementation of the CRC used as an
// independent check against the table-driven one.
func referenceEDC(data []byte) uint32 {
	var edc uint32
	for _, b := range data {
		edc ^= uint32(b)
		for bit := 0; bit < 8; bit++ {
			if edc&1 != 0 {
				edc = (edc >> 1) ^ 0xD8018001
			} else {
				edc >>= 1
			}
		}
	}
	return edc
}

func TestEDC_ZeroData(t *testing.T) {
	data := make([]byte, 2056)
	if edc := EDC(data); edc != 0 {
		t.Errorf("EDC of all-zero data = 0x%08X, want 0", edc)
	}
}

func TestEDC_MatchesReference(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"single byte", []byte{0x42}},
		{"subheader pattern", []byte{0, 0, 0x08, 0, 0, 0, 0x08, 0}},
		{"counting", func() []byte {
			data := make([]byte, 2336)
			for i := range data {
				data[i] = byte(i * 7)
			}
			return data
		}()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := EDC(tc.data)
			want := referenceEDC(tc.data)
			if got != want {
				t.Errorf("EDC() = 0x%08X, reference = 0x%08X", got, want)
			}
		})
	}
}
