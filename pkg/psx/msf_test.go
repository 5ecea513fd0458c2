// Package psx provides tests for MSF addressing helpers
package psx

import "testing"

func TestToBCD(t *testing.T) {
	testCases := []struct {
		name     string
		value    int
		expected byte
	}{
		{"zero", 0, 0x00},
		{"single digit", 9, 0x09},
		{"two digits", 42, 0x42},
		{"max frame", 74, 0x74},
		{"max seconds", 59, 0x59},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if result := ToBCD(tc.value); result != tc.expected {
				t.Errorf("ToBCD(%d) = 0x%02X, want 0x%02X", tc.value, result, tc.expected)
			}
			if back := FromBCD(tc.expected); back != tc.value {
				t.Errorf("FromBCD(0x%02X) = %d, want %d", tc.expected, back, tc.value)
			}
		})
	}
}

func TestLSNToMSF(t *testing.T) {
	testCases := []struct {
		name    string
		lsn     uint32
		minute  int
		second  int
		frame   int
	}{
		{"start of disc", 0, 0, 0, 0},
		{"one second", 75, 0, 1, 0},
		{"one minute", 4500, 1, 0, 0},
		{"mixed", 4726, 1, 3, 1},
		{"end of 74 minutes", 332999, 73, 59, 74},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, s, f := LSNToMSF(tc.lsn)
			if m != tc.minute || s != tc.second || f != tc.frame {
				t.Errorf("LSNToMSF(%d) = %d:%d:%d, want %d:%d:%d",
					tc.lsn, m, s, f, tc.minute, tc.second, tc.frame)
			}
		})
	}
}

func TestMSFString(t *testing.T) {
	testCases := []struct {
		lsn      uint32
		expected string
	}{
		{0, "00:00:00"},
		{75, "00:01:00"},
		{4500, "01:00:00"},
		{4726, "01:03:01"},
	}

	for _, tc := range testCases {
		if result := MSFString(tc.lsn); result != tc.expected {
			t.Errorf("MSFString(%d) = %q, want %q", tc.lsn, result, tc.expected)
		}
	}
}

// The raw sector header carries the MSF of LSN+150 in BCD, the standard
// two-second pregap convention.
func TestHeaderMSF(t *testing.T) {
	testCases := []struct {
		name     string
		lsn      uint32
		expected [3]byte
	}{
		{"first sector", 0, [3]byte{0x00, 0x02, 0x00}},
		{"PVD sector", 19, [3]byte{0x00, 0x02, 0x19}},
		{"root directory", 25, [3]byte{0x00, 0x02, 0x25}},
		{"one minute in", 4350, [3]byte{0x01, 0x00, 0x00}},
		{"large address", 336149, [3]byte{0x74, 0x43, 0x74}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if result := HeaderMSF(tc.lsn); result != tc.expected {
				t.Errorf("HeaderMSF(%d) = %02X:%02X:%02X, want %02X:%02X:%02X",
					tc.lsn, result[0], result[1], result[2],
					tc.expected[0], tc.expected[1], tc.expected[2])
			}
		})
	}
}
