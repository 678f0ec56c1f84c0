package canbus

import "testing"

func TestFilters(t *testing.T) {
	std := MustFrame(0x100, []byte{1})
	other := MustFrame(0x101, []byte{2})
	ext := Frame{ID: 0x1ABCDEFF, Extended: true}
	remote := std
	remote.RTR = true

	cases := []struct {
		name   string
		filter FrameFilter
		frame  Frame
		want   bool
	}{
		{"id match", ByID(0x100), std, true},
		{"id miss", ByID(0x100), other, false},
		{"mask match", ByMask(0x1ABCDE00, 0x1FFFFF00), ext, true},
		{"mask miss", ByMask(0x100, 0x7FF), other, false},
		{"extended", ExtendedOnly(), ext, true},
		{"standard rejected", ExtendedOnly(), std, false},
		{"data", DataOnly(), std, true},
		{"remote rejected", DataOnly(), remote, false},
		{"len", LenAtLeast(1), std, true},
		{"empty rejected", LenAtLeast(1), ext, false},
		{"and", And(ByID(0x100), DataOnly()), std, true},
		{"and short-circuit", And(ByID(0x100), DataOnly()), remote, false},
		{"and skips nil", And(nil, ByID(0x100)), std, true},
		{"and empty", And(), other, true},
	}
	for _, tc := range cases {
		if got := tc.filter(tc.frame); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
