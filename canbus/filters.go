package canbus

// ByID matches a single identifier regardless of frame format.
func ByID(id uint32) FrameFilter {
	return func(f Frame) bool { return f.ID == id }
}

// ByMask matches frames whose identifier agrees with id on every bit set in
// mask, the way a hardware acceptance filter does.
func ByMask(id, mask uint32) FrameFilter {
	want := id & mask
	return func(f Frame) bool { return f.ID&mask == want }
}

// ExtendedOnly drops 11-bit frames.
func ExtendedOnly() FrameFilter {
	return func(f Frame) bool { return f.Extended }
}

// DataOnly drops remote frames.
func DataOnly() FrameFilter {
	return func(f Frame) bool { return !f.RTR }
}

// LenAtLeast drops frames shorter than n bytes.
func LenAtLeast(n uint8) FrameFilter {
	return func(f Frame) bool { return f.Len >= n }
}

// And matches when every non-nil filter matches. With no filters it matches
// everything.
func And(filters ...FrameFilter) FrameFilter {
	active := make([]FrameFilter, 0, len(filters))
	for _, ff := range filters {
		if ff != nil {
			active = append(active, ff)
		}
	}
	return func(f Frame) bool {
		for _, ff := range active {
			if !ff(f) {
				return false
			}
		}
		return true
	}
}
