package utils

import "math"

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// rawLimits returns the raw integer range representable in bitLen bits.
func rawLimits(bitLen int, signed bool) (int64, int64) {
	if signed {
		return -int64(1 << (bitLen - 1)), int64(1<<(bitLen-1)) - 1
	}
	return 0, int64(1<<bitLen) - 1
}

// saturateRaw clips raw to the representable range and reports whether
// clipping happened.
func saturateRaw(raw int64, bitLen int, signed bool) (int64, bool) {
	if bitLen <= 0 || bitLen > 63 {
		return raw, false
	}
	lo, hi := rawLimits(bitLen, signed)
	if raw < lo {
		return lo, true
	}
	if raw > hi {
		return hi, true
	}
	return raw, false
}

// toRaw converts a physical value to the unclamped raw integer.
func toRaw(sig *SignalDef, phys float64) int64 {
	return int64(math.Round((phys - sig.Offset) / sig.Factor))
}

// toPhys converts a raw integer back to a physical value.
func toPhys(sig *SignalDef, raw int64) float64 {
	return float64(raw)*sig.Factor + sig.Offset
}
