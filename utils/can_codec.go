package utils

import (
	"math"

	"go.einride.tech/can"
)

// ClampInfo records a value that could not be sent as requested: either it was
// outside the signal's physical range or it overflowed the declared bit width.
type ClampInfo struct {
	Requested float64
	Sent      float64
	Overflow  bool // true when the raw integer saturated at the bit-width limit
}

// EncodeFrame packs one catalog frame from physical values. Signals missing
// from values fall back to their catalog default. Out-of-range and
// bit-overflow values are saturated, never rejected: the bench keeps
// broadcasting. Returns the wire frame, the physical values actually encoded,
// and per-signal clamp records.
func (c *Catalog) EncodeFrame(fd *FrameDef, values map[string]float64) (can.Frame, map[string]float64, map[string]ClampInfo) {
	var data can.Data
	used := make(map[string]float64, len(fd.Signals))
	clamped := map[string]ClampInfo{}

	for i := range fd.Signals {
		sig := &fd.Signals[i]
		requested, ok := values[sig.Name]
		if !ok {
			requested = sig.Default
		}

		phys := requested
		if !isFinite(phys) {
			phys = sig.Default
		}
		phys = clamp(phys, sig.Min, sig.Max)

		raw, overflow := saturateRaw(toRaw(sig, phys), sig.BitLength, sig.Signed)
		sent := toPhys(sig, raw)

		if sig.BigEndian() {
			if sig.Signed {
				data.SetSignedBitsBigEndian(uint8(sig.StartBit), uint8(sig.BitLength), raw)
			} else {
				data.SetUnsignedBitsBigEndian(uint8(sig.StartBit), uint8(sig.BitLength), uint64(raw))
			}
		} else {
			if sig.Signed {
				data.SetSignedBitsLittleEndian(uint8(sig.StartBit), uint8(sig.BitLength), raw)
			} else {
				data.SetUnsignedBitsLittleEndian(uint8(sig.StartBit), uint8(sig.BitLength), uint64(raw))
			}
		}

		used[sig.Name] = sent
		// Quantization alone is not a clamp; only range clipping and raw
		// overflow are reported.
		if phys != requested || overflow {
			clamped[sig.Name] = ClampInfo{Requested: requested, Sent: sent, Overflow: overflow}
		}
	}

	return can.Frame{ID: fd.ID, Length: uint8(fd.DLC), Data: data}, used, clamped
}

// EncodeAll encodes every catalog frame in id order. The aggregated clamp map
// covers all signals across all frames.
func (c *Catalog) EncodeAll(values map[string]float64) ([]can.Frame, map[string]float64, map[string]ClampInfo) {
	frames := make([]can.Frame, 0, len(c.ordered))
	used := make(map[string]float64, len(c.BySignal))
	clamped := map[string]ClampInfo{}
	for _, fd := range c.ordered {
		frame, u, cl := c.EncodeFrame(fd, values)
		frames = append(frames, frame)
		for k, v := range u {
			used[k] = v
		}
		for k, v := range cl {
			clamped[k] = v
		}
	}
	return frames, used, clamped
}

// DecodeFrame unpacks a wire frame back into physical values.
func (c *Catalog) DecodeFrame(id uint32, data can.Data) (map[string]float64, error) {
	fd, err := c.FrameByID(id)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(fd.Signals))
	for i := range fd.Signals {
		sig := &fd.Signals[i]
		var raw int64
		if sig.BigEndian() {
			if sig.Signed {
				raw = data.SignedBitsBigEndian(uint8(sig.StartBit), uint8(sig.BitLength))
			} else {
				raw = int64(data.UnsignedBitsBigEndian(uint8(sig.StartBit), uint8(sig.BitLength)))
			}
		} else {
			if sig.Signed {
				raw = data.SignedBitsLittleEndian(uint8(sig.StartBit), uint8(sig.BitLength))
			} else {
				raw = int64(data.UnsignedBitsLittleEndian(uint8(sig.StartBit), uint8(sig.BitLength)))
			}
		}
		out[sig.Name] = toPhys(sig, raw)
	}
	return out, nil
}

// QuantizationStep returns the physical size of one raw count for a signal;
// a decoded value is always within one step of the encoded physical value.
func (c *Catalog) QuantizationStep(name string) (float64, error) {
	sig, err := c.LookupSignal(name)
	if err != nil {
		return 0, err
	}
	return math.Abs(sig.Factor), nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
