package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSaturateRaw(t *testing.T) {
	cases := []struct {
		name    string
		raw     int64
		bitLen  int
		signed  bool
		want    int64
		clipped bool
	}{
		{"unsigned in range", 1234, 16, false, 1234, false},
		{"unsigned at max", 65535, 16, false, 65535, false},
		{"unsigned over max", 65536, 16, false, 65535, true},
		{"unsigned negative", -1, 16, false, 0, true},
		{"signed in range", -400, 16, true, -400, false},
		{"signed at min", -32768, 16, true, -32768, false},
		{"signed under min", -32769, 16, true, -32768, true},
		{"signed over max", 32768, 16, true, 32767, true},
		{"eight bit unsigned over", 256, 8, false, 255, true},
		{"eight bit signed under", -129, 8, true, -128, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, clipped := saturateRaw(tc.raw, tc.bitLen, tc.signed)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.clipped, clipped)
		})
	}
}

func TestToRawRounding(t *testing.T) {
	sig := &SignalDef{Factor: 0.1}
	assert.Equal(t, int64(1234), toRaw(sig, 123.4))
	assert.Equal(t, int64(-400), toRaw(sig, -40))
	assert.Equal(t, int64(1235), toRaw(sig, 123.45)) // rounds half away from zero

	offset := &SignalDef{Factor: 1, Offset: 100}
	assert.Equal(t, int64(-60), toRaw(offset, 40))
	assert.InDelta(t, 40, toPhys(offset, -60), 1e-12)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5.0, clamp(5, 0, 10))
	assert.Equal(t, 0.0, clamp(-1, 0, 10))
	assert.Equal(t, 10.0, clamp(11, 0, 10))
}
