package utils

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
)

func TestEncodeFrameKnownBytes(t *testing.T) {
	c := SimplifiedDashCatalog()
	fd, err := c.FrameByID(FrameDash0)
	require.NoError(t, err)

	frame, used, clamped := c.EncodeFrame(fd, map[string]float64{
		"map": 45.0,
		"rpm": 900,
		"clt": 185.0,
		"tps": 2.0,
	})

	assert.Equal(t, FrameDash0, frame.ID)
	assert.Equal(t, uint8(8), frame.Length)
	assert.False(t, frame.IsExtended)

	// Big-endian 16-bit fields: 450=0x01C2, 900=0x0384, 1850=0x073A, 20=0x0014.
	want := can.Data{0x01, 0xC2, 0x03, 0x84, 0x07, 0x3A, 0x00, 0x14}
	assert.Equal(t, want, frame.Data)
	assert.Empty(t, clamped)
	assert.Equal(t, 45.0, used["map"])
}

func TestEncodeScaledValue(t *testing.T) {
	// 123.4 degF at 0.1 deg/bit is raw 1234 = 0x04D2, MSB first.
	c := SimplifiedDashCatalog()
	fd, err := c.FrameByID(FrameDash0)
	require.NoError(t, err)

	frame, _, _ := c.EncodeFrame(fd, map[string]float64{"clt": 123.4})
	assert.Equal(t, byte(0x04), frame.Data[4])
	assert.Equal(t, byte(0xD2), frame.Data[5])
}

func TestEncodeNegativeSigned(t *testing.T) {
	// -40 degF at 0.1 deg/bit is raw -400 = 0xFE70 in two's complement.
	c := SimplifiedDashCatalog()
	fd, err := c.FrameByID(FrameDash0)
	require.NoError(t, err)

	frame, _, clamped := c.EncodeFrame(fd, map[string]float64{"clt": -40})
	assert.Equal(t, byte(0xFE), frame.Data[4])
	assert.Equal(t, byte(0x70), frame.Data[5])
	assert.NotContains(t, clamped, "clt")
}

func TestEncodeEightBitSignals(t *testing.T) {
	c := SimplifiedDashCatalog()
	fd, err := c.FrameByID(FrameDash2)
	require.NoError(t, err)

	frame, _, _ := c.EncodeFrame(fd, map[string]float64{"afrtgt1": 14.7, "AFR1": 12.8})
	assert.Equal(t, byte(147), frame.Data[0])
	assert.Equal(t, byte(128), frame.Data[1])
}

func TestEncodeMissingSignalUsesDefault(t *testing.T) {
	c := SimplifiedDashCatalog()
	fd, err := c.FrameByID(FrameDash0)
	require.NoError(t, err)

	_, used, clamped := c.EncodeFrame(fd, map[string]float64{})
	assert.Equal(t, 900.0, used["rpm"])
	assert.Equal(t, 45.0, used["map"])
	assert.Empty(t, clamped)
}

func TestEncodeClampsOutOfRange(t *testing.T) {
	c := SimplifiedDashCatalog()
	fd, err := c.FrameByID(FrameDash0)
	require.NoError(t, err)

	frame, used, clamped := c.EncodeFrame(fd, map[string]float64{"rpm": 9000})
	assert.Equal(t, 8000.0, used["rpm"])
	require.Contains(t, clamped, "rpm")
	assert.Equal(t, 9000.0, clamped["rpm"].Requested)
	assert.Equal(t, 8000.0, clamped["rpm"].Sent)
	assert.False(t, clamped["rpm"].Overflow)

	// 8000 = 0x1F40 big-endian at bytes 2..3.
	assert.Equal(t, byte(0x1F), frame.Data[2])
	assert.Equal(t, byte(0x40), frame.Data[3])
}

func TestEncodeNonFiniteFallsBackToDefault(t *testing.T) {
	c := SimplifiedDashCatalog()
	fd, err := c.FrameByID(FrameDash0)
	require.NoError(t, err)

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, used, clamped := c.EncodeFrame(fd, map[string]float64{"rpm": v})
		assert.Equal(t, 900.0, used["rpm"])
		assert.Contains(t, clamped, "rpm")
	}
}

func TestEncodeAllOrderedByID(t *testing.T) {
	c := SimplifiedDashCatalog()
	frames, used, clamped := c.EncodeAll(c.Defaults())

	require.Len(t, frames, 5)
	for i, wantID := range []uint32{FrameDash0, FrameDash1, FrameDash2, FrameDash3, FrameDash4} {
		assert.Equal(t, wantID, frames[i].ID)
		assert.Equal(t, uint8(8), frames[i].Length)
	}
	assert.Len(t, used, 20)
	assert.Empty(t, clamped)
}

func TestDecodeRoundTrip(t *testing.T) {
	c := SimplifiedDashCatalog()
	values := map[string]float64{
		"map": 98.6, "rpm": 3500, "clt": 201.3, "tps": 42.7,
		"pw1": 6.234, "pw2": 6.101, "mat": 95.2, "adv_deg": 24.5,
		"afrtgt1": 13.2, "AFR1": 13.1, "egocor1": 101.5, "egt1": 1450.2, "pwseq1": 6.2,
		"batt": 13.8, "sensors1": -12.34, "sensors2": 250.01, "knk_rtd": 1.5,
		"VSS1": 33.3, "tc_retard": 2.1, "launch_timing": -5.4,
	}

	frames, used, clamped := c.EncodeAll(values)
	assert.Empty(t, clamped)

	decoded := map[string]float64{}
	for _, frame := range frames {
		out, err := c.DecodeFrame(frame.ID, frame.Data)
		require.NoError(t, err)
		for k, v := range out {
			decoded[k] = v
		}
	}

	for name, want := range values {
		step, err := c.QuantizationStep(name)
		require.NoError(t, err)
		assert.InDeltaf(t, want, decoded[name], step/2+1e-9, "signal %s", name)
		// The decoded value matches what the encoder reported as sent.
		assert.InDeltaf(t, used[name], decoded[name], 1e-9, "signal %s", name)
	}
}

func TestDecodeUnknownFrame(t *testing.T) {
	c := SimplifiedDashCatalog()
	_, err := c.DecodeFrame(0x123, can.Data{})
	assert.Error(t, err)
}

func TestSnapshotOfUsedValuesIsQuantized(t *testing.T) {
	c := SimplifiedDashCatalog()
	fd, err := c.FrameByID(FrameDash0)
	require.NoError(t, err)

	// 123.45 at 0.1 resolution rounds to 123.5 on the wire.
	_, used, _ := c.EncodeFrame(fd, map[string]float64{"clt": 123.45})
	if diff := cmp.Diff(123.5, used["clt"]); diff != "" {
		t.Fatalf("used value mismatch (-want +got):\n%s", diff)
	}
}
