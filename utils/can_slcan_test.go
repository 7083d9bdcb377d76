package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
)

func TestMarshalSLCANStandardFrame(t *testing.T) {
	frame := can.Frame{
		ID:     FrameDash0, // 1512 = 0x5E8
		Length: 8,
		Data:   can.Data{0x01, 0xC2, 0x03, 0x84, 0x07, 0x3A, 0x00, 0x14},
	}
	line, err := MarshalSLCAN(frame)
	require.NoError(t, err)
	assert.Equal(t, "t5E8801C20384073A0014\r", string(line))
}

func TestMarshalSLCANExtendedFrame(t *testing.T) {
	frame := can.Frame{
		ID:         0x1FFFFFFF,
		Length:     2,
		Data:       can.Data{0xAB, 0xCD},
		IsExtended: true,
	}
	line, err := MarshalSLCAN(frame)
	require.NoError(t, err)
	assert.Equal(t, "T1FFFFFFF2ABCD\r", string(line))
}

func TestMarshalSLCANShortFrame(t *testing.T) {
	line, err := MarshalSLCAN(can.Frame{ID: 0x7FF, Length: 0})
	require.NoError(t, err)
	assert.Equal(t, "t7FF0\r", string(line))
}

func TestMarshalSLCANRejectsBadFrames(t *testing.T) {
	_, err := MarshalSLCAN(can.Frame{ID: 0x800, Length: 1})
	assert.Error(t, err, "standard id over 11 bits")

	_, err = MarshalSLCAN(can.Frame{ID: 1, Length: 9})
	assert.Error(t, err, "DLC over 8")
}

func TestSLCANBitrateCodes(t *testing.T) {
	assert.Equal(t, "S6", SLCANBitrateCodes[500_000])
	assert.Equal(t, "S8", SLCANBitrateCodes[1_000_000])
	_, ok := SLCANBitrateCodes[33_333]
	assert.False(t, ok)
}
