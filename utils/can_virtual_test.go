package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
)

func TestVirtualWriterRecordsFrames(t *testing.T) {
	w := NewVirtualWriter()
	ctx := context.Background()

	require.NoError(t, w.WriteFrame(ctx, can.Frame{ID: FrameDash0, Length: 8}))
	require.NoError(t, w.WriteFrame(ctx, can.Frame{ID: FrameDash1, Length: 8}))

	sent := w.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, FrameDash0, sent[0].ID)
	assert.Equal(t, FrameDash1, sent[1].ID)
	assert.Equal(t, 2, w.SentCount())
}

func TestVirtualWriterClosed(t *testing.T) {
	w := NewVirtualWriter()
	require.NoError(t, w.Close())

	err := w.WriteFrame(context.Background(), can.Frame{ID: 1})
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "send", te.Op)
	assert.Equal(t, 0, w.SentCount())
}

func TestVirtualWriterSendHook(t *testing.T) {
	w := NewVirtualWriter()
	fail := errors.New("bus off")
	w.SendHook = func(can.Frame) error { return fail }

	err := w.WriteFrame(context.Background(), can.Frame{ID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, 0, w.SentCount())
}
