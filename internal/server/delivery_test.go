package server

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsg8-commits/ripple/internal/chat"
	"github.com/hsg8-commits/ripple/pkg/json"
)

func TestQualityForRTT(t *testing.T) {
	tests := []struct {
		rtt  time.Duration
		want Quality
	}{
		{10 * time.Millisecond, QualityExcellent},
		{49 * time.Millisecond, QualityExcellent},
		{50 * time.Millisecond, QualityGood},
		{99 * time.Millisecond, QualityGood},
		{100 * time.Millisecond, QualityFair},
		{299 * time.Millisecond, QualityFair},
		{300 * time.Millisecond, QualityPoor},
		{499 * time.Millisecond, QualityPoor},
		{500 * time.Millisecond, QualityBad},
		{2 * time.Second, QualityBad},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, QualityForRTT(tt.rtt))
		})
	}
}

func TestBatchWindowOnlySlowsPoorLinks(t *testing.T) {
	assert.Zero(t, QualityExcellent.BatchWindow())
	assert.Zero(t, QualityGood.BatchWindow())
	assert.Zero(t, QualityFair.BatchWindow())
	assert.NotZero(t, QualityPoor.BatchWindow())
	assert.Greater(t, QualityBad.BatchWindow(), QualityPoor.BatchWindow())
}

func TestEncodeBatchSingleFramePassesThrough(t *testing.T) {
	frame := []byte(`{"type":"typing","payload":{}}`)
	out, err := encodeBatch([][]byte{frame})
	require.NoError(t, err)
	assert.Equal(t, frame, out)
}

func TestEncodeBatchWrapsMultipleFrames(t *testing.T) {
	frames := [][]byte{
		[]byte(`{"type":"typing","payload":{"roomID":"r1"}}`),
		[]byte(`{"type":"new-message","payload":{"id":"m1"}}`),
	}
	out, err := encodeBatch(frames)
	require.NoError(t, err)

	var envelope chat.Frame
	require.NoError(t, json.Unmarshal(out, &envelope))
	assert.Equal(t, chat.EvBatch, envelope.Type)

	var batch batchPayload
	require.NoError(t, json.Unmarshal(envelope.Payload, &batch))
	require.Len(t, batch.Frames, 2)
	assert.JSONEq(t, string(frames[0]), string(batch.Frames[0]))
	assert.JSONEq(t, string(frames[1]), string(batch.Frames[1]))
}

func TestCompressFrameRoundTrips(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"type":"new-message"}`), 100)
	compressed, err := compressFrame(payload)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(payload))

	r, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	restored, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, restored)
}
