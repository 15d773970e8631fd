package server

import (
	"bytes"
	jsonraw "encoding/json"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/hsg8-commits/ripple/internal/chat"
	"github.com/hsg8-commits/ripple/pkg/json"
)

// Quality buckets a connection's measured round-trip time. Slower links get
// coarser delivery: frames are coalesced into batches, and large batches are
// compressed, trading latency the link already lost for fewer writes.
type Quality int

const (
	QualityExcellent Quality = iota
	QualityGood
	QualityFair
	QualityPoor
	QualityBad
)

// RTT thresholds between buckets.
const (
	rttExcellent = 50 * time.Millisecond
	rttGood      = 100 * time.Millisecond
	rttFair      = 300 * time.Millisecond
	rttPoor      = 500 * time.Millisecond
)

func (q Quality) String() string {
	switch q {
	case QualityExcellent:
		return "excellent"
	case QualityGood:
		return "good"
	case QualityFair:
		return "fair"
	case QualityPoor:
		return "poor"
	default:
		return "bad"
	}
}

// QualityForRTT buckets a measured round trip.
func QualityForRTT(rtt time.Duration) Quality {
	switch {
	case rtt < rttExcellent:
		return QualityExcellent
	case rtt < rttGood:
		return QualityGood
	case rtt < rttFair:
		return QualityFair
	case rtt < rttPoor:
		return QualityPoor
	default:
		return QualityBad
	}
}

// BatchWindow is how long the write pump holds a frame hoping to coalesce
// more. Zero means frames go out immediately.
func (q Quality) BatchWindow() time.Duration {
	switch q {
	case QualityPoor:
		return 50 * time.Millisecond
	case QualityBad:
		return 150 * time.Millisecond
	default:
		return 0
	}
}

// compressThreshold is the encoded batch size past which gzip pays for
// itself on a slow link.
const compressThreshold = 1024

type batchPayload struct {
	Frames []jsonraw.RawMessage `json:"frames"`
}

// encodeBatch wraps already-encoded frames in a single batch frame. A batch
// of one collapses to the frame itself.
func encodeBatch(frames [][]byte) ([]byte, error) {
	if len(frames) == 1 {
		return frames[0], nil
	}
	raw := make([]jsonraw.RawMessage, len(frames))
	for i, f := range frames {
		raw[i] = f
	}
	payload, err := json.Marshal(batchPayload{Frames: raw})
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Type    string             `json:"type"`
		Payload jsonraw.RawMessage `json:"payload"`
	}{Type: chat.EvBatch, Payload: payload})
}

// compressFrame gzips an encoded frame. The result travels as a binary
// websocket message; text messages stay uncompressed.
func compressFrame(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
