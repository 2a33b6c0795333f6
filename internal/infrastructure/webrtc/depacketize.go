package webrtc

import (
	"encoding/binary"
	"fmt"

	"stagecast/internal/core/domain"

	"github.com/pion/rtp"
)

// frameAssembler rebuilds one video frame from the RTP packets that carry it.
// Packets sharing a timestamp belong to the same frame and the marker bit
// closes it. A timestamp change before the marker means packets were lost,
// and the partial frame is dropped.
type frameAssembler struct {
	buf     []byte
	ts      uint32
	started bool
	seq     uint64
}

// push folds one packet in. The returned payload is only valid when complete
// is true, and is a fresh copy the caller may keep.
func (a *frameAssembler) push(p *rtp.Packet) (payload []byte, seq uint64, complete bool) {
	if a.started && p.Timestamp != a.ts {
		a.buf = a.buf[:0]
		a.started = false
	}
	if !a.started {
		a.ts = p.Timestamp
		a.started = true
	}
	a.buf = append(a.buf, p.Payload...)
	if !p.Marker {
		return nil, 0, false
	}
	out := make([]byte, len(a.buf))
	copy(out, a.buf)
	a.buf = a.buf[:0]
	a.started = false
	a.seq++
	return out, a.seq, true
}

// decodeVideoPayload unpacks a reassembled video payload. The layout is
// [4 byte width][4 byte height][RGBA], the raw-frame framing publishers use
// on the wire.
func decodeVideoPayload(payload []byte, seq uint64) (*domain.VideoFrame, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("video payload too short: %d bytes", len(payload))
	}
	w := int(binary.BigEndian.Uint32(payload))
	h := int(binary.BigEndian.Uint32(payload[4:]))
	if w <= 0 || h <= 0 || len(payload)-8 != w*h*4 {
		return nil, fmt.Errorf("video payload %dx%d does not match %d data bytes", w, h, len(payload)-8)
	}
	return &domain.VideoFrame{Width: w, Height: h, Data: payload[8:], Seq: seq}, nil
}

// decodeAudioPayload converts little-endian signed 16-bit PCM into the mixer's
// sample format, the inverse of what the composite sinks write.
func decodeAudioPayload(payload []byte) []float64 {
	samples := make([]float64, len(payload)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(payload[i*2:]))
		samples[i] = float64(v) / 32767
	}
	return samples
}
