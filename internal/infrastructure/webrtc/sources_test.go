package webrtc

import (
	"testing"

	"stagecast/internal/core/domain"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packetWithSeq(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq, Timestamp: uint32(seq) * 3000}}
}

func TestRemoteVideoSource_LatestSemantics(t *testing.T) {
	src := NewRemoteVideoSource()

	_, ok := src.Latest()
	assert.False(t, ok)

	f1 := &domain.VideoFrame{Seq: 1}
	f2 := &domain.VideoFrame{Seq: 2}
	src.Deliver(f1)
	src.Deliver(f2)

	got, ok := src.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.Seq)

	// Latest is idempotent, not consuming.
	got, ok = src.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.Seq)
}

func TestRemoteAudioSource_ReadDrains(t *testing.T) {
	src := NewRemoteAudioSource(48000)
	src.Deliver([]float64{0.1, 0.2, 0.3})

	buf := make([]float64, 2)
	n := src.ReadSamples(buf)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{0.1, 0.2}, buf)

	n = src.ReadSamples(buf)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0.3, buf[0])

	assert.Zero(t, src.ReadSamples(buf))
}

func TestRemoteAudioSource_OverflowDropsOldest(t *testing.T) {
	src := &RemoteAudioSource{ring: make([]float64, 4)}
	src.Deliver([]float64{1, 2, 3, 4, 5, 6})

	buf := make([]float64, 4)
	n := src.ReadSamples(buf)
	assert.Equal(t, 4, n)
	assert.Equal(t, []float64{3, 4, 5, 6}, buf)
}

func TestTransportStats_LossAndBitrate(t *testing.T) {
	s := newTransportStats()

	// Packets 1,2,5 with a 2-packet gap.
	for _, seq := range []uint16{1, 2, 5} {
		s.observePacket(packetWithSeq(seq), 100, 90000)
	}

	stats := s.Stats()
	assert.InDelta(t, 40.0, stats.PacketLossPct, 0.01) // 2 lost of 5
	assert.Greater(t, stats.BitrateKbps, 0)
}

func TestTransportStats_ReorderedPacketNotCountedAsLoss(t *testing.T) {
	s := newTransportStats()
	for _, seq := range []uint16{1, 2, 3, 2} {
		s.observePacket(packetWithSeq(seq), 100, 90000)
	}
	stats := s.Stats()
	assert.Zero(t, stats.PacketLossPct)
}
