package domain

import "time"

// VideoFrame is one composited or captured frame in RGBA order, 4 bytes per
// pixel, row-major.
type VideoFrame struct {
	Width  int
	Height int
	Data   []byte
	Seq    uint64
	PTS    time.Duration
}

// NewVideoFrame allocates a zeroed frame of the given dimensions.
func NewVideoFrame(width, height int) *VideoFrame {
	return &VideoFrame{
		Width:  width,
		Height: height,
		Data:   make([]byte, width*height*4),
	}
}

// Clone returns a deep copy of the frame.
func (f *VideoFrame) Clone() *VideoFrame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &VideoFrame{
		Width:  f.Width,
		Height: f.Height,
		Data:   data,
		Seq:    f.Seq,
		PTS:    f.PTS,
	}
}

// AudioFrame is a block of mono PCM samples in [-1, 1].
type AudioFrame struct {
	SampleRate int
	Samples    []float64
	Seq        uint64
	PTS        time.Duration
}

// VideoSource yields decoded frames for compositing. Latest returns false when
// no decodable frame is available yet; the compositor treats that as
// camera-off for the current cycle only.
type VideoSource interface {
	Latest() (*VideoFrame, bool)
}

// AudioSource yields PCM samples for mixing. ReadSamples fills buf and
// returns the number of samples written; a source with nothing buffered
// returns 0 and the mixer substitutes silence.
type AudioSource interface {
	ReadSamples(buf []float64) int
}
