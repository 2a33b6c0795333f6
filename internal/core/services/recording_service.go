package services

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"
	"stagecast/pkg/utils"

	"go.uber.org/zap"
)

// Record type tags in the capture file. Each record is
// [1 byte tag][8 byte seq][4 byte length][payload].
const (
	recordVideo byte = 1
	recordAudio byte = 2
)

const recordHeaderSize = 1 + 8 + 4

// recordingService captures the composite stream to a local file. It runs as
// one more sink on the same output the fanout transports consume, so a
// recording can run with or without a live broadcast. Only catalog metadata
// survives the session; the payload file is ephemeral.
type recordingService struct {
	dir     string
	output  ports.CompositeOutput
	catalog ports.RecordingCatalog

	mu        sync.Mutex
	session   domain.RecordingSession
	file      *os.File
	writer    *bufio.Writer
	written   int64
	startedAt time.Time
	pausedAt  time.Time
	paused    time.Duration

	logger *zap.SugaredLogger
}

func NewRecordingService(dir string, output ports.CompositeOutput, catalog ports.RecordingCatalog, logger *zap.SugaredLogger) ports.Recorder {
	return &recordingService{
		dir:     dir,
		output:  output,
		catalog: catalog,
		session: domain.RecordingSession{State: domain.RecordingIdle},
		logger:  logger,
	}
}

func (r *recordingService) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session.State == domain.RecordingActive || r.session.State == domain.RecordingPaused {
		return domain.ErrRecordingActive
	}
	if r.output == nil || !r.output.Ready() {
		return domain.ErrCompositeUnavailable
	}

	id := domain.RecordingID(utils.GenerateID("rec"))
	path := filepath.Join(r.dir, fmt.Sprintf("%s.scr", id))
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create recording file: %w", err)
	}

	r.file = file
	r.writer = bufio.NewWriterSize(file, 1<<16)
	r.written = 0
	r.startedAt = time.Now()
	r.paused = 0
	r.session = domain.RecordingSession{
		ID:        id,
		State:     domain.RecordingActive,
		StartedAt: r.startedAt,
	}

	r.output.Attach(r)
	r.logger.Infow("recording started", "recording_id", id, "path", path)
	return nil
}

func (r *recordingService) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session.State != domain.RecordingActive {
		return domain.ErrRecordingNotActive
	}
	r.session.State = domain.RecordingPaused
	r.pausedAt = time.Now()
	r.logger.Infow("recording paused", "recording_id", r.session.ID)
	return nil
}

func (r *recordingService) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session.State != domain.RecordingPaused {
		return domain.ErrRecordingNotActive
	}
	r.paused += time.Since(r.pausedAt)
	r.session.State = domain.RecordingActive
	r.logger.Infow("recording resumed", "recording_id", r.session.ID)
	return nil
}

// Stop detaches from the composite output, flushes the file, and returns the
// finished recording with duration and size. Metadata goes to the catalog;
// catalog errors are reported but do not lose the finished result.
func (r *recordingService) Stop(ctx context.Context) (*domain.FinishedRecording, error) {
	r.mu.Lock()
	if r.session.State != domain.RecordingActive && r.session.State != domain.RecordingPaused {
		r.mu.Unlock()
		return nil, domain.ErrRecordingNotActive
	}
	if r.session.State == domain.RecordingPaused {
		r.paused += time.Since(r.pausedAt)
	}
	r.session.State = domain.RecordingStopped

	id := r.session.ID
	file := r.file
	writer := r.writer
	written := r.written
	duration := time.Since(r.startedAt) - r.paused
	r.file = nil
	r.writer = nil
	r.mu.Unlock()

	r.output.Detach(r.Name())

	if err := writer.Flush(); err != nil {
		r.logger.Warnw("recording flush failed", "recording_id", id, "error", err)
	}
	path := file.Name()
	if err := file.Close(); err != nil {
		r.logger.Warnw("recording close failed", "recording_id", id, "error", err)
	}

	finished := &domain.FinishedRecording{
		ID:        id,
		Path:      path,
		Duration:  duration,
		SizeBytes: written,
		EndedAt:   time.Now(),
	}
	if err := r.catalog.Save(ctx, finished); err != nil {
		r.logger.Errorw("recording catalog save failed", "recording_id", id, "error", err)
	}

	r.logger.Infow("recording stopped",
		"recording_id", id,
		"duration", duration,
		"size_bytes", written,
	)
	return finished, nil
}

func (r *recordingService) Session() domain.RecordingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.session
	if s.State == domain.RecordingActive {
		s.Elapsed = time.Since(r.startedAt) - r.paused
	}
	return s
}

func (r *recordingService) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.State == domain.RecordingActive || r.session.State == domain.RecordingPaused
}

// CompositeSink implementation.

func (r *recordingService) Name() string { return "recorder" }

func (r *recordingService) WriteVideo(frame *domain.VideoFrame) error {
	return r.writeRecord(recordVideo, frame.Seq, frame.Data)
}

func (r *recordingService) WriteAudio(frame *domain.AudioFrame) error {
	payload := make([]byte, len(frame.Samples)*8)
	for i, s := range frame.Samples {
		binary.BigEndian.PutUint64(payload[i*8:], math.Float64bits(s))
	}
	return r.writeRecord(recordAudio, frame.Seq, payload)
}

func (r *recordingService) Close() error { return nil }

func (r *recordingService) writeRecord(tag byte, seq uint64, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Paused recordings stay attached but drop frames.
	if r.session.State != domain.RecordingActive || r.writer == nil {
		return nil
	}

	var header [recordHeaderSize]byte
	header[0] = tag
	binary.BigEndian.PutUint64(header[1:], seq)
	binary.BigEndian.PutUint32(header[9:], uint32(len(payload)))

	if _, err := r.writer.Write(header[:]); err != nil {
		return fmt.Errorf("write record header: %w", err)
	}
	if _, err := r.writer.Write(payload); err != nil {
		return fmt.Errorf("write record payload: %w", err)
	}
	r.written += int64(recordHeaderSize + len(payload))
	return nil
}
