package peer

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media/ivfwriter"
)

// Renderer consumes what a consumer receives. Start and WritePacket run on
// the track's read goroutine; Clear and ShowContent on the manager's.
type Renderer interface {
	Start(trackID string, codec webrtc.RTPCodecParameters) error
	WritePacket(trackID string, pkt *rtp.Packet) error
	// ShowContent displays a static image URL pushed to the room
	ShowContent(url string)
	// Clear drops everything shown, as when the producer stops
	Clear()
}

// RenderStats is a snapshot of what a StatsRenderer has seen
type RenderStats struct {
	Tracks     int
	Packets    uint64
	Bytes      uint64
	Codec      string
	Content    string
	LastPacket time.Time
}

// StatsRenderer counts received media. It backs the viewer status screen.
type StatsRenderer struct {
	mu    sync.Mutex
	stats RenderStats
}

// NewStatsRenderer creates an empty counter
func NewStatsRenderer() *StatsRenderer {
	return &StatsRenderer{}
}

func (r *StatsRenderer) Start(trackID string, codec webrtc.RTPCodecParameters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Tracks++
	r.stats.Codec = codec.MimeType
	return nil
}

func (r *StatsRenderer) WritePacket(trackID string, pkt *rtp.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Packets++
	r.stats.Bytes += uint64(len(pkt.Payload))
	r.stats.LastPacket = time.Now()
	return nil
}

func (r *StatsRenderer) ShowContent(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Content = url
}

func (r *StatsRenderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = RenderStats{}
}

// Stats returns the current counters
func (r *StatsRenderer) Stats() RenderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// IVFRecorder writes received VP8 video to numbered IVF segments, one per
// track: out.ivf, out-2.ivf, ...
type IVFRecorder struct {
	base   string
	logger *slog.Logger

	mu      sync.Mutex
	writer  *ivfwriter.IVFWriter
	segment int
}

// NewIVFRecorder records to path
func NewIVFRecorder(path string, logger *slog.Logger) *IVFRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &IVFRecorder{base: path, logger: logger}
}

func (r *IVFRecorder) segmentPath(n int) string {
	if n <= 1 {
		return r.base
	}
	ext := ""
	stem := r.base
	if i := strings.LastIndex(r.base, "."); i > strings.LastIndex(r.base, "/") {
		stem, ext = r.base[:i], r.base[i:]
	}
	return fmt.Sprintf("%s-%d%s", stem, n, ext)
}

func (r *IVFRecorder) Start(trackID string, codec webrtc.RTPCodecParameters) error {
	if !strings.EqualFold(codec.MimeType, webrtc.MimeTypeVP8) {
		return fmt.Errorf("recording %s is not supported", codec.MimeType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeLocked()
	r.segment++
	path := r.segmentPath(r.segment)
	w, err := ivfwriter.New(path)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	r.writer = w
	r.logger.Info("recording track", "track", trackID, "path", path)
	return nil
}

func (r *IVFRecorder) WritePacket(trackID string, pkt *rtp.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil
	}
	return r.writer.WriteRTP(pkt)
}

func (r *IVFRecorder) ShowContent(url string) {}

func (r *IVFRecorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *IVFRecorder) closeLocked() {
	if r.writer == nil {
		return
	}
	if err := r.writer.Close(); err != nil {
		r.logger.Warn("failed to close recording", "err", err)
	}
	r.writer = nil
}

// Renderers fans out to several renderers. Errors from one do not stop the
// others; the first is returned.
type Renderers []Renderer

func (rs Renderers) Start(trackID string, codec webrtc.RTPCodecParameters) error {
	var first error
	for _, r := range rs {
		if err := r.Start(trackID, codec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (rs Renderers) WritePacket(trackID string, pkt *rtp.Packet) error {
	var first error
	for _, r := range rs {
		if err := r.WritePacket(trackID, pkt); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (rs Renderers) ShowContent(url string) {
	for _, r := range rs {
		r.ShowContent(url)
	}
}

func (rs Renderers) Clear() {
	for _, r := range rs {
		r.Clear()
	}
}
