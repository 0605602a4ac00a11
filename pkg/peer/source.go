package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
)

// Source yields the local tracks of a broadcast. Capture and encoding live
// behind it.
type Source interface {
	Tracks() []webrtc.TrackLocal
	// Close stops every track
	Close() error
}

// AcquireFunc obtains a Source. It may block (permission prompts, device
// warmup) and honours ctx.
type AcquireFunc func(ctx context.Context) (Source, error)

// mimeForFourCC maps an IVF header codec to a track mime type
func mimeForFourCC(fourcc string) (string, error) {
	switch strings.TrimSpace(fourcc) {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	default:
		return "", fmt.Errorf("unsupported IVF codec %q", fourcc)
	}
}

// frameDuration picks the sample duration from fps or the file's timebase
func frameDuration(fps int, header *ivfreader.IVFFileHeader) time.Duration {
	if fps > 0 {
		return time.Second / time.Duration(fps)
	}
	if header != nil && header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		return time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}
	return time.Second / 30
}

// sampleSource writes frames to one static-sample track from a goroutine
type sampleSource struct {
	track  *webrtc.TrackLocalStaticSample
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *sampleSource) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{s.track}
}

func (s *sampleSource) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// frameFunc returns the next frame to send
type frameFunc func() ([]byte, error)

func startSampleSource(mime string, dur time.Duration, next frameFunc, cleanup func(), logger *slog.Logger) (*sampleSource, error) {
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, "video", "peepcast")
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create track: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &sampleSource{track: track, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer cleanup()

		ticker := time.NewTicker(dur)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			frame, err := next()
			if err != nil {
				logger.Error("media source stopped", "err", err)
				return
			}
			if err := track.WriteSample(media.Sample{Data: frame, Duration: dur}); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				logger.Warn("failed to write sample", "err", err)
			}
		}
	}()
	return s, nil
}

// IVFFile plays an IVF clip in a loop. fps 0 uses the file's timebase.
func IVFFile(path string, fps int, logger *slog.Logger) AcquireFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) (Source, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open clip: %w", err)
		}
		reader, header, err := ivfreader.NewWith(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to read IVF header: %w", err)
		}
		mime, err := mimeForFourCC(header.FourCC)
		if err != nil {
			f.Close()
			return nil, err
		}

		next := func() ([]byte, error) {
			frame, _, err := reader.ParseNextFrame()
			if errors.Is(err, io.EOF) {
				// rewind and keep looping
				if _, err := f.Seek(0, io.SeekStart); err != nil {
					return nil, err
				}
				if reader, _, err = ivfreader.NewWith(f); err != nil {
					return nil, err
				}
				frame, _, err = reader.ParseNextFrame()
			}
			return frame, err
		}

		logger.Info("playing clip", "path", path, "codec", mime, "width", header.Width, "height", header.Height)
		return startSampleSource(mime, frameDuration(fps, header), next, func() { f.Close() }, logger)
	}
}

// StillFrame turns a single encoded image (the first frame of an IVF file,
// which must be a keyframe) into a video source repeating it at fps
func StillFrame(path string, fps int, logger *slog.Logger) AcquireFunc {
	if logger == nil {
		logger = slog.Default()
	}
	if fps <= 0 {
		fps = 5
	}
	return func(ctx context.Context) (Source, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open image: %w", err)
		}
		defer f.Close()

		reader, header, err := ivfreader.NewWith(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read IVF header: %w", err)
		}
		mime, err := mimeForFourCC(header.FourCC)
		if err != nil {
			return nil, err
		}
		frame, _, err := reader.ParseNextFrame()
		if err != nil {
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}

		next := func() ([]byte, error) { return frame, nil }
		return startSampleSource(mime, frameDuration(fps, header), next, func() {}, logger)
	}
}
