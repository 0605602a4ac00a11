package peer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vp8 = webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}}

func TestStatsRenderer(t *testing.T) {
	r := NewStatsRenderer()

	require.NoError(t, r.Start("video", vp8))
	require.NoError(t, r.WritePacket("video", &rtp.Packet{Payload: make([]byte, 100)}))
	require.NoError(t, r.WritePacket("video", &rtp.Packet{Payload: make([]byte, 50)}))
	r.ShowContent("/uploads/a.png")

	s := r.Stats()
	assert.Equal(t, 1, s.Tracks)
	assert.Equal(t, uint64(2), s.Packets)
	assert.Equal(t, uint64(150), s.Bytes)
	assert.Equal(t, webrtc.MimeTypeVP8, s.Codec)
	assert.Equal(t, "/uploads/a.png", s.Content)
	assert.False(t, s.LastPacket.IsZero())

	r.Clear()
	assert.Equal(t, RenderStats{}, r.Stats())
}

func TestIVFRecorderSegments(t *testing.T) {
	dir := t.TempDir()
	r := NewIVFRecorder(filepath.Join(dir, "out.ivf"), quietLogger())

	assert.Equal(t, filepath.Join(dir, "out.ivf"), r.segmentPath(1))
	assert.Equal(t, filepath.Join(dir, "out-3.ivf"), r.segmentPath(3))

	require.NoError(t, r.Start("video", vp8))
	require.NoError(t, r.Start("video", vp8))
	r.Clear()

	for _, name := range []string{"out.ivf", "out-2.ivf"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		require.GreaterOrEqual(t, len(data), 32)
		assert.Equal(t, "DKIF", string(data[:4]))
	}

	// nothing open after Clear
	assert.NoError(t, r.WritePacket("video", &rtp.Packet{}))
}

func TestIVFRecorderRejectsOtherCodecs(t *testing.T) {
	r := NewIVFRecorder(filepath.Join(t.TempDir(), "out"), quietLogger())
	opus := webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}}
	assert.Error(t, r.Start("audio", opus))
	assert.Equal(t, "out-2", filepath.Base(r.segmentPath(2)))
}

type failingRenderer struct{ fakeRenderer }

func (*failingRenderer) Start(string, webrtc.RTPCodecParameters) error { return errors.New("boom") }

func TestRenderersFanOut(t *testing.T) {
	a := &fakeRenderer{}
	b := &failingRenderer{}
	rs := Renderers{b, a}

	assert.EqualError(t, rs.Start("video", vp8), "boom")
	require.NoError(t, rs.WritePacket("video", &rtp.Packet{}))
	rs.ShowContent("/x.png")

	_, content := a.snapshot()
	assert.Equal(t, "/x.png", content)
	_, content = b.snapshot()
	assert.Equal(t, "/x.png", content)

	rs.Clear()
	clears, _ := a.snapshot()
	assert.Equal(t, 1, clears)
}
