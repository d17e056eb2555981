package video

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fall-detector-go/pkg/models"
)

func writeFrames(t *testing.T, dir string, n, w, h int) {
	t.Helper()
	for i := 0; i < n; i++ {
		img := image.NewGray(image.Rect(0, 0, w, h))
		f, err := os.Create(filepath.Join(dir, "f_"+string(rune('a'+i))+".png"))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
}

func TestImageSequence_ReadsFramesInOrder(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 3, 64, 48)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	src, err := Open(dir, 10)
	require.NoError(t, err)
	defer src.Close()

	info := src.Info()
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 48, info.Height)
	assert.Equal(t, 3, info.TotalFrames)
	assert.InDelta(t, 0.3, info.Duration, 1e-9)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		frame, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, frame.Index)
		assert.InDelta(t, float64(i)/10, frame.Timestamp, 1e-9)
	}
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, IsEOF(err))
}

func TestOpen_EmptyDirectory(t *testing.T) {
	_, err := Open(t.TempDir(), 30)
	assert.Error(t, err)
}

func TestOpen_VideoFileWithoutOpenCV(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mp4"), 30)
	assert.Error(t, err)
}

func TestImageSequenceSink_WritesJPEG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := Create(dir, models.VideoInfo{})
	require.NoError(t, err)

	frame := &Frame{Index: 7, Image: image.NewRGBA(image.Rect(0, 0, 8, 8))}
	require.NoError(t, sink.Write(frame))
	require.NoError(t, sink.Close())

	_, err = os.Stat(filepath.Join(dir, "frame_000007.jpg"))
	assert.NoError(t, err)
}

func TestAnnotator_DrawFall(t *testing.T) {
	a := NewAnnotator()
	frame := &Frame{Index: 1, Image: image.NewGray(image.Rect(0, 0, 200, 200))}
	info := &models.FallInfo{
		Type:       models.FallSudden,
		Confidence: 0.9,
		BBox:       models.BBox{X1: 20, Y1: 40, X2: 120, Y2: 160},
	}

	require.NoError(t, a.DrawFall(frame, info))

	canvas, ok := frame.Image.(*image.RGBA)
	require.True(t, ok, "frame converted to RGBA canvas")
	assert.Equal(t, alertColor, canvas.RGBAAt(20, 100))
	assert.Equal(t, alertColor, canvas.RGBAAt(70, 40))
	assert.Equal(t, color.RGBA{A: 255}, canvas.RGBAAt(70, 100), "box interior untouched")
}

func TestAnnotator_DrawFallOutsideFrame(t *testing.T) {
	a := NewAnnotator()
	frame := &Frame{Image: image.NewRGBA(image.Rect(0, 0, 10, 10))}
	err := a.DrawFall(frame, &models.FallInfo{BBox: models.BBox{X1: 50, Y1: 50, X2: 60, Y2: 60}})
	assert.Error(t, err)
}

func TestAnnotator_DrawPosesSkipsZeroKeypoints(t *testing.T) {
	a := NewAnnotator()
	frame := &Frame{Image: image.NewRGBA(image.Rect(0, 0, 50, 50))}
	poses := []models.Pose{{Keypoints: []models.Keypoint{{X: 10, Y: 10}, {X: 0, Y: 30}}}}

	require.NoError(t, a.DrawPoses(frame, poses))

	canvas := frame.Image.(*image.RGBA)
	assert.Equal(t, keypointColor, canvas.RGBAAt(10, 10))
	assert.Equal(t, color.RGBA{}, canvas.RGBAAt(0, 30))
}
