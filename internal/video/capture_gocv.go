//go:build gocv

package video

import (
	"context"
	"fmt"
	"io"

	"gocv.io/x/gocv"

	"fall-detector-go/pkg/models"
)

// Capture источник кадров из видеофайла через OpenCV
type Capture struct {
	cap   *gocv.VideoCapture
	mat   gocv.Mat
	info  models.VideoInfo
	index int
}

func openCapture(path string) (Source, error) {
	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("video %s is not opened", path)
	}

	info := models.VideoInfo{
		Width:       int(cap.Get(gocv.VideoCaptureFrameWidth)),
		Height:      int(cap.Get(gocv.VideoCaptureFrameHeight)),
		FPS:         cap.Get(gocv.VideoCaptureFPS),
		TotalFrames: int(cap.Get(gocv.VideoCaptureFrameCount)),
	}
	if info.FPS <= 0 {
		info.FPS = 30
	}
	info.Duration = float64(info.TotalFrames) / info.FPS

	return &Capture{cap: cap, mat: gocv.NewMat(), info: info}, nil
}

func (c *Capture) Info() models.VideoInfo { return c.info }

func (c *Capture) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := c.cap.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, io.EOF
	}
	c.index++

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame %d: %w", c.index, err)
	}
	return &Frame{
		Index:     c.index,
		Timestamp: float64(c.index) / c.info.FPS,
		Width:     c.mat.Cols(),
		Height:    c.mat.Rows(),
		Image:     img,
	}, nil
}

func (c *Capture) Close() error {
	c.mat.Close()
	return c.cap.Close()
}

// Writer приемник кадров в видеофайл mp4v
type Writer struct {
	w *gocv.VideoWriter
}

func createWriter(path string, info models.VideoInfo) (Sink, error) {
	w, err := gocv.VideoWriterFile(path, "mp4v", info.FPS, info.Width, info.Height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create video writer: %w", err)
	}
	return &Writer{w: w}, nil
}

func (w *Writer) Write(frame *Frame) error {
	mat, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return fmt.Errorf("failed to convert frame %d: %w", frame.Index, err)
	}
	defer mat.Close()
	return w.w.Write(mat)
}

func (w *Writer) Close() error {
	return w.w.Close()
}
