package video

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fall-detector-go/pkg/models"
)

var frameExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// ImageSequence источник из каталога с кадрами, упорядоченными по имени
type ImageSequence struct {
	files []string
	info  models.VideoInfo
	next  int
}

// OpenImageSequence открывает каталог; размеры берутся из первого кадра
func OpenImageSequence(dir string, fps float64) (*ImageSequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no frames found in %s", dir)
	}
	sort.Strings(files)

	if fps <= 0 {
		fps = 30
	}
	seq := &ImageSequence{files: files}
	seq.info = models.VideoInfo{FPS: fps, TotalFrames: len(files), Duration: float64(len(files)) / fps}

	first, err := decodeImage(files[0])
	if err != nil {
		return nil, err
	}
	b := first.Bounds()
	seq.info.Width, seq.info.Height = b.Dx(), b.Dy()
	return seq, nil
}

func (s *ImageSequence) Info() models.VideoInfo { return s.info }

func (s *ImageSequence) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.files) {
		return nil, io.EOF
	}
	path := s.files[s.next]
	s.next++

	img, err := decodeImage(path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &Frame{
		Index:     s.next,
		Timestamp: float64(s.next) / s.info.FPS,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Image:     img,
	}, nil
}

func (s *ImageSequence) Close() error { return nil }

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %s: %w", path, err)
	}
	return img, nil
}

// ImageSequenceSink пишет размеченные кадры в каталог в формате JPEG
type ImageSequenceSink struct {
	dir string
}

// NewImageSequenceSink создает каталог для кадров
func NewImageSequenceSink(dir string) (*ImageSequenceSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &ImageSequenceSink{dir: dir}, nil
}

func (s *ImageSequenceSink) Write(frame *Frame) error {
	path := filepath.Join(s.dir, fmt.Sprintf("frame_%06d.jpg", frame.Index))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create frame file: %w", err)
	}
	if err := jpeg.Encode(f, frame.Image, &jpeg.Options{Quality: 85}); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode frame %d: %w", frame.Index, err)
	}
	return f.Close()
}

func (s *ImageSequenceSink) Close() error { return nil }

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// IsVideoFile путь с расширением видеофайла
func IsVideoFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".avi", ".mov", ".mkv", ".wmv":
		return true
	}
	return false
}
