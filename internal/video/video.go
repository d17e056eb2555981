package video

import (
	"context"
	"errors"
	"image"
	"io"

	"fall-detector-go/pkg/models"
)

// ErrUnsupported формат источника не поддерживается текущей сборкой
var ErrUnsupported = errors.New("unsupported video source")

// Frame декодированный кадр. Принадлежит итерации цикла, которая его прочитала.
type Frame struct {
	Index     int     // Номер кадра с 1
	Timestamp float64 // Секунды от начала
	Width     int
	Height    int
	Image     image.Image
}

// Source источник кадров. Next возвращает io.EOF в конце потока.
type Source interface {
	Info() models.VideoInfo
	Next(ctx context.Context) (*Frame, error)
	Close() error
}

// Sink приемник размеченных кадров
type Sink interface {
	Write(frame *Frame) error
	Close() error
}

// IsEOF конец потока
func IsEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

// Open открывает источник по пути: каталог с кадрами или видеофайл (сборка с gocv)
func Open(path string, defaultFPS float64) (Source, error) {
	if isDir(path) {
		return OpenImageSequence(path, defaultFPS)
	}
	return openCapture(path)
}

// Create создает приемник: каталог для кадров или видеофайл (сборка с gocv)
func Create(path string, info models.VideoInfo) (Sink, error) {
	if IsVideoFile(path) {
		return createWriter(path, info)
	}
	return NewImageSequenceSink(path)
}

// NullSink отбрасывает кадры
type NullSink struct{}

func (NullSink) Write(*Frame) error { return nil }
func (NullSink) Close() error       { return nil }
