//go:build !gocv

package video

import (
	"fmt"

	"fall-detector-go/pkg/models"
)

// Без тега gocv видеофайлы не декодируются, поддерживаются только каталоги кадров

func openCapture(path string) (Source, error) {
	return nil, fmt.Errorf("%w: %s (build with -tags gocv)", ErrUnsupported, path)
}

func createWriter(path string, _ models.VideoInfo) (Sink, error) {
	return nil, fmt.Errorf("%w: %s (build with -tags gocv)", ErrUnsupported, path)
}
