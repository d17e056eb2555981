package video

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"fall-detector-go/pkg/models"
)

var (
	alertColor    = color.RGBA{R: 255, A: 255}
	keypointColor = color.RGBA{G: 255, A: 255}
)

const (
	boxThickness   = 2
	keypointRadius = 2
	alertBanner    = "ALERT: Fall Detected!"
)

// Annotator рисует на кадре рамки падений, подписи и ключевые точки
type Annotator struct {
	face font.Face
}

// NewAnnotator создает разметчик со встроенным растровым шрифтом
func NewAnnotator() *Annotator {
	return &Annotator{face: basicfont.Face7x13}
}

// Canvas возвращает изменяемую копию изображения кадра
func (a *Annotator) Canvas(frame *Frame) (*image.RGBA, error) {
	if frame == nil || frame.Image == nil {
		return nil, fmt.Errorf("frame has no pixel buffer")
	}
	if rgba, ok := frame.Image.(*image.RGBA); ok {
		return rgba, nil
	}
	b := frame.Image.Bounds()
	canvas := image.NewRGBA(b)
	draw.Draw(canvas, b, frame.Image, b.Min, draw.Src)
	frame.Image = canvas
	return canvas, nil
}

// DrawFall рамка, подпись "FALL (TYPE) 0.87" и баннер тревоги
func (a *Annotator) DrawFall(frame *Frame, info *models.FallInfo) error {
	if info == nil {
		return nil
	}
	canvas, err := a.Canvas(frame)
	if err != nil {
		return err
	}
	r := image.Rect(info.BBox.X1, info.BBox.Y1, info.BBox.X2, info.BBox.Y2).Intersect(canvas.Bounds())
	if r.Empty() {
		return fmt.Errorf("bbox %v outside frame", info.BBox.Slice())
	}
	drawRect(canvas, r, alertColor, boxThickness)

	label := fmt.Sprintf("FALL (%s) %.2f", strings.ToUpper(string(info.Type)), info.Confidence)
	a.drawText(canvas, label, r.Min.X, r.Min.Y-10)
	a.drawText(canvas, alertBanner, 10, 50)
	return nil
}

// DrawBanner только баннер тревоги (окно голосования без кандидата на кадре)
func (a *Annotator) DrawBanner(frame *Frame) error {
	canvas, err := a.Canvas(frame)
	if err != nil {
		return err
	}
	a.drawText(canvas, alertBanner, 10, 50)
	return nil
}

// DrawPoses ключевые точки; нулевые координаты пропускаются
func (a *Annotator) DrawPoses(frame *Frame, poses []models.Pose) error {
	if len(poses) == 0 {
		return nil
	}
	canvas, err := a.Canvas(frame)
	if err != nil {
		return err
	}
	for _, p := range poses {
		for _, kp := range p.Keypoints {
			if kp.X <= 0 || kp.Y <= 0 {
				continue
			}
			x, y := int(kp.X), int(kp.Y)
			dot := image.Rect(x-keypointRadius, y-keypointRadius, x+keypointRadius+1, y+keypointRadius+1)
			draw.Draw(canvas, dot.Intersect(canvas.Bounds()), image.NewUniform(keypointColor), image.Point{}, draw.Src)
		}
	}
	return nil
}

func (a *Annotator) drawText(canvas *image.RGBA, text string, x, y int) {
	if y < a.face.Metrics().Ascent.Ceil() {
		y = a.face.Metrics().Ascent.Ceil()
	}
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(alertColor),
		Face: a.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func drawRect(canvas *image.RGBA, r image.Rectangle, c color.Color, thickness int) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(canvas, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}
