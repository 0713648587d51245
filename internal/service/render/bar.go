package render

import (
	"context"
	"image"
	"image/color"
	"image/draw"

	"molding-report/internal/service/summary"
)

var barPalette = []color.RGBA{
	{R: 0x2f, G: 0x6f, B: 0xb3, A: 0xff},
	{R: 0xe0, G: 0x7b, B: 0x39, A: 0xff},
	{R: 0x4c, G: 0xa5, B: 0x6a, A: 0xff},
	{R: 0xc4, G: 0x3c, B: 0x3c, A: 0xff},
}

// BarRenderer draws one grouped bar per table row and column. It carries
// no labels; the tabular export holds the numbers.
type BarRenderer struct {
	Width  int
	Height int
}

func NewBarRenderer() *BarRenderer {
	return &BarRenderer{Width: 960, Height: 540}
}

func (b *BarRenderer) Render(ctx context.Context, table summary.Table, _ Spec) ([]image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	const margin = 20
	axis := color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
	draw.Draw(img, image.Rect(margin, b.Height-margin, b.Width-margin, b.Height-margin+2), image.NewUniform(axis), image.Point{}, draw.Src)

	series := len(table.Columns)
	if len(table.Rows) == 0 || series == 0 {
		return []image.Image{img}, nil
	}

	peak := 0.0
	for _, r := range table.Rows {
		for _, v := range r.Values {
			peak = max(peak, v)
		}
	}
	if peak <= 0 {
		return []image.Image{img}, nil
	}

	plotW := b.Width - 2*margin
	plotH := b.Height - 2*margin
	slot := plotW / len(table.Rows)
	barW := max(1, (slot-4)/series)

	for i, r := range table.Rows {
		for s, v := range r.Values {
			if s >= series || v <= 0 {
				continue
			}
			h := int(v / peak * float64(plotH))
			x0 := margin + i*slot + 2 + s*barW
			rect := image.Rect(x0, b.Height-margin-h, x0+barW-1, b.Height-margin)
			draw.Draw(img, rect, image.NewUniform(barPalette[s%len(barPalette)]), image.Point{}, draw.Src)
		}
	}

	return []image.Image{img}, nil
}
