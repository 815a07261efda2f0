package slam

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MapColors holds the palette of the raster renderer
type MapColors struct {
	Void        color.RGBA
	Free        color.RGBA
	Occupied    color.RGBA
	Estimate    color.RGBA
	GroundTruth color.RGBA
	Text        color.RGBA
}

// DefaultMapColors returns the palette used for the HTTP map
func DefaultMapColors() MapColors {
	return MapColors{
		Void:        color.RGBA{205, 205, 205, 255},
		Free:        color.RGBA{255, 255, 255, 255},
		Occupied:    color.RGBA{0, 0, 0, 255},
		Estimate:    color.RGBA{0, 90, 255, 255},
		GroundTruth: color.RGBA{0, 160, 60, 255},
		Text:        color.RGBA{20, 20, 20, 255},
	}
}

// MapRenderer draws a grid map with trajectories onto a raster image.
// Rows of the grid run along +x (left to right) and columns along +y
// (bottom to top).
type MapRenderer struct {
	Grid        *GridMap
	Trajectory  []Pose
	GroundTruth []Pose
	Pose        *Pose // drawn as an arrow when set
	Scale       int   // pixels per cell
	Padding     int
	Legend      bool
	Colors      MapColors
}

// NewMapRenderer creates a renderer for grid with default settings
func NewMapRenderer(grid *GridMap) *MapRenderer {
	return &MapRenderer{
		Grid:    grid,
		Scale:   4,
		Padding: 10,
		Legend:  true,
		Colors:  DefaultMapColors(),
	}
}

// Bounds returns the size of the rendered image
func (r *MapRenderer) Bounds() image.Rectangle {
	side := r.Grid.Size()*r.Scale + 2*r.Padding
	height := side
	if r.Legend {
		height += legendHeight
	}
	return image.Rect(0, 0, side, height)
}

const legendHeight = 60

// toImage converts world coordinates to pixel coordinates
func (r *MapRenderer) toImage(p Point) (int, int) {
	half := float64(r.Grid.Size()) / 2
	fx := p.X/r.Grid.CellSize() + half
	fy := p.Y/r.Grid.CellSize() + half
	x := float64(r.Padding) + fx*float64(r.Scale)
	y := float64(r.Padding) + (float64(r.Grid.Size())-fy)*float64(r.Scale)
	return int(math.Floor(x)), int(math.Floor(y))
}

// Render creates the image
func (r *MapRenderer) Render() *image.RGBA {
	img := image.NewRGBA(r.Bounds())
	fillRect(img, img.Bounds(), color.RGBA{255, 255, 255, 255})

	n := r.Grid.Size()
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			cell, _ := r.Grid.CellState(row, col)
			x0 := r.Padding + row*r.Scale
			y0 := r.Padding + (n-1-col)*r.Scale
			fillRect(img, image.Rect(x0, y0, x0+r.Scale, y0+r.Scale), r.cellColor(cell))
		}
	}

	r.drawPath(img, r.GroundTruth, r.Colors.GroundTruth)
	r.drawPath(img, r.Trajectory, r.Colors.Estimate)
	if r.Pose != nil {
		x, y := r.toImage(r.Pose.Position)
		drawPoseArrow(img, x, y, r.Pose.Heading, r.Scale*3, r.Colors.Estimate)
	}
	if r.Legend {
		r.drawLegend(img)
	}
	return img
}

// cellColor shades occupied cells darker the more often they were hit
func (r *MapRenderer) cellColor(c CellState) color.RGBA {
	switch c.Kind {
	case CellFreespace:
		return r.Colors.Free
	case CellOccupied:
		lift := 120 - 20*int(math.Min(float64(c.Hits), 6))
		oc := r.Colors.Occupied
		return color.RGBA{
			R: uint8(math.Min(255, float64(int(oc.R)+lift))),
			G: uint8(math.Min(255, float64(int(oc.G)+lift))),
			B: uint8(math.Min(255, float64(int(oc.B)+lift))),
			A: 255,
		}
	default:
		return r.Colors.Void
	}
}

func (r *MapRenderer) drawPath(img *image.RGBA, poses []Pose, c color.RGBA) {
	// segments leaving the image by more than its own size are dropped
	limit := img.Bounds().Inset(-img.Bounds().Dx())
	for i := 1; i < len(poses); i++ {
		x0, y0 := r.toImage(poses[i-1].Position)
		x1, y1 := r.toImage(poses[i].Position)
		if !image.Pt(x0, y0).In(limit) || !image.Pt(x1, y1).In(limit) {
			continue
		}
		drawLine(img, x0, y0, x1, y1, c)
	}
}

func (r *MapRenderer) drawLegend(img *image.RGBA) {
	top := img.Bounds().Max.Y - legendHeight
	fillRect(img, image.Rect(0, top, img.Bounds().Max.X, img.Bounds().Max.Y), color.RGBA{245, 245, 245, 255})

	y := top + 16
	fillRect(img, image.Rect(10, y-9, 20, y+1), r.Colors.Estimate)
	drawText(img, 26, y, "estimate", r.Colors.Text)
	fillRect(img, image.Rect(110, y-9, 120, y+1), r.Colors.GroundTruth)
	drawText(img, 126, y, "reference", r.Colors.Text)

	y += 18
	drawText(img, 10, y, fmt.Sprintf("occupied %d  free %d  cell %.2fm",
		r.Grid.OccupiedCount(), r.Grid.FreeCount(), r.Grid.CellSize()), r.Colors.Text)
	if r.Pose != nil {
		y += 18
		drawText(img, 10, y, fmt.Sprintf("pose (%.2f, %.2f) %.0f°",
			r.Pose.Position.X, r.Pose.Position.Y, r.Pose.Heading*180/math.Pi), r.Colors.Text)
	}
}

// EncodePNG renders and writes the image as PNG
func (r *MapRenderer) EncodePNG(w io.Writer) error {
	return png.Encode(w, r.Render())
}

// SavePNG renders the map to a PNG file
func (r *MapRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return r.EncodePNG(f)
}

func fillRect(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	rect = rect.Intersect(img.Bounds())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// drawLine draws a 2px wide Bresenham line
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	bounds := img.Bounds()
	set := func(x, y int) {
		if image.Pt(x, y).In(bounds) {
			img.SetRGBA(x, y, c)
		}
	}

	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		set(x0, y0)
		set(x0+1, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// drawPoseArrow draws a filled circle with a heading tick. heading is in
// world radians; the image y axis points down.
func drawPoseArrow(img *image.RGBA, cx, cy int, heading float64, size int, c color.RGBA) {
	radius := size / 3
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius && image.Pt(cx+dx, cy+dy).In(img.Bounds()) {
				img.SetRGBA(cx+dx, cy+dy, c)
			}
		}
	}
	s, co := math.Sincos(heading)
	tx := cx + int(math.Round(co*float64(size)))
	ty := cy - int(math.Round(s*float64(size)))
	drawLine(img, cx, cy, tx, ty, c)
}

func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
