package slam

import (
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorRenderer renders a grid map with trajectories as vector graphics.
// Canvas units are millimeters; Scale converts world meters to them.
type VectorRenderer struct {
	Grid        *GridMap
	Trajectory  []Pose
	GroundTruth []Pose
	Pose        *Pose
	Scale       float64           // canvas mm per world meter
	Padding     float64           // world meters around the grid
	Resolution  canvas.Resolution // PNG output only
	GridSpacing float64           // world meters between grid lines; 0 disables
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer(grid *GridMap) *VectorRenderer {
	return &VectorRenderer{
		Grid:        grid,
		Scale:       10.0,
		Padding:     0.5,
		Resolution:  canvas.DPI(150),
		GridSpacing: 1.0,
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// extent returns the half width of the grid in world meters
func (r *VectorRenderer) extent() float64 {
	return float64(r.Grid.Size()) * r.Grid.CellSize() / 2
}

// Size returns the canvas width and height in mm
func (r *VectorRenderer) Size() (float64, float64) {
	side := (2*r.extent() + 2*r.Padding) * r.Scale
	return side, side
}

func (r *VectorRenderer) toCanvas(p Point) (float64, float64) {
	offset := r.extent() + r.Padding
	return (p.X + offset) * r.Scale, (p.Y + offset) * r.Scale
}

// RenderToSVG writes the map as SVG
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	width, height := r.Size()
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the map as PNG at Resolution
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	width, height := r.Size()
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, width, height)
	return png.Encode(w, rast)
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: color.RGBA{205, 205, 205, 255}}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	free, occupied := r.cellPaths()

	freeStyle := canvas.DefaultStyle
	freeStyle.Fill = canvas.Paint{Color: canvas.White}
	freeStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	if !free.Empty() {
		renderer.RenderPath(free, freeStyle, canvas.Identity)
	}

	occStyle := canvas.DefaultStyle
	occStyle.Fill = canvas.Paint{Color: canvas.Black}
	occStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	if !occupied.Empty() {
		renderer.RenderPath(occupied, occStyle, canvas.Identity)
	}

	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		gridStyle.StrokeWidth = 0.1
		gridStyle.Dashes = []float64{0.5, 0.5}

		ext := r.extent()
		for v := math.Ceil(-ext/r.GridSpacing) * r.GridSpacing; v <= ext; v += r.GridSpacing {
			vertical := &canvas.Path{}
			x1, y1 := r.toCanvas(Point{X: v, Y: -ext})
			x2, y2 := r.toCanvas(Point{X: v, Y: ext})
			vertical.MoveTo(x1, y1)
			vertical.LineTo(x2, y2)
			renderer.RenderPath(vertical, gridStyle, canvas.Identity)

			horizontal := &canvas.Path{}
			x1, y1 = r.toCanvas(Point{X: -ext, Y: v})
			x2, y2 = r.toCanvas(Point{X: ext, Y: v})
			horizontal.MoveTo(x1, y1)
			horizontal.LineTo(x2, y2)
			renderer.RenderPath(horizontal, gridStyle, canvas.Identity)
		}
	}

	r.renderPath(renderer, r.GroundTruth, DefaultMapColors().GroundTruth)
	r.renderPath(renderer, r.Trajectory, DefaultMapColors().Estimate)

	if r.Pose != nil {
		estimate := DefaultMapColors().Estimate
		cx, cy := r.toCanvas(r.Pose.Position)

		bodyStyle := canvas.DefaultStyle
		bodyStyle.Fill = canvas.Paint{Color: estimate}
		bodyStyle.Stroke = canvas.Paint{Color: canvas.Black}
		bodyStyle.StrokeWidth = 0.2
		body := canvas.Circle(0.15 * r.Scale).Translate(cx, cy)
		renderer.RenderPath(body, bodyStyle, canvas.Identity)

		dirStyle := canvas.DefaultStyle
		dirStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		dirStyle.Stroke = canvas.Paint{Color: estimate}
		dirStyle.StrokeWidth = 0.4
		tip := UnitVector(r.Pose.Heading).Scale(0.4 * r.Scale)
		dir := &canvas.Path{}
		dir.MoveTo(cx, cy)
		dir.LineTo(cx+tip.X, cy+tip.Y)
		renderer.RenderPath(dir, dirStyle, canvas.Identity)
	}
}

// cellPaths collects free and occupied cells into one path each
func (r *VectorRenderer) cellPaths() (free, occupied *canvas.Path) {
	free, occupied = &canvas.Path{}, &canvas.Path{}
	n := r.Grid.Size()
	size := r.Grid.CellSize()
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			cell, _ := r.Grid.CellState(row, col)
			var p *canvas.Path
			switch cell.Kind {
			case CellFreespace:
				p = free
			case CellOccupied:
				p = occupied
			default:
				continue
			}
			corner := r.Grid.MapToWorld(row, col)
			x0, y0 := r.toCanvas(corner)
			x1, y1 := r.toCanvas(Point{X: corner.X + size, Y: corner.Y + size})
			p.MoveTo(x0, y0)
			p.LineTo(x1, y0)
			p.LineTo(x1, y1)
			p.LineTo(x0, y1)
			p.Close()
		}
	}
	return free, occupied
}

func (r *VectorRenderer) renderPath(renderer canvasRenderer, poses []Pose, c color.RGBA) {
	if len(poses) < 2 {
		return
	}
	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: canvas.Transparent}
	style.Stroke = canvas.Paint{Color: c}
	style.StrokeWidth = 0.3

	p := &canvas.Path{}
	for i, pose := range poses {
		x, y := r.toCanvas(pose.Position)
		if i == 0 {
			p.MoveTo(x, y)
		} else {
			p.LineTo(x, y)
		}
	}
	renderer.RenderPath(p, style, canvas.Identity)
}
