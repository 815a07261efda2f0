package slam

import (
	"fmt"
	"math"
)

// CellKind classifies an occupancy grid cell
type CellKind uint8

const (
	// CellVoid is unobserved space (initial state)
	CellVoid CellKind = iota
	// CellFreespace has been crossed by a ray but never hit
	CellFreespace
	// CellOccupied has terminated at least one ray
	CellOccupied
)

func (k CellKind) String() string {
	switch k {
	case CellVoid:
		return "Void"
	case CellFreespace:
		return "Freespace"
	case CellOccupied:
		return "Occupied"
	default:
		return fmt.Sprintf("CellKind(%d)", uint8(k))
	}
}

// CellState is the state of one grid cell. Hits is only meaningful for
// occupied cells.
type CellState struct {
	Kind CellKind `json:"kind"`
	Hits uint32   `json:"hits,omitempty"`
}

// Void returns the unobserved state
func Void() CellState { return CellState{Kind: CellVoid} }

// Freespace returns the free state
func Freespace() CellState { return CellState{Kind: CellFreespace} }

// Occupied returns an occupied state with the given hit count
func Occupied(hits uint32) CellState { return CellState{Kind: CellOccupied, Hits: hits} }

// IsOccupied reports whether the cell has been hit
func (c CellState) IsOccupied() bool { return c.Kind == CellOccupied }

func (c CellState) String() string {
	if c.Kind == CellOccupied {
		return fmt.Sprintf("Occupied(%d)", c.Hits)
	}
	return c.Kind.String()
}

const (
	// DefaultGridSize is the number of cells per side of a default grid
	DefaultGridSize = 111
	// DefaultCellSize is the edge length of a default cell in meters
	DefaultCellSize = 0.25
)

// GridMap is a square occupancy grid centered on the world origin.
// Row indexes the x axis and col the y axis.
type GridMap struct {
	size     int
	cellSize float64
	cells    []CellState
	occupied []int // flat indices in first-hit order
}

// NewGridMap creates an all-Void grid of size x size cells
func NewGridMap(size int, cellSize float64) *GridMap {
	if size <= 0 || cellSize <= 0 {
		panic(fmt.Sprintf("slam: invalid grid dimensions size=%d cellSize=%f", size, cellSize))
	}
	return &GridMap{
		size:     size,
		cellSize: cellSize,
		cells:    make([]CellState, size*size),
	}
}

// DefaultGridMap creates a grid with DefaultGridSize cells of DefaultCellSize
func DefaultGridMap() *GridMap {
	return NewGridMap(DefaultGridSize, DefaultCellSize)
}

// Size returns the number of cells per side
func (g *GridMap) Size() int { return g.size }

// CellSize returns the cell edge length in meters
func (g *GridMap) CellSize() float64 { return g.cellSize }

// Clear resets every cell to Void
func (g *GridMap) Clear() {
	for i := range g.cells {
		g.cells[i] = Void()
	}
	g.occupied = g.occupied[:0]
}

// Clone returns a deep copy of the grid
func (g *GridMap) Clone() *GridMap {
	c := &GridMap{
		size:     g.size,
		cellSize: g.cellSize,
		cells:    make([]CellState, len(g.cells)),
		occupied: make([]int, len(g.occupied)),
	}
	copy(c.cells, g.cells)
	copy(c.occupied, g.occupied)
	return c
}

// WorldToMap converts a world coordinate into grid indices.
// ok is false when the point falls outside the grid.
func (g *GridMap) WorldToMap(p Point) (row, col int, ok bool) {
	row, ok = g.axisIndex(p.X)
	if !ok {
		return 0, 0, false
	}
	col, ok = g.axisIndex(p.Y)
	if !ok {
		return 0, 0, false
	}
	return row, col, true
}

func (g *GridMap) axisIndex(coord float64) (int, bool) {
	v := math.Floor(coord/g.cellSize + float64(g.size)/2)
	if math.IsNaN(v) || v < 0 || v >= float64(g.size) {
		return 0, false
	}
	return int(v), true
}

// MapToWorld returns the world coordinate of the lower corner of a cell
func (g *GridMap) MapToWorld(row, col int) Point {
	half := float64(g.size) / 2
	return Point{
		X: (float64(row) - half) * g.cellSize,
		Y: (float64(col) - half) * g.cellSize,
	}
}

func (g *GridMap) inBounds(row, col int) bool {
	return row >= 0 && row < g.size && col >= 0 && col < g.size
}

// CellState returns the state at (row, col); ok is false out of range
func (g *GridMap) CellState(row, col int) (CellState, bool) {
	if !g.inBounds(row, col) {
		return CellState{}, false
	}
	return g.cells[row*g.size+col], true
}

// Update carves free space along every measurement ray and records the hit
// cell. Measurements whose robot or hit cell falls outside the grid are
// skipped; the number of skipped measurements is returned.
func (g *GridMap) Update(pose Pose, scan Scan) int {
	skipped := 0
	r0, c0, ok := g.WorldToMap(pose.Position)
	if !ok {
		return scan.Len()
	}
	for _, m := range scan.Measurements {
		r1, c1, ok := g.WorldToMap(m.ToPoint(pose))
		if !ok {
			skipped++
			continue
		}
		g.traceRay(r0, c0, r1, c1)
	}
	return skipped
}

// traceRay walks the integer line from (r0,c0) to (r1,c1) with Bresenham's
// algorithm, marking every cell but the last free and the last occupied.
func (g *GridMap) traceRay(r0, c0, r1, c1 int) {
	dr := abs(r1 - r0)
	dc := -abs(c1 - c0)
	sr, sc := 1, 1
	if r0 > r1 {
		sr = -1
	}
	if c0 > c1 {
		sc = -1
	}
	err := dr + dc

	r, c := r0, c0
	for {
		if r == r1 && c == c1 {
			g.markHit(r, c)
			return
		}
		g.markFree(r, c)

		e2 := 2 * err
		if e2 >= dc {
			err += dc
			r += sr
		}
		if e2 <= dr {
			err += dr
			c += sc
		}
	}
}

func (g *GridMap) markFree(row, col int) {
	if !g.inBounds(row, col) {
		return
	}
	idx := row*g.size + col
	if g.cells[idx].Kind == CellVoid {
		g.cells[idx] = Freespace()
	}
}

func (g *GridMap) markHit(row, col int) {
	if !g.inBounds(row, col) {
		return
	}
	idx := row*g.size + col
	cell := g.cells[idx]
	if cell.Kind == CellOccupied {
		g.cells[idx] = Occupied(cell.Hits + 1)
		return
	}
	g.cells[idx] = Occupied(1)
	g.occupied = append(g.occupied, idx)
}

// OccupiedCells returns the grid-index coordinates (X = row, Y = col) of
// every occupied cell, in the order they were first hit
func (g *GridMap) OccupiedCells() PointCloud {
	pc := PointCloud{points: make([]Point, len(g.occupied))}
	for i, idx := range g.occupied {
		pc.points[i] = Point{X: float64(idx / g.size), Y: float64(idx % g.size)}
	}
	return pc
}

// OccupiedCount returns the number of occupied cells
func (g *GridMap) OccupiedCount() int { return len(g.occupied) }

// FreeCount returns the number of free cells
func (g *GridMap) FreeCount() int {
	n := 0
	for _, c := range g.cells {
		if c.Kind == CellFreespace {
			n++
		}
	}
	return n
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
