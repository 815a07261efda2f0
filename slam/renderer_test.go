package slam

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallMap returns a 10x10 map of 1m cells with one wall hit at (2, 0)
func smallMap() *GridMap {
	grid := NewGridMap(10, 1)
	grid.Update(Pose{}, NewScan(Measurement{Angle: 0, Distance: 2}))
	return grid
}

func TestMapRenderer_Bounds(t *testing.T) {
	r := NewMapRenderer(smallMap())
	b := r.Bounds()
	assert.Equal(t, 60, b.Dx())
	assert.Equal(t, 60+legendHeight, b.Dy())

	r.Legend = false
	r.Scale = 2
	r.Padding = 0
	b = r.Bounds()
	assert.Equal(t, 20, b.Dx())
	assert.Equal(t, 20, b.Dy())
}

func TestMapRenderer_CellColors(t *testing.T) {
	r := NewMapRenderer(smallMap())
	r.Legend = false
	img := r.Render()

	// pixel inside cell (row, col): x = pad + row*scale, y = pad + (n-1-col)*scale
	at := func(row, col int) color.RGBA {
		return img.RGBAAt(r.Padding+row*r.Scale+1, r.Padding+(9-col)*r.Scale+1)
	}
	assert.Equal(t, color.RGBA{100, 100, 100, 255}, at(7, 5), "occupied")
	assert.Equal(t, r.Colors.Free, at(6, 5), "free")
	assert.Equal(t, r.Colors.Free, at(5, 5), "free")
	assert.Equal(t, r.Colors.Void, at(0, 0), "void")
}

func TestMapRenderer_CellColorDarkensWithHits(t *testing.T) {
	r := NewMapRenderer(NewGridMap(4, 1))
	assert.Equal(t, r.Colors.Void, r.cellColor(Void()))
	assert.Equal(t, r.Colors.Free, r.cellColor(Freespace()))
	assert.Equal(t, color.RGBA{100, 100, 100, 255}, r.cellColor(Occupied(1)))
	assert.Equal(t, color.RGBA{60, 60, 60, 255}, r.cellColor(Occupied(3)))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, r.cellColor(Occupied(6)))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, r.cellColor(Occupied(40)))
}

func TestMapRenderer_EncodePNG(t *testing.T) {
	r := NewMapRenderer(smallMap())
	r.Trajectory = []Pose{NewPose(0, 0, 0), NewPose(1, 1, 0), NewPose(500, 500, 0)}
	r.GroundTruth = []Pose{NewPose(0, 0, 0), NewPose(1, 0.5, 0)}
	pose := NewPose(1, 1, 0.5)
	r.Pose = &pose

	var buf bytes.Buffer
	require.NoError(t, r.EncodePNG(&buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, r.Bounds(), img.Bounds())
}

func TestMapRenderer_SavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.png")
	require.NoError(t, NewMapRenderer(smallMap()).SavePNG(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	_, err = png.Decode(f)
	assert.NoError(t, err)

	assert.Error(t, NewMapRenderer(smallMap()).SavePNG(filepath.Join(t.TempDir(), "no", "map.png")))
}
