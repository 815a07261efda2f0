package slam

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorRenderer_Size(t *testing.T) {
	r := NewVectorRenderer(smallMap())
	w, h := r.Size()
	assert.InDelta(t, 110.0, w, 1e-9)
	assert.InDelta(t, 110.0, h, 1e-9)

	r.Padding = 0
	r.Scale = 2
	w, _ = r.Size()
	assert.InDelta(t, 20.0, w, 1e-9)
}

func TestVectorRenderer_ToCanvas(t *testing.T) {
	r := NewVectorRenderer(smallMap())
	x, y := r.toCanvas(Point{})
	assert.InDelta(t, 55.0, x, 1e-9)
	assert.InDelta(t, 55.0, y, 1e-9)

	x, y = r.toCanvas(Point{X: -5.5, Y: 5.5})
	assert.InDelta(t, 0.0, x, 1e-9)
	assert.InDelta(t, 110.0, y, 1e-9)
}

func TestVectorRenderer_RenderToSVG(t *testing.T) {
	r := NewVectorRenderer(smallMap())
	r.Trajectory = []Pose{NewPose(0, 0, 0), NewPose(1, 0.5, 0), NewPose(2, 1, 0)}
	r.GroundTruth = []Pose{NewPose(0, 0, 0), NewPose(1, 0, 0)}
	pose := NewPose(2, 1, 0.3)
	r.Pose = &pose

	var buf bytes.Buffer
	require.NoError(t, r.RenderToSVG(&buf))

	out := buf.String()
	assert.True(t, strings.Contains(out, "<svg"), "output is not SVG")
	assert.Contains(t, out, "<path")
}

func TestVectorRenderer_EmptyMap(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewVectorRenderer(NewGridMap(10, 1)).RenderToSVG(&buf))
	assert.Contains(t, buf.String(), "<svg")
}

func TestVectorRenderer_RenderToPNG(t *testing.T) {
	r := NewVectorRenderer(smallMap())
	r.Trajectory = []Pose{NewPose(0, 0, 0), NewPose(1, 1, 0)}

	var buf bytes.Buffer
	require.NoError(t, r.RenderToPNG(&buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	// 110mm at 150 DPI
	assert.InDelta(t, 650, img.Bounds().Dx(), 1)
	assert.Equal(t, img.Bounds().Dx(), img.Bounds().Dy())
}
