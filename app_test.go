package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kwv/fastslam/slam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	slam.SetLogger(nil)
}

// newTestApp returns an App writing to a buffer
func newTestApp() (*App, *bytes.Buffer) {
	var out bytes.Buffer
	app := NewApp()
	app.Out = &out
	return app, &out
}

// writeDataset records a short drive along the x axis in the default room
func writeDataset(t *testing.T, records int) string {
	t.Helper()
	scanner := slam.LaserScanner{Columns: 36, MaxRange: 30}
	world := slam.DefaultWorld()

	data := make([]slam.SensorRecord, records)
	for i := range data {
		pose := slam.NewPose(-5+0.2*float64(i), -3, 0)
		scan := scanner.Scan(pose, world, nil)
		ranges := make([]float64, scan.Len())
		for j, m := range scan.Measurements {
			ranges[j] = m.Distance
		}
		data[i] = slam.SensorRecord{
			StartAngle:        0,
			AngularResolution: 2 * math.Pi / 36,
			MaximumRange:      30,
			Ranges:            ranges,
			Pose:              slam.OdometryPose{X: pose.Position.X, Y: pose.Position.Y, Theta: pose.Heading},
			Timestamp:         1000 + 0.5*float64(i),
		}
	}

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, os.WriteFile(path, raw, 0644))
	return path
}

func TestNewApp(t *testing.T) {
	app := NewApp()
	require.NotNil(t, app.Config)
	assert.NotEmpty(t, app.Session)
	assert.Nil(t, app.Filter)
	assert.Nil(t, app.Publisher)
}

func TestApp_LoadConfig(t *testing.T) {
	app, _ := newTestApp()
	require.NoError(t, app.LoadConfig(""))
	assert.Equal(t, 50, app.Config.Filter.NumParticles)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("filter:\n  numParticles: 12\n"), 0644))
	require.NoError(t, app.LoadConfig(path))
	assert.Equal(t, 12, app.Config.Filter.NumParticles)

	err := app.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
	assert.Equal(t, 12, app.Config.Filter.NumParticles, "failed load keeps the previous config")
}

func TestApp_RunSimulate(t *testing.T) {
	app, out := newTestApp()
	output := filepath.Join(t.TempDir(), "map.png")

	err := app.RunSimulate(SimulateOptions{Steps: 6, Particles: 4, Seed: 11, Output: output, Plot: true})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Simulating 6 steps with 4 particles (seed 11)")
	assert.Contains(t, out.String(), "Map written to "+output)
	assert.Contains(t, out.String(), "effective particle count per cycle")

	assert.Equal(t, 6, app.Filter.Stats().Cycle)
	assert.Equal(t, 4, app.Filter.Len())
	assert.Len(t, app.State.TrajectoryPoses(), 6)
	assert.Len(t, app.State.GroundTruth(), 6)

	info, err := os.Stat(output)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestApp_RunSimulate_SVG(t *testing.T) {
	app, _ := newTestApp()
	output := filepath.Join(t.TempDir(), "map.svg")

	require.NoError(t, app.RunSimulate(SimulateOptions{Steps: 3, Particles: 3, Seed: 5, Output: output}))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
}

func TestApp_RunSimulate_UnsupportedFormat(t *testing.T) {
	app, _ := newTestApp()
	err := app.RunSimulate(SimulateOptions{Steps: 2, Particles: 2, Seed: 1, Output: filepath.Join(t.TempDir(), "map.bmp")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported map format")
}

func TestApp_RunSimulate_InvalidConfig(t *testing.T) {
	app, _ := newTestApp()
	app.Config.Filter.SampleCount = 0
	err := app.RunSimulate(SimulateOptions{Steps: 2})
	assert.ErrorIs(t, err, slam.ErrInvalidConfig)
}

func TestApp_RunSimulate_WorldOutsideGrid(t *testing.T) {
	app, _ := newTestApp()
	app.Config.Filter.GridSize = 20 // 5 m across, the room is 20 m
	err := app.RunSimulate(SimulateOptions{Steps: 2, Particles: 2})
	require.ErrorIs(t, err, slam.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "does not fit")
}

func TestApp_RunReplay(t *testing.T) {
	app, out := newTestApp()
	path := writeDataset(t, 5)

	err := app.RunReplay(ReplayOptions{Source: path, Particles: 4, Seed: 3, Limit: 4})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Replaying 4 records")
	stats := app.Filter.Stats()
	assert.Equal(t, 4, stats.Cycle)
	// timestamps are 0.5s apart
	assert.InDelta(t, 0.5, stats.Dt, 1e-9)
	assert.Equal(t, 30.0, app.Filter.Config().Likelihood.MaxRange)

	truth := app.State.GroundTruth()
	require.Len(t, truth, 4)
	assert.InDelta(t, -4.4, truth[3].Position.X, 1e-9)
}

func TestApp_RunReplay_MissingDataset(t *testing.T) {
	app, _ := newTestApp()
	err := app.RunReplay(ReplayOptions{Source: filepath.Join(t.TempDir(), "nope.json")})
	assert.Error(t, err)
}

func TestApp_HandleScan(t *testing.T) {
	app, _ := newTestApp()
	require.NoError(t, app.newFilter(app.Config.Filter, 3, 9))

	scan := slam.DefaultLaserScanner().Scan(slam.Pose{}, slam.DefaultWorld(), nil)
	app.HandleScan(&slam.ScanMessage{Measurements: scan.Measurements}, nil)
	assert.Equal(t, 1, app.State.Stats().Cycle)

	// decode errors are dropped
	app.HandleScan(nil, errors.New("bad payload"))
	assert.Equal(t, 1, app.State.Stats().Cycle)

	app.HandleScan(&slam.ScanMessage{Measurements: scan.Measurements, Twist: slam.Twist{Velocity: 0.1}}, nil)
	assert.Equal(t, 2, app.State.Stats().Cycle)
	_, ok := app.State.Estimate()
	assert.True(t, ok)
}

func TestApp_HandleScanPublishes(t *testing.T) {
	app, _ := newTestApp()
	require.NoError(t, app.newFilter(app.Config.Filter, 2, 9))

	client := slam.NewMockClient()
	client.SetConnected(true)
	app.Publisher = slam.NewPublisher(client)

	scan := slam.DefaultLaserScanner().Scan(slam.Pose{}, slam.DefaultWorld(), nil)
	app.HandleScan(&slam.ScanMessage{Measurements: scan.Measurements}, nil)

	msgs := client.GetPublishedMessages()
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasSuffix(msgs[0].Topic, "/pose"))
}

func TestApp_WriteMapWithoutEstimate(t *testing.T) {
	app, _ := newTestApp()
	app.State = slam.NewStateTracker(0)
	err := app.writeMap(filepath.Join(t.TempDir(), "map.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no map to write")
}

func TestApp_RunSimulate_GeoJSON(t *testing.T) {
	app, _ := newTestApp()
	output := filepath.Join(t.TempDir(), "map.geojson")

	require.NoError(t, app.RunSimulate(SimulateOptions{Steps: 3, Particles: 2, Seed: 8, Output: output}))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"FeatureCollection"`)
	assert.Contains(t, string(data), `"occupied"`)
}

func TestApp_LiveFilterFollowsScanTimestamps(t *testing.T) {
	app, _ := newTestApp()
	require.NoError(t, app.newLiveFilter())
	assert.False(t, app.Filter.Config().Simulation)

	scan := slam.DefaultLaserScanner().Scan(slam.Pose{}, slam.DefaultWorld(), nil)
	app.HandleScan(&slam.ScanMessage{Measurements: scan.Measurements, Timestamp: 100}, nil)
	app.HandleScan(&slam.ScanMessage{Measurements: scan.Measurements, Timestamp: 100.25}, nil)
	assert.InDelta(t, 0.25, app.Filter.Stats().Dt, 1e-9)

	app.HandleScan(&slam.ScanMessage{Measurements: scan.Measurements, Timestamp: 102.25}, nil)
	assert.InDelta(t, 2.0, app.Filter.Stats().Dt, 1e-9)
	assert.Equal(t, 3, app.State.Stats().Cycle)
}

func TestApp_LiveFilterWithoutTimestamps(t *testing.T) {
	app, _ := newTestApp()
	require.NoError(t, app.newLiveFilter())

	scan := slam.DefaultLaserScanner().Scan(slam.Pose{}, slam.DefaultWorld(), nil)
	app.HandleScan(&slam.ScanMessage{Measurements: scan.Measurements}, nil)

	// arrival time drives dt, floored at MinDt, never the fixed simulation step
	dt := app.Filter.Stats().Dt
	assert.GreaterOrEqual(t, dt, app.Config.Filter.MinDt)
	assert.Less(t, dt, app.Config.Filter.SimulationDt)
}
