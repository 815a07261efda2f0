package slam

import (
	"bytes"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func featureByKind(t *testing.T, fc *geojson.FeatureCollection, kind string) *geojson.Feature {
	t.Helper()
	for _, f := range fc.Features {
		if f.Properties.MustString("kind") == kind {
			return f
		}
	}
	return nil
}

func TestMapToFeatureCollection_OccupiedCells(t *testing.T) {
	fc := MapToFeatureCollection(GeoJSONExport{Grid: smallMap()})
	require.Len(t, fc.Features, 1)

	f := featureByKind(t, fc, FeatureOccupied)
	require.NotNil(t, f)
	mp, ok := f.Geometry.(orb.MultiPoint)
	require.True(t, ok)
	require.Len(t, mp, 1)
	// cell (7, 5) spans [2, 3) x [0, 1)
	assert.Equal(t, orb.Point{2.5, 0.5}, mp[0])
	assert.Equal(t, 1.0, f.Properties["cellSize"])
}

func TestMapToFeatureCollection_Trajectories(t *testing.T) {
	straight := []Pose{NewPose(0, 0, 0), NewPose(1, 0.01, 0), NewPose(2, 0, 0), NewPose(3, 0.01, 0)}
	pose := NewPose(3, 0, 0.5)

	fc := MapToFeatureCollection(GeoJSONExport{
		Trajectory:  straight,
		GroundTruth: straight[:1],
		Pose:        &pose,
		Tolerance:   0.05,
	})

	est := featureByKind(t, fc, FeatureEstimate)
	require.NotNil(t, est)
	ls, ok := est.Geometry.(orb.LineString)
	require.True(t, ok)
	assert.Equal(t, orb.LineString{{0, 0}, {3, 0.01}}, ls, "near collinear poses are simplified away")
	assert.Equal(t, 4, est.Properties["poses"])

	assert.Nil(t, featureByKind(t, fc, FeatureReference), "a single pose is not a line")

	p := featureByKind(t, fc, FeatureRobotPose)
	require.NotNil(t, p)
	assert.Equal(t, orb.Point{3, 0}, p.Geometry)
	assert.Equal(t, 0.5, p.Properties["heading"])
}

func TestMapToFeatureCollection_NoTolerance(t *testing.T) {
	poses := []Pose{NewPose(0, 0, 0), NewPose(1, 0, 0), NewPose(2, 0, 0)}
	fc := MapToFeatureCollection(GeoJSONExport{Trajectory: poses})
	ls := featureByKind(t, fc, FeatureEstimate).Geometry.(orb.LineString)
	assert.Len(t, ls, 3)
}

func TestWriteGeoJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, GeoJSONExport{Grid: smallMap()}))

	fc, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "MultiPoint", fc.Features[0].Geometry.GeoJSONType())
}
