package slam

import (
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
)

// Feature kinds written to the "kind" property
const (
	FeatureOccupied  = "occupied"
	FeatureEstimate  = "estimate"
	FeatureReference = "reference"
	FeatureRobotPose = "pose"
)

// GeoJSONExport describes what MapToFeatureCollection writes. Coordinates are
// world meters, not WGS84.
type GeoJSONExport struct {
	Grid        *GridMap
	Trajectory  []Pose
	GroundTruth []Pose
	Pose        *Pose
	Tolerance   float64 // Douglas-Peucker tolerance for trajectories in meters; 0 keeps every pose
}

// MapToFeatureCollection exports the occupied cells as one MultiPoint of cell
// centers, each trajectory as a LineString and the current pose as a Point.
// Trajectories with fewer than two poses are left out.
func MapToFeatureCollection(export GeoJSONExport) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if export.Grid != nil {
		cells := export.Grid.OccupiedCells()
		half := export.Grid.CellSize() / 2
		mp := make(orb.MultiPoint, cells.Len())
		for i := range mp {
			idx := cells.At(i)
			corner := export.Grid.MapToWorld(int(idx.X), int(idx.Y))
			mp[i] = orb.Point{corner.X + half, corner.Y + half}
		}
		f := geojson.NewFeature(mp)
		f.Properties["kind"] = FeatureOccupied
		f.Properties["cellSize"] = export.Grid.CellSize()
		f.Properties["count"] = len(mp)
		fc.Append(f)
	}

	for _, path := range []struct {
		kind  string
		poses []Pose
	}{
		{FeatureEstimate, export.Trajectory},
		{FeatureReference, export.GroundTruth},
	} {
		ls := poseLineString(path.poses, export.Tolerance)
		if len(ls) < 2 {
			continue
		}
		f := geojson.NewFeature(ls)
		f.Properties["kind"] = path.kind
		f.Properties["poses"] = len(path.poses)
		fc.Append(f)
	}

	if export.Pose != nil {
		f := geojson.NewFeature(orb.Point{export.Pose.Position.X, export.Pose.Position.Y})
		f.Properties["kind"] = FeatureRobotPose
		f.Properties["heading"] = export.Pose.Heading
		fc.Append(f)
	}

	return fc
}

func poseLineString(poses []Pose, tolerance float64) orb.LineString {
	ls := make(orb.LineString, len(poses))
	for i, p := range poses {
		ls[i] = orb.Point{p.Position.X, p.Position.Y}
	}
	if tolerance <= 0 || len(ls) < 3 {
		return ls
	}
	simplified, ok := simplify.DouglasPeucker(tolerance).Simplify(ls.Clone()).(orb.LineString)
	if !ok {
		return ls
	}
	return simplified
}

// WriteGeoJSON encodes the export as a GeoJSON FeatureCollection
func WriteGeoJSON(w io.Writer, export GeoJSONExport) error {
	data, err := MapToFeatureCollection(export).MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling GeoJSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing GeoJSON: %w", err)
	}
	return nil
}
