package slam

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrEmptyDataset is returned when a dataset holds no records
var ErrEmptyDataset = errors.New("dataset has no records")

// OdometryPose is the odometry reading stored with each record
type OdometryPose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Pose converts the reading to a Pose
func (o OdometryPose) Pose() Pose {
	return NewPose(o.X, o.Y, o.Theta)
}

// SensorRecord is one laser sweep of a recorded run (CSAIL log format)
type SensorRecord struct {
	StartAngle        float64      `json:"start_angle"`
	AngularResolution float64      `json:"angular_resolution"`
	MaximumRange      float64      `json:"maximum_range"`
	Ranges            []float64    `json:"ranges"`
	Pose              OdometryPose `json:"pose"`
	Timestamp         float64      `json:"timestamp"` // seconds
}

// Scan converts the record's ranges to a Scan
func (r SensorRecord) Scan() Scan {
	return NewScanFromRanges(r.StartAngle, r.AngularResolution, r.Ranges)
}

// Dataset is an ordered recording of sensor records
type Dataset struct {
	Records []SensorRecord
}

// Len returns the number of records
func (d *Dataset) Len() int {
	return len(d.Records)
}

// MaxRange returns the largest maximum range found in the records
func (d *Dataset) MaxRange() float64 {
	maxRange := 0.0
	for _, r := range d.Records {
		maxRange = math.Max(maxRange, r.MaximumRange)
	}
	return maxRange
}

// LoadDataset reads and parses a dataset file. Files ending in .gz are
// decompressed first.
func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening gzip dataset: %w", err)
		}
		defer func() { _ = zr.Close() }()
		return ParseDataset(zr)
	}
	return ParseDataset(f)
}

// ParseDataset decodes a JSON array of sensor records
func ParseDataset(r io.Reader) (*Dataset, error) {
	var records []SensorRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("parsing dataset JSON: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyDataset
	}
	return &Dataset{Records: records}, nil
}

// ControlBetween derives the twist that moves the odometry of prev to that
// of curr, along with the elapsed time. Backwards motion yields a negative
// velocity. A non-positive time step returns a zero twist and dt = 0.
func ControlBetween(prev, curr SensorRecord) (Twist, float64) {
	dt := curr.Timestamp - prev.Timestamp
	if dt <= 0 {
		return Twist{}, 0
	}

	from := prev.Pose.Pose()
	to := curr.Pose.Pose()
	// displacement in the robot frame of prev: x is ahead, y to the left
	local := PoseTransform(from).Invert().Apply(to.Position)

	forward := local.Norm()
	if local.X < 0 {
		forward = -forward
	}
	return Twist{
		Velocity: forward / dt,
		Angular:  WrapHeading(to.Heading-from.Heading) / dt,
	}, dt
}
