package slam

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleDataset = `[
  {
    "start_angle": -1.5707963,
    "angular_resolution": 0.0174533,
    "maximum_range": 81.83,
    "ranges": [1.0, 2.0, 3.0],
    "pose": {"x": 0.0, "y": 0.0, "theta": 0.0},
    "timestamp": 100.0
  },
  {
    "start_angle": -1.5707963,
    "angular_resolution": 0.0174533,
    "maximum_range": 50.0,
    "ranges": [1.5, 2.5, 3.5],
    "pose": {"x": 1.0, "y": 0.0, "theta": 0.2},
    "timestamp": 102.0
  }
]`

func TestParseDataset(t *testing.T) {
	d, err := ParseDataset(strings.NewReader(sampleDataset))
	if err != nil {
		t.Fatalf("ParseDataset() error: %v", err)
	}
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}
	if got := d.MaxRange(); got != 81.83 {
		t.Errorf("MaxRange() = %f, want 81.83", got)
	}

	rec := d.Records[1]
	if rec.Pose.Pose() != NewPose(1, 0, 0.2) {
		t.Errorf("Pose() = %+v", rec.Pose.Pose())
	}

	scan := rec.Scan()
	if scan.Len() != 3 {
		t.Fatalf("Scan().Len() = %d, want 3", scan.Len())
	}
	if !almostEqual(scan.Measurements[2].Angle, -1.5707963+2*0.0174533, 1e-12) {
		t.Errorf("third angle = %f", scan.Measurements[2].Angle)
	}
	if scan.Measurements[2].Distance != 3.5 {
		t.Errorf("third distance = %f, want 3.5", scan.Measurements[2].Distance)
	}
}

func TestParseDataset_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		isEmpty bool
	}{
		{"empty array", "[]", true},
		{"not json", "ranges: 1 2 3", false},
		{"wrong shape", `{"ranges": [1]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDataset(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrEmptyDataset) != tt.isEmpty {
				t.Errorf("errors.Is(err, ErrEmptyDataset) = %v, want %v (err: %v)", !tt.isEmpty, tt.isEmpty, err)
			}
		})
	}
}

func TestLoadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	if err := os.WriteFile(path, []byte(sampleDataset), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadDataset(path)
	if err != nil {
		t.Fatalf("LoadDataset() error: %v", err)
	}
	if d.Len() != 2 {
		t.Errorf("Len() = %d, want 2", d.Len())
	}

	if _, err := LoadDataset(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadDataset_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json.gz")
	if err := os.WriteFile(path, gzipped(t, sampleDataset), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadDataset(path)
	if err != nil {
		t.Fatalf("LoadDataset() error: %v", err)
	}
	if d.Len() != 2 {
		t.Errorf("Len() = %d, want 2", d.Len())
	}

	// plain JSON behind a .gz name is rejected
	bad := filepath.Join(t.TempDir(), "plain.json.gz")
	if err := os.WriteFile(bad, []byte(sampleDataset), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDataset(bad); err == nil || !strings.Contains(err.Error(), "gzip") {
		t.Errorf("expected gzip error, got %v", err)
	}
}

func TestControlBetween(t *testing.T) {
	rec := func(x, y, theta, ts float64) SensorRecord {
		return SensorRecord{Pose: OdometryPose{X: x, Y: y, Theta: theta}, Timestamp: ts}
	}

	tests := []struct {
		name     string
		prev     SensorRecord
		curr     SensorRecord
		velocity float64
		angular  float64
		wantDt   float64
	}{
		{"forward", rec(0, 0, 0, 0), rec(2, 0, 0, 2), 1, 0, 2},
		{"backward", rec(0, 0, 0, 0), rec(-1, 0, 0, 1), -1, 0, 1},
		{"turn", rec(0, 0, 0, 10), rec(0, 0, math.Pi/2, 11), 0, math.Pi / 2, 1},
		{"turn across pi", rec(0, 0, 3, 0), rec(0, 0, -3, 1), 0, 2*math.Pi - 6, 1},
		{"heading sets direction", rec(1, 1, math.Pi/2, 0), rec(1, 3, math.Pi/2, 0.5), 4, 0, 0.5},
		{"same timestamp", rec(0, 0, 0, 5), rec(1, 0, 0, 5), 0, 0, 0},
		{"time goes back", rec(0, 0, 0, 5), rec(1, 0, 0, 4), 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			control, dt := ControlBetween(tt.prev, tt.curr)
			if !almostEqual(dt, tt.wantDt, 1e-12) {
				t.Errorf("dt = %f, want %f", dt, tt.wantDt)
			}
			if !almostEqual(control.Velocity, tt.velocity, 1e-9) {
				t.Errorf("Velocity = %f, want %f", control.Velocity, tt.velocity)
			}
			if !almostEqual(control.Angular, tt.angular, 1e-9) {
				t.Errorf("Angular = %f, want %f", control.Angular, tt.angular)
			}
		})
	}
}
