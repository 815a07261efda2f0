package slam

// Measurement is a polar range reading relative to the robot heading
type Measurement struct {
	Angle    float64 `json:"angle"`
	Distance float64 `json:"distance"`
}

// ToPoint projects the measurement into world coordinates from pose
func (m Measurement) ToPoint(pose Pose) Point {
	return pose.Position.Add(UnitVector(pose.Heading + m.Angle).Scale(m.Distance))
}

// Scan is one sensor sweep, ordered by column
type Scan struct {
	Measurements []Measurement `json:"measurements"`
}

// NewScan creates a scan from measurements
func NewScan(measurements ...Measurement) Scan {
	return Scan{Measurements: measurements}
}

// NewScanFromRanges builds a scan from evenly spaced range readings
func NewScanFromRanges(startAngle, resolution float64, ranges []float64) Scan {
	scan := Scan{Measurements: make([]Measurement, len(ranges))}
	for i, r := range ranges {
		scan.Measurements[i] = Measurement{
			Angle:    startAngle + float64(i)*resolution,
			Distance: r,
		}
	}
	return scan
}

// Len returns the number of measurements
func (s Scan) Len() int { return len(s.Measurements) }

// Add appends a measurement
func (s *Scan) Add(m Measurement) { s.Measurements = append(s.Measurements, m) }

// ToPointCloud projects every measurement into world coordinates
func (s Scan) ToPointCloud(pose Pose) PointCloud {
	pc := PointCloud{points: make([]Point, len(s.Measurements))}
	for i, m := range s.Measurements {
		pc.points[i] = m.ToPoint(pose)
	}
	return pc
}
