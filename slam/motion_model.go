package slam

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// MotionNoise holds the velocity motion model noise parameters.
// Alpha[0:2] scale translational error, Alpha[2:4] rotational error and
// Alpha[4:6] the final heading drift, each as α·v² + α·ω².
type MotionNoise struct {
	Alpha       [6]float64 `yaml:"alpha" json:"alpha"`
	MinVariance float64    `yaml:"minVariance" json:"minVariance"` // floor applied to every variance term
}

// DefaultMotionNoise returns the tuning used by the simulator
func DefaultMotionNoise() MotionNoise {
	return MotionNoise{
		Alpha:       [6]float64{0.01, 0.01, 0.01, 0.01, 0.01, 0.01},
		MinVariance: 1e-4,
	}
}

func (n MotionNoise) variance(i int, v, w float64) float64 {
	return n.Alpha[i]*v*v + n.Alpha[i+1]*w*w
}

// Drive applies a twist for dt seconds without noise. The heading is
// updated first and the robot then moves along the new heading.
func Drive(pose Pose, control Twist, dt float64) Pose {
	heading := WrapHeading(pose.Heading + control.Angular*dt)
	ds := control.Velocity * dt
	s, c := math.Sincos(heading)
	return Pose{
		Position: Point{X: pose.Position.X + ds*c, Y: pose.Position.Y + ds*s},
		Heading:  heading,
	}
}

// SampleMotionModelVelocity draws a successor pose from the velocity motion
// model (Probabilistic Robotics, Table 5.3). A robot that was commanded to
// stand still stays where it is.
func SampleMotionModelVelocity(pose Pose, control Twist, dt float64, noise MotionNoise, rng *rand.Rand) Pose {
	v, w := control.Velocity, control.Angular
	if v == 0 && w == 0 {
		return pose
	}

	vHat := v + rng.NormFloat64()*math.Sqrt(noise.variance(0, v, w))
	wHat := w + rng.NormFloat64()*math.Sqrt(noise.variance(2, v, w))
	gHat := rng.NormFloat64() * math.Sqrt(noise.variance(4, v, w))

	x, y, theta := pose.Position.X, pose.Position.Y, pose.Heading
	var xp, yp float64
	if math.Abs(wHat) < 1e-9 {
		xp = x + vHat*dt*math.Cos(theta)
		yp = y + vHat*dt*math.Sin(theta)
	} else {
		r := vHat / wHat
		xp = x - r*math.Sin(theta) + r*math.Sin(theta+wHat*dt)
		yp = y + r*math.Cos(theta) - r*math.Cos(theta+wHat*dt)
	}

	return Pose{
		Position: Point{X: xp, Y: yp},
		Heading:  WrapHeading(theta + wHat*dt + gHat*dt),
	}
}

// MotionModelVelocity scores the transition prev -> curr under control for dt
// seconds (Probabilistic Robotics, Table 5.1). The result is an unnormalized
// density, not a probability: it is never clamped to [0, 1]. A non-positive
// dt scores zero.
func MotionModelVelocity(curr, prev Pose, control Twist, dt float64, noise MotionNoise) float64 {
	if dt <= 0 {
		return 0
	}

	x, y, theta := prev.Position.X, prev.Position.Y, prev.Heading
	xp, yp := curr.Position.X, curr.Position.Y
	sinT, cosT := math.Sincos(theta)

	num := (x-xp)*cosT + (y-yp)*sinT
	den := (y-yp)*cosT - (x-xp)*sinT

	var vHat, wHat float64
	if math.Abs(den) < 1e-12 {
		// Straight line, turn in place or no motion: no finite center of
		// rotation, so the heading change alone gives the turn rate
		forward := (xp-x)*cosT + (yp-y)*sinT
		vHat = forward / dt
		wHat = WrapHeading(curr.Heading-prev.Heading) / dt
	} else {
		mu := 0.5 * num / den
		xs := (x+xp)/2 + mu*(y-yp)
		ys := (y+yp)/2 + mu*(xp-x)

		dTheta := WrapHeading(math.Atan2(yp-ys, xp-xs) - math.Atan2(y-ys, x-xs))
		wHat = dTheta / dt

		// Signed radius: positive when the center lies to the left of the
		// heading, so forward motion gives a positive v̂ for either turn
		// direction.
		radius := -(xs-x)*sinT + (ys-y)*cosT
		vHat = wHat * radius
	}
	gHat := WrapHeading(curr.Heading-prev.Heading)/dt - wHat

	v, w := control.Velocity, control.Angular
	return gaussianDensity(v-vHat, noise.variance(0, v, w), noise.MinVariance) *
		gaussianDensity(w-wHat, noise.variance(2, v, w), noise.MinVariance) *
		gaussianDensity(gHat, noise.variance(4, v, w), noise.MinVariance)
}

// gaussianDensity evaluates the zero-mean normal density with the given
// variance at x
func gaussianDensity(x, variance, minVariance float64) float64 {
	if variance < minVariance {
		variance = minVariance
	}
	if variance <= 0 {
		if x == 0 {
			return math.Inf(1)
		}
		return 0
	}
	return distuv.Normal{Mu: 0, Sigma: math.Sqrt(variance)}.Prob(x)
}
