package slam

import (
	"github.com/paulmach/orb"
)

// Config represents the full configuration file
type Config struct {
	MQTT   MQTTConfig   `yaml:"mqtt" json:"mqtt"`
	Filter FilterConfig `yaml:"filter" json:"filter"`
	Sensor LaserScanner `yaml:"sensor" json:"sensor"`
	World  WorldConfig  `yaml:"world" json:"world"`
	HTTP   HTTPConfig   `yaml:"http" json:"http"`
	Render RenderConfig `yaml:"render" json:"render"`
}

// MQTTConfig holds MQTT connection settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// WorldConfig describes the simulated environment as wall polylines
type WorldConfig struct {
	Walls [][]Point `yaml:"walls" json:"walls"`
}

// World converts the configured walls. An empty configuration yields the
// default room.
func (wc WorldConfig) World() World {
	if len(wc.Walls) == 0 {
		return DefaultWorld()
	}
	w := World{Walls: make([]orb.LineString, 0, len(wc.Walls))}
	for _, wall := range wc.Walls {
		ls := make(orb.LineString, len(wall))
		for i, p := range wall {
			ls[i] = orb.Point{p.X, p.Y}
		}
		w.Walls = append(w.Walls, ls)
	}
	return w
}

// HTTPConfig holds the status server settings
type HTTPConfig struct {
	Port           int `yaml:"port" json:"port"`
	TrajectorySize int `yaml:"trajectorySize" json:"trajectorySize"` // poses kept for /trajectory and rendering
}

// RenderConfig controls map images
type RenderConfig struct {
	Scale            int     `yaml:"scale" json:"scale"`                       // pixels per grid cell in PNG output
	VectorResolution float64 `yaml:"vectorResolution" json:"vectorResolution"` // DPI for rasterized vector output
}

// DefaultConfig returns a configuration that runs the simulator with MQTT
// disabled
func DefaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			PublishPrefix: "fastslam",
			ClientID:      "fastslam",
		},
		Filter: DefaultFilterConfig(),
		Sensor: DefaultLaserScanner(),
		HTTP: HTTPConfig{
			Port:           4040,
			TrajectorySize: 1000,
		},
		Render: RenderConfig{
			Scale:            4,
			VectorResolution: 150,
		},
	}
}
