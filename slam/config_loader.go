package slam

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the configuration from a YAML file. Fields missing from
// the file keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config data over the defaults and validates it
func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Filter.Validate(); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if c.Sensor.Columns <= 0 {
		return fmt.Errorf("%w: sensor.columns must be positive", ErrInvalidConfig)
	}
	if c.Sensor.MaxRange <= 0 {
		return fmt.Errorf("%w: sensor.maxRange must be positive", ErrInvalidConfig)
	}
	if c.Sensor.RangeNoise < 0 {
		return fmt.Errorf("%w: sensor.rangeNoise must not be negative", ErrInvalidConfig)
	}
	for i, wall := range c.World.Walls {
		if len(wall) < 2 {
			return fmt.Errorf("%w: world.walls[%d] needs at least two points", ErrInvalidConfig, i)
		}
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("%w: http.port %d out of range", ErrInvalidConfig, c.HTTP.Port)
	}
	if c.HTTP.TrajectorySize < 0 {
		return fmt.Errorf("%w: http.trajectorySize must not be negative", ErrInvalidConfig)
	}
	if c.Render.Scale <= 0 {
		return fmt.Errorf("%w: render.scale must be positive", ErrInvalidConfig)
	}
	if c.MQTT.Broker != "" && c.MQTT.PublishPrefix == "" {
		return fmt.Errorf("%w: mqtt.publishPrefix is required when a broker is set", ErrInvalidConfig)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
