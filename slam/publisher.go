package slam

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// PoseMessage is the estimate published after every filter cycle
type PoseMessage struct {
	Session   string  `json:"session"`
	Pose      Pose    `json:"pose"`
	Weight    float64 `json:"weight"`
	Neff      float64 `json:"neff"`
	Cycle     int     `json:"cycle"`
	Timestamp int64   `json:"timestamp"`
}

// Publisher publishes pose estimates to <prefix>/pose
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	session       string
	qos           byte
	retain        bool
	last          *PoseMessage
	mu            sync.RWMutex
}

// NewPublisher creates a pose publisher with a fresh session id.
// If client is nil, publishing fails with an error.
func NewPublisher(client mqtt.Client) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = "fastslam"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		session:       uuid.NewString(),
		qos:           0,
		retain:        true,
	}
}

// Session returns the id stamped on every message of this run
func (p *Publisher) Session() string {
	return p.session
}

// Topic returns the pose topic
func (p *Publisher) Topic() string {
	return p.publishPrefix + "/pose"
}

// PublishEstimate publishes the best particle and the filter statistics
func (p *Publisher) PublishEstimate(best Snapshot, stats CycleStats) error {
	return p.publish(&PoseMessage{
		Session:   p.session,
		Pose:      best.Pose,
		Weight:    best.Weight,
		Neff:      stats.Neff,
		Cycle:     stats.Cycle,
		Timestamp: time.Now().Unix(),
	})
}

func (p *Publisher) publish(msg *PoseMessage) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling pose: %w", err)
	}

	topic := p.Topic()
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	p.mu.Lock()
	p.last = msg
	p.mu.Unlock()
	return nil
}

// Last returns a copy of the last published message
func (p *Publisher) Last() (PoseMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return PoseMessage{}, false
	}
	return *p.last, true
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
