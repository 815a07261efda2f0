package slam

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ScanMessage is a sensor sweep plus the control applied since the previous
// one, as received on <prefix>/scan
type ScanMessage struct {
	Measurements []Measurement `json:"measurements"`
	Twist        Twist         `json:"twist"`
	Timestamp    float64       `json:"timestamp"` // Unix seconds; 0 uses the time of arrival
}

// Scan returns the message measurements as a Scan
func (m ScanMessage) Scan() Scan {
	return Scan{Measurements: m.Measurements}
}

// ScanHandler is called for every scan message. err is set when the payload
// could not be decoded.
type ScanHandler func(msg *ScanMessage, err error)

// MQTTClient manages the MQTT connection and the scan subscription
type MQTTClient struct {
	client      mqtt.Client
	config      *Config
	scanHandler ScanHandler
	isConnected bool
	received    int
	mu          sync.RWMutex
}

var (
	globalClient *MQTTClient
	clientMu     sync.Mutex
)

// InitMQTT initializes the global MQTT client.
// If neither MQTT_BROKER nor mqtt.broker is set, MQTT is disabled and this
// returns nil, nil.
func InitMQTT(config *Config, handler ScanHandler) (*MQTTClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	if config == nil {
		return nil, fmt.Errorf("MQTT: no configuration provided")
	}

	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = config.MQTT.Broker
	}
	if broker == "" {
		Logf("[mqtt] disabled: MQTT_BROKER not set")
		return nil, nil
	}

	client := &MQTTClient{
		config:      config,
		scanHandler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "fastslam"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	// scans must reach the filter in the order they were taken
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	globalClient = client
	return client, nil
}

// GetMQTTClient returns the global MQTT client instance
func GetMQTTClient() *MQTTClient {
	clientMu.Lock()
	defer clientMu.Unlock()
	return globalClient
}

// connectWithRetry attempts to connect with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		Logf("[mqtt] connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				Logf("[mqtt] connected")
				c.setConnected(true)
				return
			}
			Logf("[mqtt] connection failed: %v", token.Error())
		} else {
			Logf("[mqtt] connection timeout")
		}

		Logf("[mqtt] retrying in %v", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// ScanTopic returns the topic scans are read from
func (c *MQTTClient) ScanTopic() string {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = c.config.MQTT.PublishPrefix
	}
	if prefix == "" {
		prefix = "fastslam"
	}
	return prefix + "/scan"
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)
	if err := c.subscribe(client); err != nil {
		Logf("[mqtt] %v", err)
	}
}

// Subscribe registers the scan handler on the wrapped client
func (c *MQTTClient) Subscribe() error {
	return c.subscribe(c.client)
}

func (c *MQTTClient) subscribe(client mqtt.Client) error {
	topic := c.ScanTopic()
	Logf("[mqtt] subscribing to %s", topic)
	token := client.Subscribe(topic, 0, c.handleScan)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return fmt.Errorf("error subscribing to %s: %w", topic, token.Error())
	}
	Logf("[mqtt] subscribed to %s", topic)
	return nil
}

// onConnectionLost is a transient event, auto-reconnect is enabled
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	Logf("[mqtt] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	Logf("[mqtt] reconnecting...")
}

func (c *MQTTClient) handleScan(client mqtt.Client, msg mqtt.Message) {
	c.mu.Lock()
	c.received++
	c.mu.Unlock()

	msgData, err := DecodeScanMessage(msg.Payload())
	if err != nil {
		Logf("[mqtt] error decoding scan on %s: %v", msg.Topic(), err)
	}
	if c.scanHandler != nil {
		c.scanHandler(msgData, err)
	}
}

// DecodeScanMessage parses a scan payload
func DecodeScanMessage(payload []byte) (*ScanMessage, error) {
	var msg ScanMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decoding scan message: %w", err)
	}
	if len(msg.Measurements) == 0 {
		return nil, fmt.Errorf("decoding scan message: no measurements")
	}
	return &msg, nil
}

// Received returns the number of scan messages seen, valid or not
func (c *MQTTClient) Received() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.received
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		Logf("[mqtt] disconnecting")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// NewMQTTClientWithClient wraps an existing mqtt.Client, such as a MockClient.
// The caller connects it and calls Subscribe.
func NewMQTTClientWithClient(client mqtt.Client, config *Config, handler ScanHandler) *MQTTClient {
	return &MQTTClient{
		client:      client,
		config:      config,
		scanHandler: handler,
	}
}
