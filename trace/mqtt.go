package trace

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// RetraceHandler is called when a retrace command arrives for a drawing
type RetraceHandler func(drawingID string)

// MQTTClient manages MQTT connection and subscriptions for drawing payloads
type MQTTClient struct {
	client         mqtt.Client
	config         *Config
	messageHandler MessageHandler
	retraceHandler RetraceHandler
	isConnected    bool
	mu             sync.RWMutex
}

// MessageHandler is called when a drawing payload message is received
// Parameters: drawingID, rawPayload, document, error
// rawPayload is provided so callers can log or archive undecodable payloads
type MessageHandler func(drawingID string, rawPayload []byte, doc *DrawingDocument, err error)

var (
	globalClient *MQTTClient
	clientMu     sync.Mutex
)

// InitMQTT initializes the global MQTT client with the provided configuration
// If MQTT_BROKER env var is empty, MQTT is disabled and this returns nil
func InitMQTT(config *Config, handler MessageHandler) (*MQTTClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	// Check if MQTT is enabled via env var or config
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil || len(config.Drawings) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no drawing configuration provided")
	}

	client := &MQTTClient{
		config:         config,
		messageHandler: handler,
	}

	// Build MQTT client options
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	// Client ID
	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "plantrace"
	}
	opts.SetClientID(clientID)

	// Authentication
	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	// Connection settings
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)   // Longer than default 30s to reduce spurious disconnects
	opts.SetPingTimeout(10 * time.Second) // Timeout for ping response
	opts.SetCleanSession(false)           // Preserve subscriptions on reconnect
	opts.SetOrderMatters(false)           // Allow concurrent processing

	// Callbacks
	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	// Connect asynchronously with retry
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

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		// Exponential backoff
		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect is called when the MQTT connection is established
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("MQTT connected, subscribing to drawing topics...")
	c.setConnected(true)

	// Subscribe to all drawing topics from config
	for _, drawing := range c.config.Drawings {
		if drawing.Topic == "" {
			log.Printf("Warning: drawing %s has no topic configured", drawing.ID)
			continue
		}

		log.Printf("Subscribing to %s for drawing %s", drawing.Topic, drawing.ID)
		token := client.Subscribe(drawing.Topic, 0, c.createMessageHandler(drawing.ID))

		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("Error subscribing to %s: %v", drawing.Topic, token.Error())
		} else {
			log.Printf("Successfully subscribed to %s", drawing.Topic)
		}

		// Subscribe to the retrace command topic for this drawing
		if retraceTopic, ok := deriveRetraceTopic(drawing.Topic); ok {
			log.Printf("Subscribing to %s for drawing %s retrace commands", retraceTopic, drawing.ID)
			retraceToken := client.Subscribe(retraceTopic, 0, c.createRetraceMessageHandler(drawing.ID))

			if retraceToken.WaitTimeout(5*time.Second) && retraceToken.Error() != nil {
				log.Printf("Error subscribing to %s: %v", retraceTopic, retraceToken.Error())
			} else {
				log.Printf("Successfully subscribed to %s", retraceTopic)
			}
		}
	}
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// onReconnecting is called when the client attempts to reconnect
func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

// createMessageHandler creates a handler function for a specific drawing's topic
func (c *MQTTClient) createMessageHandler(drawingID string) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("Received drawing payload for %s (topic: %s, size: %d bytes)",
			drawingID, msg.Topic(), len(payload))

		// Decode the payload (handles raw JSON or zlib-compressed JSON)
		doc, err := DecodeDrawingData(payload)
		if err != nil {
			log.Printf("Error decoding drawing payload for %s: %v", drawingID, err)
			if c.messageHandler != nil {
				// Pass raw payload so caller can archive undecodable data
				c.messageHandler(drawingID, payload, nil, err)
			}
			return
		}

		// Call the user's message handler with raw payload and decoded document
		if c.messageHandler != nil {
			c.messageHandler(drawingID, payload, doc, nil)
		}
	}
}

// SetRetraceHandler registers a callback invoked on retrace commands
func (c *MQTTClient) SetRetraceHandler(handler RetraceHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retraceHandler = handler
}

// getRetraceHandler returns the current retrace handler in a thread-safe manner
func (c *MQTTClient) getRetraceHandler() RetraceHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retraceHandler
}

// deriveRetraceTopic converts a drawing payload topic to a retrace command topic.
// Example: "extractor/floor-1/segments" -> "extractor/floor-1/retrace"
// Returns the derived topic and true if the conversion succeeded, or empty string and false otherwise.
func deriveRetraceTopic(segmentsTopic string) (string, bool) {
	// Expected format: {prefix...}/{name}/segments
	parts := strings.Split(segmentsTopic, "/")
	if len(parts) < 2 {
		return "", false
	}
	// Replace the last segment with the command leaf
	parts[len(parts)-1] = "retrace"
	return strings.Join(parts, "/"), true
}

// commandPayload represents the JSON structure of a command message
type commandPayload struct {
	Command string `json:"command"`
}

// createRetraceMessageHandler creates a handler for command topic messages that
// detects retrace requests and invokes the retrace handler
func (c *MQTTClient) createRetraceMessageHandler(drawingID string) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("Received command for %s (topic: %s, size: %d bytes)",
			drawingID, msg.Topic(), len(payload))

		var commandValue string

		// Try parsing as JSON object {"command": "..."}
		var cmd commandPayload
		if err := json.Unmarshal(payload, &cmd); err == nil && cmd.Command != "" {
			commandValue = cmd.Command
		} else {
			// Try parsing as JSON string "retrace"
			var plainStr string
			if err2 := json.Unmarshal(payload, &plainStr); err2 == nil {
				commandValue = plainStr
				log.Printf("Command payload for %s is JSON string (not object), value: %s", drawingID, plainStr)
			} else {
				// Use raw string with whitespace trimmed
				commandValue = strings.TrimSpace(string(payload))
				if commandValue == "" {
					log.Printf("Empty command payload for %s, skipping", drawingID)
					return
				}
				log.Printf("Command payload for %s is raw string (not JSON), value: %s", drawingID, commandValue)
			}
		}

		log.Printf("Drawing %s command: %s", drawingID, commandValue)

		if commandValue == "retrace" {
			handler := c.getRetraceHandler()
			if handler != nil {
				handler(drawingID)
			}
		}
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// setConnected updates the connection status
func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetDrawingIDByTopic returns the drawing ID for a given topic
func (c *MQTTClient) GetDrawingIDByTopic(topic string) (string, bool) {
	return c.config.GetDrawingByTopic(topic)
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client
// This is used for testing with mock clients
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler MessageHandler) *MQTTClient {
	return &MQTTClient{
		client:         client,
		config:         config,
		messageHandler: handler,
	}
}
