package messaging

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"taskadmin/config"
)

// Client publishes to Kafka or MQTT depending on cfg.Backend. Backend
// "none" accepts and drops everything.
type Client struct {
	mu       sync.RWMutex
	cfg      *config.MessagingConfig
	log      logrus.FieldLogger
	mqttConn mqtt.Client
	kafkaW   *kafka.Writer
}

func NewClient(cfg *config.MessagingConfig, log logrus.FieldLogger) *Client {
	return &Client{cfg: cfg, log: log}
}

func (c *Client) Backend() string { return c.cfg.Backend }

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.cfg.Backend {
	case "mqtt":
		return c.connectMQTT()
	case "kafka":
		return c.connectKafka()
	case "none", "":
		return nil
	default:
		return fmt.Errorf("unknown messaging backend: %s", c.cfg.Backend)
	}
}

func (c *Client) connectMQTT() error {
	broker := fmt.Sprintf("tcp://%s:%d", c.cfg.MQTT.Broker, c.cfg.MQTT.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(c.cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) { c.log.Infof("mqtt connected to %s", broker) }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) { c.log.Warnf("mqtt connection lost: %v", err) })

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		// Connect retry keeps going in the background.
		c.log.Warnf("mqtt connect to %s still pending", broker)
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.mqttConn = client
	return nil
}

func (c *Client) connectKafka() error {
	if len(c.cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	var conn *kafka.Conn
	var connErr error
	for _, broker := range c.cfg.Kafka.Brokers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, connErr = kafka.DialContext(ctx, "tcp", broker)
		cancel()
		if connErr == nil {
			c.log.Infof("kafka connected to %s", broker)
			break
		}
	}
	if connErr != nil {
		return fmt.Errorf("kafka connect: %w", connErr)
	}
	c.ensureTopics(conn, c.cfg.EventsTopic)
	conn.Close()

	c.kafkaW = &kafka.Writer{
		Addr:         kafka.TCP(c.cfg.Kafka.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	return nil
}

// ensureTopics creates Kafka topics if they don't already exist. Errors are
// logged only; the broker may auto-create topics anyway.
func (c *Client) ensureTopics(conn *kafka.Conn, topics ...string) {
	controller, err := conn.Controller()
	if err != nil {
		c.log.Warnf("cannot find kafka controller for topic creation: %v", err)
		return
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		c.log.Warnf("cannot connect to kafka controller: %v", err)
		return
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, len(topics))
	for i, t := range topics {
		configs[i] = kafka.TopicConfig{Topic: t, NumPartitions: 1, ReplicationFactor: 1}
	}
	if err := controllerConn.CreateTopics(configs...); err != nil {
		c.log.Warnf("topic auto-create: %v", err)
	}
}

func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.cfg.Backend {
	case "mqtt":
		if c.mqttConn == nil || !c.mqttConn.IsConnected() {
			return fmt.Errorf("mqtt not connected")
		}
		token := c.mqttConn.Publish(topic, 1, false, payload)
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("mqtt publish to %s timed out", topic)
		}
		return token.Error()
	case "kafka":
		if c.kafkaW == nil {
			return fmt.Errorf("kafka writer not initialized")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return c.kafkaW.WriteMessages(ctx, kafka.Message{Topic: topic, Value: payload})
	case "none", "":
		return nil
	default:
		return fmt.Errorf("unknown backend: %s", c.cfg.Backend)
	}
}

// PublishEnvelope encodes and publishes an envelope to the given topic.
func (c *Client) PublishEnvelope(topic string, env interface{ Encode() ([]byte, error) }) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.Publish(topic, data)
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.cfg.Backend {
	case "mqtt":
		return c.mqttConn != nil && c.mqttConn.IsConnected()
	case "kafka":
		return c.kafkaW != nil
	}
	return true
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mqttConn != nil {
		c.mqttConn.Disconnect(250)
		c.mqttConn = nil
	}
	if c.kafkaW != nil {
		c.kafkaW.Close()
		c.kafkaW = nil
	}
}
