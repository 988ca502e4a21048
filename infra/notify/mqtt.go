package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/pierreba/era/core/events"
	"github.com/pierreba/era/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT publisher.
type Config struct {
	Broker     string `json:"broker"`
	ClientID   string `json:"client_id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Topic      string `json:"topic"`
	QoS        byte   `json:"qos"`
	Retained   bool   `json:"retained"`
	UseTLS     bool   `json:"use_tls"`
	ClientCert string `json:"client_cert"`
	ClientKey  string `json:"client_key"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// MQTTSink publishes committed plans as JSON messages on a fixed topic.
type MQTTSink struct {
	cli      pahoClient
	topic    string
	qos      byte
	retained bool
	log      logger.Logger
}

// NewMQTTSink connects to the broker and returns a ready publisher.
func NewMQTTSink(cfg Config) (*MQTTSink, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("notify: topic is required")
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("notify: load cert: %w", err)
		}
		opts.SetTLSConfig(&tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12})
	}
	log := logger.New("notify-mqtt")
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &MQTTSink{cli: c, topic: cfg.Topic, qos: cfg.QoS, retained: cfg.Retained, log: log}, nil
}

// PublishPlan serializes the plan and publishes it on the configured topic.
func (s *MQTTSink) PublishPlan(ctx context.Context, plan events.PlanCommitted) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	token := s.cli.Publish(s.topic, s.qos, s.retained, payload)
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}
	if err := token.Error(); err != nil {
		return err
	}
	s.log.Debugf("published plan %s to %s", plan.PlanID, s.topic)
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	s.cli.Disconnect(250)
	return nil
}
