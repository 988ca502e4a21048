// Package intake receives emergency event contexts from upstream systems
// and feeds them into the allocation pipeline.
package intake

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/pierreba/era/core/model"
	"github.com/pierreba/era/core/pipeline"
	"github.com/pierreba/era/infra/logger"
)

// Config defines the connection parameters for the MQTT event intake.
type Config struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Topic    string `json:"topic"`
	QoS      byte   `json:"qos"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// MQTTIntake subscribes to an event topic and forwards parsed events as
// pipeline requests. Events arriving while the queue is full are dropped
// with an error log; the upstream retries.
type MQTTIntake struct {
	cli      pahoClient
	topic    string
	requests chan<- pipeline.Request
	log      logger.Logger
}

// NewMQTTIntake connects to the broker and subscribes to the event topic.
func NewMQTTIntake(cfg Config, requests chan<- pipeline.Request) (*MQTTIntake, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("intake: topic is required")
	}
	log := logger.New("intake-mqtt")
	in := &MQTTIntake{topic: cfg.Topic, requests: requests, log: log}

	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(c paho.Client) {
		if token := c.Subscribe(cfg.Topic, cfg.QoS, in.onMessage); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	in.cli = c
	return in, nil
}

func (in *MQTTIntake) onMessage(_ paho.Client, msg paho.Message) {
	var ev model.EventContext
	if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
		in.log.Errorf("malformed event on %s: %v", msg.Topic(), err)
		return
	}
	if ev.ID == "" {
		in.log.Errorf("event on %s is missing an id", msg.Topic())
		return
	}
	select {
	case in.requests <- pipeline.Request{Event: ev}:
		in.log.Infof("queued event %s", ev.ID)
	default:
		in.log.Errorf("request queue full, dropping event %s", ev.ID)
	}
}

// Close disconnects from the broker.
func (in *MQTTIntake) Close() {
	in.cli.Disconnect(250)
}
