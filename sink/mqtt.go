package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/common/log"

	"github.com/markuslindenberg/mb8600_exporter/status"
)

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retain      bool
}

// MQTT publishes each record as JSON to "<prefix>/<measurement>".
type MQTT struct {
	client mqtt.Client
	prefix string
	qos    byte
	retain bool
}

// DialMQTT connects to the broker and returns a sink publishing through it.
func DialMQTT(cfg MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("mb8600-exporter-%d", time.Now().Unix())
	}
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("MQTT connection to %s lost: %v", cfg.Broker, err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	log.Infof("Connected to MQTT broker %s", cfg.Broker)

	return NewMQTT(client, cfg.TopicPrefix, cfg.QoS, cfg.Retain), nil
}

func NewMQTT(client mqtt.Client, prefix string, qos byte, retain bool) *MQTT {
	if prefix == "" {
		prefix = "mb8600"
	}
	return &MQTT{client: client, prefix: prefix, qos: qos, retain: retain}
}

func (m *MQTT) Topic(record status.Record) string {
	return m.prefix + "/" + record.Measurement()
}

func (m *MQTT) Ingest(ctx context.Context, record status.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	token := m.client.Publish(m.Topic(record), m.qos, m.retain, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MQTT) Close() { m.client.Disconnect(250) }
