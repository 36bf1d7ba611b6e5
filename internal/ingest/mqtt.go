package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tsucare2025-capstone/wattwisepro/internal/usage"
)

// MQTTConfig groups the subscriber settings. Topic may contain
// wildcards, e.g. "devices/+/usage".
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
}

// MQTTSource subscribes to a broker topic and folds incoming samples.
type MQTTSource struct {
	client mqtt.Client
	topic  string
	log    *slog.Logger
}

func StartMQTT(cfg MQTTConfig, engine *usage.Engine, log *slog.Logger) (*MQTTSource, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("no mqtt broker configured")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "usage-aggregator"
	}

	src := &MQTTSource{
		topic: cfg.Topic,
		log:   log.With(slog.String("source", "mqtt"), slog.String("topic", cfg.Topic)),
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(clientID).SetAutoReconnect(true)
	opts.OnConnect = func(client mqtt.Client) {
		token := client.Subscribe(cfg.Topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			src.handle(engine, msg)
		})
		token.Wait()
		if token.Error() != nil {
			src.log.Error("subscribe_err", slog.Any("err", token.Error()))
			return
		}
		src.log.Info("subscribed")
	}

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker: %w", token.Error())
	}
	src.client = c
	return src, nil
}

func (s *MQTTSource) handle(engine *usage.Engine, msg mqtt.Message) {
	var sm sampleMessage
	if err := json.Unmarshal(msg.Payload(), &sm); err != nil {
		s.log.Error("decode_err", slog.Any("err", err), slog.String("msgTopic", msg.Topic()))
		return
	}
	sample, err := sm.toSample(deviceFromTopic(msg.Topic()))
	if err != nil {
		s.log.Error("invalid_sample", slog.Any("err", err), slog.String("msgTopic", msg.Topic()))
		return
	}
	res, err := engine.Ingest(sample)
	if err != nil {
		s.log.Error("fold_err", slog.Any("err", err))
		return
	}
	s.log.Debug("sample folded",
		slog.String("id", res.ID), slog.String("date", res.Date), slog.String("action", res.Action))
}

// deviceFromTopic pulls the device segment out of topics shaped like
// devices/<id>/usage. Anything else falls back to the default id.
func deviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return "meter-1"
}

// Close disconnects from the broker, allowing in-flight handlers a
// short grace period.
func (s *MQTTSource) Close() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}
