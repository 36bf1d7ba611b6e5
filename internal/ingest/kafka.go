// Package ingest feeds meter samples from message brokers into the
// same fold path the HTTP endpoint uses. Both sources are optional and
// enabled by configuration.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tsucare2025-capstone/wattwisepro/internal/usage"
)

// sampleMessage is the wire form of one meter reading on the broker
// topics. Energy is the cumulative counter, as on the HTTP endpoint.
type sampleMessage struct {
	DeviceID  string    `json:"device_id"`
	Voltage   *float64  `json:"voltage"`
	Current   *float64  `json:"current"`
	Power     *float64  `json:"power"`
	Energy    *float64  `json:"energy"`
	Timestamp time.Time `json:"timestamp"`
}

func (m sampleMessage) toSample(fallbackDevice string) (usage.Sample, error) {
	if m.Voltage == nil || m.Current == nil || m.Power == nil || m.Energy == nil {
		return usage.Sample{}, errors.New("missing required fields: voltage, current, power, energy")
	}
	deviceID := m.DeviceID
	if deviceID == "" {
		deviceID = fallbackDevice
	}
	return usage.Sample{
		DeviceID: deviceID,
		Voltage:  *m.Voltage,
		Current:  *m.Current,
		Power:    *m.Power,
		Energy:   *m.Energy,
		At:       m.Timestamp,
	}, nil
}

// KafkaConfig groups the consumer settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaConsumer reads samples from a topic and folds them through the
// engine. Poison messages are committed and skipped so they cannot
// wedge the partition.
type KafkaConsumer struct {
	reader *kafka.Reader
	engine *usage.Engine
	log    *slog.Logger
	wg     sync.WaitGroup
}

func StartKafka(ctx context.Context, cfg KafkaConfig, engine *usage.Engine, log *slog.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: []string{cfg.Topic},
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	c := &KafkaConsumer{
		reader: reader,
		engine: engine,
		log:    log.With(slog.String("source", "kafka"), slog.String("topic", cfg.Topic)),
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
	return c, nil
}

// Wait blocks until the consumer has finished.
func (c *KafkaConsumer) Wait() {
	c.wg.Wait()
}

func (c *KafkaConsumer) run(ctx context.Context) {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Error("reader_close", slog.Any("err", err))
		}
	}()
	c.log.Info("consumer_start")

	backoff := time.Second
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.log.Info("consumer_stop", slog.String("reason", "context"))
				return
			}
			c.log.Error("fetch_err", slog.Any("err", err))
			select {
			case <-time.After(backoff):
				if backoff < 10*time.Second {
					backoff *= 2
				}
				continue
			case <-ctx.Done():
				c.log.Info("consumer_stop", slog.String("reason", "shutdown"))
				return
			}
		}
		backoff = time.Second

		if err := c.handleMessage(msg); err != nil {
			c.log.Error("handle_err", slog.Any("err", err), slog.Int64("offset", msg.Offset))
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("commit_err", slog.Any("err", err))
		}
	}
}

func (c *KafkaConsumer) handleMessage(msg kafka.Message) error {
	var sm sampleMessage
	if err := json.Unmarshal(msg.Value, &sm); err != nil {
		return fmt.Errorf("decode sample: %w", err)
	}
	sample, err := sm.toSample(string(msg.Key))
	if err != nil {
		return fmt.Errorf("invalid sample: %w", err)
	}
	res, err := c.engine.Ingest(sample)
	if err != nil {
		return fmt.Errorf("fold sample: %w", err)
	}
	c.log.Debug("sample folded",
		slog.String("id", res.ID), slog.String("date", res.Date), slog.String("action", res.Action))
	return nil
}
