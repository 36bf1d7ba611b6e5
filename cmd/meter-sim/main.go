// meter-sim emulates a household energy meter for local development.
// It publishes periodic samples (voltage, current, power, cumulative
// energy counter) either to an MQTT broker or straight to the service's
// ingest endpoint.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type sample struct {
	DeviceID  string    `json:"device_id"`
	Voltage   float64   `json:"voltage"`
	Current   float64   `json:"current"`
	Power     float64   `json:"power"`
	Energy    float64   `json:"energy"`
	Timestamp time.Time `json:"timestamp"`
}

type meter struct {
	deviceID string
	counter  float64
	interval time.Duration
}

// next produces a plausible reading and advances the cumulative
// counter consistently with the generated power.
func (m *meter) next() sample {
	voltage := 225 + rand.Float64()*12
	current := 0.2 + rand.Float64()*4
	power := voltage * current
	m.counter += power * m.interval.Hours() / 1000
	return sample{
		DeviceID:  m.deviceID,
		Voltage:   voltage,
		Current:   current,
		Power:     power,
		Energy:    m.counter,
		Timestamp: time.Now(),
	}
}

func main() {
	deviceID := flag.String("device", "meter-1", "device identifier")
	broker := flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883 (empty to use HTTP)")
	topic := flag.String("topic", "devices/meter-1/usage", "MQTT topic")
	endpoint := flag.String("http", "http://localhost:8090/api/raw-usage", "HTTP ingest endpoint")
	interval := flag.Duration("interval", 5*time.Minute, "sampling interval")
	start := flag.Float64("counter", 100, "initial cumulative energy counter (kWh)")
	flag.Parse()

	m := &meter{deviceID: *deviceID, counter: *start, interval: *interval}

	var publish func(sample) error
	if *broker != "" {
		opts := mqtt.NewClientOptions().AddBroker(*broker).SetClientID("meter-sim-" + *deviceID)
		client := mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Fatalf("connect broker: %v", token.Error())
		}
		defer client.Disconnect(250)
		publish = func(s sample) error {
			payload, err := json.Marshal(s)
			if err != nil {
				return err
			}
			token := client.Publish(*topic, 0, false, payload)
			token.Wait()
			return token.Error()
		}
		log.Printf("publishing to %s as %s every %s", *broker, *topic, *interval)
	} else {
		publish = func(s sample) error {
			payload, err := json.Marshal(s)
			if err != nil {
				return err
			}
			resp, err := http.Post(*endpoint, "application/json", bytes.NewReader(payload))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				log.Printf("ingest returned %s", resp.Status)
			}
			return nil
		}
		log.Printf("posting to %s every %s", *endpoint, *interval)
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			s := m.next()
			if err := publish(s); err != nil {
				log.Printf("publish failed: %v", err)
				continue
			}
			log.Printf("sample sent: %.1fV %.2fA %.1fW counter=%.4fkWh", s.Voltage, s.Current, s.Power, s.Energy)
		case <-sigs:
			return
		}
	}
}
