package main

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/config"
	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/domain"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// Reading mirrors what a field sensor publishes.
type Reading struct {
	SensorID    string  `json:"sensor_id"`
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    int64   `json:"humidity"`
	Status      string  `json:"status"`
}

func sample(sensorID string, now time.Time) Reading {
	return Reading{
		SensorID:    sensorID,
		Timestamp:   now.UTC().Format(time.RFC3339),
		Temperature: math.Round((20+rand.Float64()*12)*100) / 100,
		Humidity:    40 + rand.Int63n(41),
		Status:      "active",
	}
}

func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	log.Logger = config.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := mqtt.NewClientOptions().
		AddBroker(config.MQTTBroker()).
		SetClientID(config.MQTTClientID("telemetry-sim")).
		SetAutoReconnect(true)
	if u := config.MQTTUsername(); u != "" {
		opts.SetUsername(u).SetPassword(config.MQTTPassword())
	}
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Str("broker", config.MQTTBroker()).Msg("mqtt connect")
	}
	defer client.Disconnect(250)

	topic, sensorID, count := config.MQTTTopic(), config.SimSensorID(), config.SimCount()
	log.Info().Str("topic", topic).Str("sensor_id", sensorID).Dur("interval", config.SimInterval()).Msg("simulator running")

	ticker := time.NewTicker(config.SimInterval())
	defer ticker.Stop()

	for sent := 0; count == 0 || sent < count; sent++ {
		r := sample(sensorID, time.Now())
		payload, _ := json.Marshal(r)

		// Same decoder as the ingest side, so the simulator never publishes what the service would reject.
		if _, err := domain.DecodePayload(payload); err != nil {
			log.Fatal().Err(err).Msg("simulator produced an invalid payload")
		}

		token := client.Publish(topic, config.MQTTQoS(), false, payload)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Error().Err(err).Msg("publish failed")
		} else {
			log.Debug().Float64("temperature", r.Temperature).Int64("humidity", r.Humidity).Msg("published")
		}

		select {
		case <-ctx.Done():
			log.Info().Int("sent", sent+1).Msg("simulator stopped")
			return
		case <-ticker.C:
		}
	}
	log.Info().Int("sent", count).Msg("simulation done")
}
