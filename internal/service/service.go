package service

import (
	"context"

	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/domain"
	"github.com/rs/zerolog"
)

// ReadingStore is the append-only store as seen by the services.
type ReadingStore interface {
	Append(ctx context.Context, r domain.NewReading) (int64, error)
	Recent(ctx context.Context, limit int) ([]domain.Reading, error)
	Since(ctx context.Context, afterID int64, limit int) ([]domain.Reading, error)
	Ping(ctx context.Context) error
}

type Services struct {
	Repos    ReadingStore
	Readings *ReadingService
}

func New(store ReadingStore, logger zerolog.Logger) *Services {
	return &Services{
		Repos:    store,
		Readings: &ReadingService{repos: store, log: logger.With().Str("component", "readings").Logger()},
	}
}

type ReadingService struct {
	repos ReadingStore
	log   zerolog.Logger
}

// FromMQTT decodes one broker message and appends it. The returned error wraps
// domain.ErrMalformedPayload or domain.ErrWriteFailure; the message is consumed either way.
func (s *ReadingService) FromMQTT(ctx context.Context, topic string, payload []byte) (int64, error) {
	r, err := domain.DecodePayload(payload)
	if err != nil {
		return 0, err
	}
	id, err := s.repos.Append(ctx, r)
	if err != nil {
		return 0, err
	}
	s.log.Debug().
		Int64("id", id).
		Str("topic", topic).
		Str("sensor_id", r.SensorID).
		Float64("temperature", r.Temperature).
		Int64("humidity", r.Humidity).
		Msg("reading stored")
	return id, nil
}

func (s *ReadingService) Recent(ctx context.Context, limit int) ([]domain.Reading, error) {
	return s.repos.Recent(ctx, limit)
}

func (s *ReadingService) Ping(ctx context.Context) error {
	return s.repos.Ping(ctx)
}
