package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// sensorTimestamp accepts either a JSON string or a JSON number and keeps it uninterpreted.
type sensorTimestamp string

func (t *sensorTimestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = sensorTimestamp(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("timestamp must be a string or a number, got %s", b)
	}
	*t = sensorTimestamp(n.String())
	return nil
}

type sensorPayload struct {
	SensorID    *string          `json:"sensor_id"`
	Timestamp   *sensorTimestamp `json:"timestamp"`
	Temperature *float64         `json:"temperature"`
	Humidity    *int64           `json:"humidity"`
	Status      *string          `json:"status"`
}

// DecodePayload turns one MQTT payload into a NewReading. Unknown fields are ignored;
// a missing or null required field, or a field of the wrong type, yields ErrMalformedPayload.
func DecodePayload(payload []byte) (NewReading, error) {
	var p sensorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return NewReading{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	var missing []string
	if p.SensorID == nil {
		missing = append(missing, "sensor_id")
	}
	if p.Timestamp == nil {
		missing = append(missing, "timestamp")
	}
	if p.Temperature == nil {
		missing = append(missing, "temperature")
	}
	if p.Humidity == nil {
		missing = append(missing, "humidity")
	}
	if p.Status == nil {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return NewReading{}, fmt.Errorf("%w: missing %s", ErrMalformedPayload, strings.Join(missing, ", "))
	}

	return NewReading{
		SensorID:    *p.SensorID,
		Timestamp:   string(*p.Timestamp),
		Temperature: *p.Temperature,
		Humidity:    *p.Humidity,
		Status:      *p.Status,
	}, nil
}
