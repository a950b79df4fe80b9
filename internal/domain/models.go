package domain

import "time"

// Reading is one stored sensor observation. ID and ReceivedAt are assigned by the store.
type Reading struct {
	ID          int64     `db:"id" json:"id"`
	SensorID    string    `db:"sensor_id" json:"sensor_id"`
	Timestamp   string    `db:"timestamp" json:"timestamp"`
	Temperature float64   `db:"temperature" json:"temperature"`
	Humidity    int64     `db:"humidity" json:"humidity"`
	Status      string    `db:"status" json:"status"`
	ReceivedAt  time.Time `db:"received_at" json:"received_at"`
}

// NewReading is a decoded observation that has not been stored yet.
type NewReading struct {
	SensorID    string
	Timestamp   string
	Temperature float64
	Humidity    int64
	Status      string
}
