package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/domain"
	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/repository"
	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/service"
	"github.com/rs/zerolog"
)

func newServices(t *testing.T) (*service.Services, *repository.Store) {
	t.Helper()
	store, err := repository.Open(context.Background(), "", filepath.Join(t.TempDir(), "service.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return service.New(store, zerolog.Nop()), store
}

func payload(i int) []byte {
	return []byte(fmt.Sprintf(
		`{"sensor_id":"sensor_001","timestamp":"2024-01-01T00:00:%02dZ","temperature":%d.5,"humidity":%d,"status":"active"}`,
		i%60, 20+i%10, 40+i%40))
}

func TestFromMQTTStoresInArrivalOrder(t *testing.T) {
	svcs, _ := newServices(t)
	ctx := context.Background()

	const n = 15
	for i := 0; i < n; i++ {
		id, err := svcs.Readings.FromMQTT(ctx, "sensors/telemetry", payload(i))
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if id != int64(i+1) {
			t.Errorf("message %d: expected id %d, got %d", i, i+1, id)
		}
	}

	got, err := svcs.Readings.Recent(ctx, 100)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != n {
		t.Fatalf("expected %d readings, got %d", n, len(got))
	}
	for i, r := range got {
		arrival := n - 1 - i
		if r.ID != int64(arrival+1) {
			t.Errorf("position %d: expected id %d, got %d", i, arrival+1, r.ID)
		}
		if want := fmt.Sprintf("2024-01-01T00:00:%02dZ", arrival%60); r.Timestamp != want {
			t.Errorf("id %d: expected timestamp %s, got %s", r.ID, want, r.Timestamp)
		}
	}
}

func TestFromMQTTMalformedDoesNotStore(t *testing.T) {
	svcs, _ := newServices(t)
	ctx := context.Background()

	if _, err := svcs.Readings.FromMQTT(ctx, "t", payload(0)); err != nil {
		t.Fatalf("first message: %v", err)
	}

	_, err := svcs.Readings.FromMQTT(ctx, "t", []byte(`{"sensor_id":"s1","timestamp":"t","humidity":40,"status":"active"}`))
	if !errors.Is(err, domain.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}

	id, err := svcs.Readings.FromMQTT(ctx, "t", payload(1))
	if err != nil {
		t.Fatalf("message after malformed one: %v", err)
	}
	if id != 2 {
		t.Errorf("expected id 2 after discarded message, got %d", id)
	}

	got, err := svcs.Readings.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 stored readings, got %d", len(got))
	}
}

func TestFromMQTTWriteFailure(t *testing.T) {
	svcs, store := newServices(t)
	store.Close()

	_, err := svcs.Readings.FromMQTT(context.Background(), "t", payload(0))
	if !errors.Is(err, domain.ErrWriteFailure) {
		t.Errorf("expected ErrWriteFailure, got %v", err)
	}
}
