package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func load(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	if err := Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
}

func TestDefaults(t *testing.T) {
	load(t)

	if got := MQTTBroker(); got != "tcp://broker.emqx.io:1883" {
		t.Errorf("MQTTBroker = %s", got)
	}
	if got := MQTTTopic(); got != "sensors/telemetry" {
		t.Errorf("MQTTTopic = %s", got)
	}
	if got := ListenAddr(); got != ":5000" {
		t.Errorf("ListenAddr = %s", got)
	}
	if got := DBFile(); got != "database.db" {
		t.Errorf("DBFile = %s", got)
	}
	if DBDSN() != "" {
		t.Errorf("DBDSN should default to empty, got %s", DBDSN())
	}
	if got := APIReadTimeout(); got != 5*time.Second {
		t.Errorf("APIReadTimeout = %s", got)
	}
	if got := IngestQueueSize(); got != 256 {
		t.Errorf("IngestQueueSize = %d", got)
	}
	if MQTTQoS() != 0 || UseCloudServices() || RateLimitRPS() != 0 {
		t.Errorf("unexpected defaults: qos=%d cloud=%v rps=%v", MQTTQoS(), UseCloudServices(), RateLimitRPS())
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("MQTT_QOS", "7")
	t.Setenv("API_READ_TIMEOUT", "250ms")
	t.Setenv("USE_CLOUD_SERVICES", "true")
	t.Setenv("SIM_INTERVAL", "garbage")
	load(t)

	if got := ListenAddr(); got != ":8081" {
		t.Errorf("ListenAddr = %s", got)
	}
	if got := MQTTQoS(); got != 2 {
		t.Errorf("QoS above 2 should clamp to 2, got %d", got)
	}
	if got := APIReadTimeout(); got != 250*time.Millisecond {
		t.Errorf("APIReadTimeout = %s", got)
	}
	if !UseCloudServices() {
		t.Error("expected cloud services enabled")
	}
	if got := SimInterval(); got != 2*time.Second {
		t.Errorf("unparseable interval should fall back to 2s, got %s", got)
	}
}

func TestMQTTClientID(t *testing.T) {
	load(t)

	a, b := MQTTClientID("telemetry-ingest"), MQTTClientID("telemetry-ingest")
	if !strings.HasPrefix(a, "telemetry-ingest-") {
		t.Errorf("generated id missing prefix: %s", a)
	}
	if a == b {
		t.Errorf("generated ids should differ, both %s", a)
	}

	t.Setenv("MQTT_CLIENT_ID", "fixed")
	if got := MQTTClientID("telemetry-ingest"); got != "fixed" {
		t.Errorf("expected configured id, got %s", got)
	}
}

func TestLoggerLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	load(t)

	var buf bytes.Buffer
	logger := Logger(&buf)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected log output: %s", out)
	}

	t.Setenv("LOG_LEVEL", "nonsense")
	buf.Reset()
	logger = Logger(&buf)
	logger.Info().Msg("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("unknown level should fall back to info: %s", buf.String())
	}
}
