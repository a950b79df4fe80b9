package config

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Load reads an optional .env file, then layers environment variables over the defaults.
func Load() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	// MQTT
	viper.SetDefault("MQTT_BROKER", "tcp://broker.emqx.io:1883")
	viper.SetDefault("MQTT_TOPIC", "sensors/telemetry")
	viper.SetDefault("MQTT_CLIENT_ID", "")
	viper.SetDefault("MQTT_QOS", 0)
	viper.SetDefault("MQTT_USERNAME", "")
	viper.SetDefault("MQTT_PASSWORD", "")
	viper.SetDefault("INGEST_QUEUE_SIZE", 256)

	// API
	viper.SetDefault("PORT", "5000")
	viper.SetDefault("API_READ_TIMEOUT", "5s")
	viper.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	viper.SetDefault("CORS_ORIGINS", "*")
	viper.SetDefault("RATE_LIMIT_RPS", 0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)

	// Storage. DB_DSN takes precedence over DB_FILE when set.
	viper.SetDefault("DB_FILE", "database.db")
	viper.SetDefault("DB_DSN", "")

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")

	// AWS Configuration
	viper.SetDefault("USE_CLOUD_SERVICES", "false")
	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("AWS_S3_BUCKET", "sensor-telemetry-archive")
	viper.SetDefault("AWS_SNS_TOPIC_ARN", "")
	viper.SetDefault("ARCHIVE_SCHEDULE", "@every 15m")
	viper.SetDefault("ARCHIVE_PREFIX", "readings/")
	viper.SetDefault("ARCHIVE_BATCH", 1000)

	// Simulator
	viper.SetDefault("SIM_SENSOR_ID", "sensor_001")
	viper.SetDefault("SIM_INTERVAL", "2s")
	viper.SetDefault("SIM_COUNT", 0)

	viper.AutomaticEnv()
	return nil
}

func MQTTBroker() string   { return viper.GetString("MQTT_BROKER") }
func MQTTTopic() string    { return viper.GetString("MQTT_TOPIC") }
func MQTTUsername() string { return viper.GetString("MQTT_USERNAME") }
func MQTTPassword() string { return viper.GetString("MQTT_PASSWORD") }

// MQTTClientID returns the configured id or a fresh one with the given prefix.
// Two processes sharing an id would keep kicking each other off the broker.
func MQTTClientID(prefix string) string {
	if id := viper.GetString("MQTT_CLIENT_ID"); id != "" {
		return id
	}
	return prefix + "-" + uuid.NewString()
}

// MQTTQoS clamps to the levels MQTT defines.
func MQTTQoS() byte {
	q := viper.GetInt("MQTT_QOS")
	if q < 0 {
		return 0
	}
	if q > 2 {
		return 2
	}
	return byte(q)
}

func IngestQueueSize() int { return viper.GetInt("INGEST_QUEUE_SIZE") }

func ListenAddr() string {
	port := strings.TrimPrefix(viper.GetString("PORT"), ":")
	if port == "" {
		port = "5000"
	}
	return ":" + port
}

func APIReadTimeout() time.Duration  { return durationOr("API_READ_TIMEOUT", 5*time.Second) }
func ShutdownTimeout() time.Duration { return durationOr("SHUTDOWN_TIMEOUT", 10*time.Second) }
func CORSOrigins() string            { return viper.GetString("CORS_ORIGINS") }
func RateLimitRPS() float64          { return viper.GetFloat64("RATE_LIMIT_RPS") }
func RateLimitBurst() int            { return viper.GetInt("RATE_LIMIT_BURST") }

func DBFile() string { return viper.GetString("DB_FILE") }
func DBDSN() string  { return viper.GetString("DB_DSN") }

func UseCloudServices() bool  { return viper.GetBool("USE_CLOUD_SERVICES") }
func AWSRegion() string       { return viper.GetString("AWS_REGION") }
func S3Bucket() string        { return viper.GetString("AWS_S3_BUCKET") }
func SNSTopicArn() string     { return viper.GetString("AWS_SNS_TOPIC_ARN") }
func ArchiveSchedule() string { return viper.GetString("ARCHIVE_SCHEDULE") }
func ArchivePrefix() string   { return viper.GetString("ARCHIVE_PREFIX") }
func ArchiveBatch() int       { return viper.GetInt("ARCHIVE_BATCH") }

func SimSensorID() string        { return viper.GetString("SIM_SENSOR_ID") }
func SimCount() int              { return viper.GetInt("SIM_COUNT") }
func SimInterval() time.Duration { return durationOr("SIM_INTERVAL", 2*time.Second) }

func durationOr(key string, fallback time.Duration) time.Duration {
	d := viper.GetDuration(key)
	if d <= 0 {
		return fallback
	}
	return d
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
// An unknown level falls back to info.
func Logger(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(viper.GetString("LOG_FORMAT"), "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(viper.GetString("LOG_LEVEL")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
