package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/cloud"
	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/config"
	httpHandlers "github.com/ANIKETSHETTY47/sensor-telemetry/internal/http"
	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/repository"
	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/service"
	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/subscriber"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	log.Logger = config.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := repository.Open(ctx, config.DBDSN(), config.DBFile())
	if err != nil {
		log.Fatal().Err(err).Str("db_file", config.DBFile()).Msg("store init failed")
	}
	log.Info().Str("db_file", config.DBFile()).Bool("dsn", config.DBDSN() != "").Msg("store ready")

	svcs := service.New(store, log.Logger)

	var alerter subscriber.Alerter
	var scheduler *cron.Cron
	if config.UseCloudServices() {
		alerter, scheduler = startCloud(ctx, svcs)
	}

	sub := subscriber.New(subscriber.Options{
		Broker:    config.MQTTBroker(),
		ClientID:  config.MQTTClientID("telemetry-ingest"),
		Topic:     config.MQTTTopic(),
		QoS:       config.MQTTQoS(),
		Username:  config.MQTTUsername(),
		Password:  config.MQTTPassword(),
		QueueSize: config.IngestQueueSize(),
		Alerter:   alerter,
	}, svcs.Readings, log.Logger)
	sub.Start()

	app := httpHandlers.NewApp(httpHandlers.AppConfig{
		CORSOrigins:    config.CORSOrigins(),
		RateLimitRPS:   config.RateLimitRPS(),
		RateLimitBurst: config.RateLimitBurst(),
	}, log.Logger)
	httpHandlers.Register(app, svcs, sub, config.APIReadTimeout(), log.Logger)

	listenErr := make(chan error, 1)
	go func() {
		addr := config.ListenAddr()
		log.Info().Str("addr", addr).Msg("api listening")
		listenErr <- app.Listen(addr)
	}()

	failed := waitForStop(ctx, listenErr)

	if err := app.ShutdownWithTimeout(config.ShutdownTimeout()); err != nil {
		log.Error().Err(err).Msg("api shutdown")
	}
	sub.Close()
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("store close")
	}
	if failed {
		stop()
		log.Error().Msg("server exit after listener failure")
		os.Exit(1)
	}
	log.Info().Msg("server exit")
}

// waitForStop blocks until a signal arrives or the listener exits. It reports true
// for a listener exit, which makes the process exit non-zero after shutdown.
func waitForStop(ctx context.Context, listenErr <-chan error) bool {
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
		return false
	case err := <-listenErr:
		log.Error().Err(err).Msg("api listener stopped")
		return true
	}
}

// startCloud wires the optional AWS side: SNS alerts on broker loss and a scheduled S3 archive.
// Failures here are logged and the service runs without them.
func startCloud(ctx context.Context, svcs *service.Services) (subscriber.Alerter, *cron.Cron) {
	var alerter subscriber.Alerter
	if arn := config.SNSTopicArn(); arn != "" {
		sns, err := cloud.NewSNSClient(ctx, config.AWSRegion(), arn, log.Logger)
		if err != nil {
			log.Error().Err(err).Msg("sns disabled")
		} else {
			alerter = sns
		}
	}

	s3, err := cloud.NewS3Client(ctx, config.AWSRegion(), config.S3Bucket())
	if err != nil {
		log.Error().Err(err).Msg("s3 archive disabled")
		return alerter, nil
	}
	archive := service.NewArchiveService(svcs.Repos, s3, config.ArchivePrefix(), config.ArchiveBatch(), log.Logger)

	c := cron.New()
	_, err = c.AddFunc(config.ArchiveSchedule(), func() {
		if _, err := archive.Run(ctx); err != nil {
			log.Error().Err(err).Msg("scheduled archive failed")
		}
	})
	if err != nil {
		log.Error().Err(err).Str("schedule", config.ArchiveSchedule()).Msg("s3 archive disabled")
		return alerter, nil
	}
	c.Start()
	log.Info().
		Str("bucket", config.S3Bucket()).
		Str("schedule", config.ArchiveSchedule()).
		Msg("s3 archive scheduled")
	return alerter, c
}
