package main

import (
	"racereg/internal/participants/events"
	"racereg/internal/participants/handler"
	"racereg/internal/participants/repository"
	"racereg/internal/participants/service"
	"racereg/internal/participants/validator"
	"racereg/pkg/app"
	"racereg/pkg/config"
	"racereg/pkg/kafka"
	kafka_middleware "racereg/pkg/kafka/middleware"
	"racereg/pkg/sealer"
)

const ServiceName = "participants"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Participants service")
	serverApp := app.NewApplication()

	participantValidator := validator.NewParticipantValidator(cfg.BibRanges, cfg.Log)
	publisher := initPublisher(cfg, serverApp)
	participantService := initServices(cfg, participantValidator, publisher)

	if cfg.Kafka.Enabled {
		consumer, err := kafka.NewConsumer(
			cfg.Kafka,
			cfg.Kafka.TopicPaymentConfirmed,
			events.PaymentConfirmedHandler(participantService, participantValidator, cfg.Log),
			cfg.Log,
		)
		if err != nil {
			cfg.Log.Fatal("Failed to create payment confirmed consumer", "error", err)
		}
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		serverApp.AddWorker(consumer)
	}

	serverApp.SetApp(
		cfg,
		handler.NewHealthHandler(cfg.Client.Mongo, cfg.Log),
		handler.NewParticipantHandler(participantService, cfg.Log),
	)
	serverApp.Run()
}

func initPublisher(cfg *config.Config, serverApp *app.Application) service.EventPublisher {
	if !cfg.Kafka.Enabled {
		cfg.Log.Info("Kafka disabled, bib events will not be published")
		return events.Noop{}
	}

	publisher, err := events.NewKafkaPublisher(cfg.Kafka, ServiceName, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create event publisher", "error", err)
	}
	serverApp.AddCloser(publisher)
	return publisher
}

func initServices(cfg *config.Config, participantValidator *validator.ParticipantValidator, publisher service.EventPublisher) service.ParticipantService {
	var pickupSealer *sealer.Sealer
	if cfg.PickupTokenKey != "" {
		s, err := sealer.New(cfg.PickupTokenKey)
		if err != nil {
			cfg.Log.Fatal("Failed to initialize pickup token sealer", "error", err)
		}
		pickupSealer = s
	} else {
		cfg.Log.Warn("PICKUP_TOKEN_KEY not set, race-pack pickup endpoints are disabled")
	}

	participantRepo := repository.NewMongoParticipantRepository(cfg)
	participantService := service.NewParticipantService(
		participantRepo,
		participantValidator,
		publisher,
		pickupSealer,
		cfg,
	)

	cfg.Log.Info("Participants service initialized",
		"database", cfg.MongoDatabaseName,
		"bib_ranges", cfg.BibRanges.String(),
	)
	return participantService
}
