package main

import (
	"slotcore/internal/cache"
	"slotcore/internal/conflicts"
	conflictrepository "slotcore/internal/conflicts/repository"
	converterrepository "slotcore/internal/converter/repository"
	converterservice "slotcore/internal/converter/service"
	"slotcore/internal/engine/handler"
	engineservice "slotcore/internal/engine/service"
	"slotcore/internal/events"
	holdrepository "slotcore/internal/holds/repository"
	holdservice "slotcore/internal/holds/service"
	"slotcore/internal/holds/validator"
	lockrepository "slotcore/internal/locks/repository"
	lockservice "slotcore/internal/locks/service"
	"slotcore/pkg/app"
	"slotcore/pkg/config"
	"slotcore/pkg/kafka"
	kafkaconfig "slotcore/pkg/kafka/config"
	kafkamiddleware "slotcore/pkg/kafka/middleware"
)

const ServiceName = "slotcore-engine"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting booking engine")

	serverApp := app.NewApplication()
	engineHandler, streamHandler := initServices(cfg, serverApp)
	serverApp.SetApp(cfg, engineHandler, streamHandler)
	serverApp.Run()
}

func initServices(cfg *config.Config, serverApp *app.Application) (*handler.EngineHandler, *handler.EventStreamHandler) {
	producer := initProducer(cfg)

	var sink events.EventSink
	if producer != nil {
		sink = producer
	}
	broadcaster := events.NewBroadcaster(cfg, sink, ServiceName)

	cacheStore := cache.NewStore(cfg)

	lockRepo := lockrepository.NewMongoLockRepository(cfg)
	locks := lockservice.NewLockService(lockRepo, cfg)

	conflictRepo := conflictrepository.NewMongoConflictRepository(cfg)
	detector := conflicts.NewDetector(conflictRepo, broadcaster, cfg)

	holdValidator := validator.NewHoldValidator(cfg.Log)
	holdRepo := holdrepository.NewMongoHoldRepository(cfg)
	bookingRepo := converterrepository.NewMongoBookingRepository(cfg)
	versionRepo := converterrepository.NewMongoResourceVersionRepository(cfg)

	holds := holdservice.NewHoldManager(
		holdRepo,
		locks,
		bookingRepo,
		detector,
		cacheStore,
		broadcaster,
		holdValidator,
		cfg,
	)
	holds.Start()

	converter := converterservice.NewConverterService(
		bookingRepo,
		versionRepo,
		holdRepo,
		locks,
		detector,
		cacheStore,
		broadcaster,
		holdValidator,
		cfg,
	)

	availability := engineservice.NewAvailabilityService(holdRepo, bookingRepo, cacheStore, cfg)

	serverApp.OnShutdown(func() {
		holds.Stop()
		broadcaster.Close()
		cacheStore.Stop()
		if producer != nil {
			if err := producer.Close(); err != nil {
				cfg.Log.Warn("Kafka producer close failed", "error", err)
			}
		}
	})

	cfg.Log.Info("Engine services initialized", "database", cfg.MongoDatabaseName)
	return handler.NewEngineHandler(holds, converter, detector, availability, locks, cfg.Log),
		handler.NewEventStreamHandler(broadcaster, cfg.Log)
}

func initProducer(cfg *config.Config) *kafka.Producer {
	kafkaCfg, err := kafkaconfig.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	if !kafkaCfg.Enabled {
		cfg.Log.Info("Kafka sink disabled, events stay in-process")
		return nil
	}

	producer, err := kafka.NewProducer(kafkaCfg)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}

	metrics := kafkamiddleware.NewMetrics()
	producer.Use(kafkamiddleware.MetricsProducerMiddleware(metrics))
	producer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))

	cfg.Log.Info("Kafka producer initialized", "brokers", kafkaCfg.Brokers, "topic", kafkaCfg.EventTopic)
	return producer
}
