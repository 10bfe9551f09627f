// cmd/order-service/main.go
package main

import (
	"context"

	"go.opentelemetry.io/otel"

	"tiffin/internal/pkg/auth"
	"tiffin/internal/pkg/bootstrap"
	"tiffin/internal/pkg/db"
	"tiffin/internal/pkg/logger"
	"tiffin/internal/pkg/mq"
	"tiffin/internal/pkg/redis"
	intentinfra "tiffin/internal/service/intent/infrastructure"
	"tiffin/internal/service/order/application"
	"tiffin/internal/service/order/domain"
	"tiffin/internal/service/order/infrastructure"
	"tiffin/internal/service/order/infrastructure/adapter"
	"tiffin/internal/service/order/interfaces"
)

const serviceName = "order-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg := bootstrap.Init()
	ctx := context.Background()
	log := logger.Ctx(ctx)

	if cfg.Payment.KeySecret == "" {
		log.Fatal().Msg("payment.keySecret is required to verify payment signatures")
	}

	if cfg.Infra.MySQL.AutoMigrate {
		if err := db.Migrate(cfg.Infra.MySQL.DSN); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate schema")
		}
	}
	gdb, err := db.Open(cfg.Infra.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}

	// 支付意图由意图服务写入 Redis，这里只做一次性认领
	rdb, err := redis.NewClient(ctx, cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis client")
	}
	claimer, err := intentinfra.NewRedisIntentRegistry(rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load intent scripts")
	}

	publisher, closePublisher := newPublisher(cfg)

	svc := application.NewOrderApplicationService(
		infrastructure.NewGormOrderRepository(gdb),
		claimer,
		adapter.NewHMACSignatureVerifier(cfg.Payment.KeySecret),
		publisher,
		otel.Tracer(serviceName),
	)
	handler := interfaces.NewOrderHandler(svc, auth.NewVerifier(cfg.Auth.JWTSecret))

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8082,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Router)
		},
		Background: []func(ctx context.Context) error{
			func(ctx context.Context) error {
				<-ctx.Done()
				closePublisher()
				return rdb.Close()
			},
		},
	})
}

// newPublisher 未配置 Kafka 时退化为丢弃事件。
func newPublisher(cfg *bootstrap.Config) (domain.EventPublisher, func()) {
	if len(cfg.Infra.Kafka.Brokers) == 0 {
		return domain.NopPublisher{}, func() {}
	}
	writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.OrderEventsTopic)
	return infrastructure.NewKafkaEventPublisher(writer), func() { _ = writer.Close() }
}
