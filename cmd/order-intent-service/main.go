// cmd/order-intent-service/main.go
package main

import (
	"context"

	"go.opentelemetry.io/otel"

	"tiffin/internal/pkg/auth"
	"tiffin/internal/pkg/bootstrap"
	"tiffin/internal/pkg/db"
	"tiffin/internal/pkg/httpclient"
	"tiffin/internal/pkg/logger"
	"tiffin/internal/pkg/redis"
	"tiffin/internal/service/intent/application"
	"tiffin/internal/service/intent/infrastructure"
	"tiffin/internal/service/intent/interfaces"
	"tiffin/internal/service/intent/port"
)

const serviceName = "order-intent-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg := bootstrap.Init()
	ctx := context.Background()
	log := logger.Ctx(ctx)
	tracer := otel.Tracer(serviceName)

	if cfg.Infra.MySQL.AutoMigrate {
		if err := db.Migrate(cfg.Infra.MySQL.DSN); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate schema")
		}
	}
	gdb, err := db.Open(cfg.Infra.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}

	rdb, err := redis.NewClient(ctx, cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis client")
	}
	registry, err := infrastructure.NewRedisIntentRegistry(rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load intent scripts")
	}

	var provider port.PaymentProvider
	if cfg.Payment.KeyID == "" || cfg.Payment.KeySecret == "" {
		log.Warn().Msg("⚠️ Payment provider keys not set, using sandbox provider")
		provider = infrastructure.SandboxProvider{}
	} else {
		client := httpclient.NewClient(tracer, httpclient.StaticResolver{}, "payment-provider")
		client.HTTPClient.Timeout = cfg.Payment.Timeout
		provider = infrastructure.NewProviderHTTPAdapter(client, cfg.Payment.BaseURL, cfg.Payment.KeyID, cfg.Payment.KeySecret)
	}

	svc := application.NewIntentApplicationService(
		infrastructure.NewGormProductCatalog(gdb),
		provider,
		registry,
		tracer,
		cfg.App.Currency,
		cfg.Payment.IntentTTL,
	)
	handler := interfaces.NewIntentHandler(svc, auth.NewVerifier(cfg.Auth.JWTSecret))

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8081,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Router)
		},
		Background: []func(ctx context.Context) error{
			func(ctx context.Context) error {
				<-ctx.Done()
				return rdb.Close()
			},
		},
	})
}
