// cmd/vendor-assignment-service/main.go
package main

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"tiffin/internal/pkg/auth"
	"tiffin/internal/pkg/bootstrap"
	"tiffin/internal/pkg/db"
	"tiffin/internal/pkg/logger"
	"tiffin/internal/pkg/mq"
	"tiffin/internal/service/assignment/application"
	"tiffin/internal/service/assignment/infrastructure"
	"tiffin/internal/service/assignment/interfaces"
	"tiffin/internal/service/assignment/port"
	orderdomain "tiffin/internal/service/order/domain"
	orderinfra "tiffin/internal/service/order/infrastructure"
	"tiffin/internal/zookeeper"
)

const serviceName = "vendor-assignment-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg := bootstrap.Init()
	log := logger.Ctx(context.Background())

	if cfg.Infra.MySQL.AutoMigrate {
		if err := db.Migrate(cfg.Infra.MySQL.DSN); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate schema")
		}
	}
	gdb, err := db.Open(cfg.Infra.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}

	var policy port.VendorPolicy
	if cfg.Assignment.VendorPolicy != "" {
		celPolicy, err := infrastructure.NewCELVendorPolicy(cfg.Assignment.VendorPolicy)
		if err != nil {
			log.Fatal().Err(err).Str("expr", cfg.Assignment.VendorPolicy).Msg("invalid vendor policy")
		}
		policy = celPolicy
	}

	var publisher orderdomain.EventPublisher = orderdomain.NopPublisher{}
	closePublisher := func() {}
	if len(cfg.Infra.Kafka.Brokers) > 0 {
		writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.OrderEventsTopic)
		publisher = orderinfra.NewKafkaEventPublisher(writer)
		closePublisher = func() { _ = writer.Close() }
	}

	orders := orderinfra.NewGormOrderRepository(gdb)
	svc := application.NewAssignmentApplicationService(
		orders,
		infrastructure.NewGormVendorDirectory(gdb),
		policy,
		publisher,
		otel.Tracer(serviceName),
	)
	handler := interfaces.NewAssignmentHandler(svc, auth.NewVerifier(cfg.Auth.JWTSecret))
	sweeper := application.NewStalledAssignmentSweeper(orders, publisher, cfg.Assignment.StalledAfter, cfg.Assignment.SweepInterval)

	// 多副本部署时通过 ZooKeeper 选出唯一的清扫实例
	closeZK := func() {}
	if len(cfg.Infra.Zookeeper.Servers) > 0 {
		conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 5*time.Second)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to zookeeper")
		}
		leader, err := zookeeper.NewDistributedLock(conn, "assignment-sweeper")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create sweeper lock")
		}
		sweeper.WithLeader(leader)
		closeZK = conn.Close
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8083,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Router)
		},
		Background: []func(ctx context.Context) error{
			sweeper.Run,
			func(ctx context.Context) error {
				<-ctx.Done()
				closePublisher()
				closeZK()
				return nil
			},
		},
	})
}
