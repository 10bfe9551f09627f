// cmd/push-gateway/main.go
package main

import (
	"context"

	"github.com/google/uuid"

	"tiffin/internal/pkg/auth"
	"tiffin/internal/pkg/bootstrap"
	"tiffin/internal/pkg/logger"
	"tiffin/internal/pkg/mq"
	"tiffin/internal/service/push"
)

const (
	serviceName     = "push-gateway"
	consumerGroupID = "push-gateway"
)

func main() {
	cfg := bootstrap.Init()
	nodeID := serviceName + "-" + uuid.New().String()[:8]

	if len(cfg.Infra.Kafka.Brokers) == 0 {
		logger.Ctx(context.Background()).Fatal().Msg("push gateway requires infra.kafka.brokers")
	}

	hub := push.NewHub(nodeID)
	// 每个节点只推送自己持有的连接，所以每个节点都要收到全部事件，消费组按节点区分
	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.OrderEventsTopic, consumerGroupID+"-"+nodeID)
	consumer := push.NewOrderEventConsumer(reader, hub)
	handler := push.NewHandler(hub, auth.NewVerifier(cfg.Auth.JWTSecret), cfg.App.CORSAllowOrigins)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8088,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Router)
		},
		Background: []func(ctx context.Context) error{hub.Run, consumer.Run},
	})
}
