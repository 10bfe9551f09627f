// cmd/checkout-client/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"tiffin/internal/pkg/bootstrap"
	"tiffin/internal/pkg/httpclient"
	"tiffin/internal/pkg/logger"
	"tiffin/internal/pkg/nacos"
	"tiffin/internal/service/cart"
	"tiffin/internal/service/checkout/application"
	"tiffin/internal/service/checkout/application/saga"
	"tiffin/internal/service/checkout/domain"
	"tiffin/internal/service/checkout/gateway"
	"tiffin/internal/service/checkout/infrastructure/adapter"
	"tiffin/internal/service/checkout/port"
	"tiffin/internal/tracing"
	"tiffin/internal/zookeeper"
)

const serviceName = "checkout-client"

// checkout-client 是结账流程的命令行客户端，在终端里模拟移动端的购物车和收银台。
//
//	checkout-client -sandbox -token $TIFFIN_TOKEN -items p1:65:2,p2:80
func main() {
	var (
		token   = flag.String("token", os.Getenv("TIFFIN_TOKEN"), "session token issued at sign-in")
		items   = flag.String("items", "", "comma separated cart lines id:price[:qty]")
		name    = flag.String("name", "", "payer name shown on the payment sheet")
		email   = flag.String("email", "", "payer email")
		sandbox = flag.Bool("sandbox", false, "sign terminal payments with PAYMENT_SANDBOX_SECRET (payment sandbox only)")
	)
	flag.Parse()

	cfg := bootstrap.Init()
	logger.Init(serviceName, cfg.App.LogLevel)
	log := logger.Ctx(context.Background())

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tracer := otel.Tracer(serviceName)

	basket := cart.NewAggregator()
	if err := fillCart(basket, *items); err != nil {
		log.Fatal().Err(err).Msg("invalid -items")
	}

	resolver, closeResolver, err := newResolver(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build service resolver")
	}
	defer closeResolver()
	functions := adapter.NewFunctionsHTTPAdapter(httpclient.NewClient(tracer, resolver, serviceName))

	guard, closeGuard := newGuard(cfg)
	defer closeGuard()

	// 终端收银台只能对接沙箱，真实收银台由支付渠道签名
	sign, err := adapter.SandboxSigner(*sandbox, os.Getenv("PAYMENT_SANDBOX_SECRET"))
	if err != nil {
		log.Fatal().Err(err).Msg("refusing to start the terminal payment sheet, run with -sandbox against a sandbox deployment")
	}
	sheet := adapter.NewTerminalSheet(os.Stdin, os.Stdout, sign)

	orch := application.NewOrchestrator(application.Dependencies{
		Cart:     basket,
		Sessions: adapter.NewTokenSessionProvider(*token),
		Gateway:  gateway.NewAdapter(functions, sheet, tracer),
		Recorder: functions,
		Assigner: functions,
		Guard:    guard,
		Tracer:   tracer,
		Timeouts: saga.Timeouts{
			Intent:  cfg.Checkout.IntentTimeout,
			Payment: cfg.Checkout.PaymentTimeout,
			Persist: cfg.Checkout.PersistTimeout,
			Assign:  cfg.Checkout.AssignTimeout,
		},
	})
	orch.OnTransition(func(from, to domain.State) {
		log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("Checkout state changed")
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snap := basket.Snapshot()
	fmt.Printf("Cart: %d items, displayed total %.2f\n", snap.TotalItems, snap.TotalPrice)

	res, err := orch.Checkout(ctx, domain.Payer{Name: *name, Email: *email})
	switch {
	case res != nil && res.Cancelled:
		fmt.Println("Payment cancelled. Your cart is unchanged.")
	case err != nil:
		fmt.Fprintf(os.Stderr, "Checkout failed [%s]: %s\n", res.Failure.Code, res.Failure.Message)
		if res.Failure.Kind == domain.KindAuth {
			fmt.Fprintln(os.Stderr, "Sign in again and retry.")
		}
		stop()
		os.Exit(1)
	default:
		fmt.Printf("✅ Order %s placed with %s (status %s, total %.2f)\n",
			res.Order.ID, res.Assignment.Vendor.Name, res.Order.Status, res.Order.Total)
	}
}

// fillCart 解析 id:price[:qty]，价格只用于展示。
func fillCart(basket *cart.Aggregator, spec string) error {
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return errors.Errorf("bad cart line %q", item)
		}
		price, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return errors.Wrapf(err, "bad price in %q", item)
		}
		qty := 1
		if len(parts) == 3 {
			if qty, err = strconv.Atoi(parts[2]); err != nil {
				return errors.Wrapf(err, "bad quantity in %q", item)
			}
		}
		if err := basket.Add(cart.Product{ID: parts[0], Name: parts[0], Price: price}); err != nil {
			return err
		}
		basket.SetQuantity(parts[0], qty)
	}
	return nil
}

// newResolver 启用 Nacos 时按服务名发现函数服务，否则使用配置里的固定地址。
func newResolver(cfg *bootstrap.Config) (httpclient.Resolver, func(), error) {
	if !cfg.Infra.Nacos.Enabled {
		return httpclient.StaticResolver(cfg.Checkout.Services), func() {}, nil
	}
	client, err := nacos.NewNacosClient(cfg.Infra.Nacos.Addrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// newGuard 配置了 ZooKeeper 时跨设备互斥，否则只在本进程内互斥。
func newGuard(cfg *bootstrap.Config) (port.AttemptGuard, func()) {
	if len(cfg.Infra.Zookeeper.Servers) == 0 {
		return adapter.NewLocalAttemptGuard(), func() {}
	}
	conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 5*time.Second)
	if err != nil {
		logger.Ctx(context.Background()).Warn().Err(err).Msg("ZooKeeper unavailable, falling back to local checkout guard")
		return adapter.NewLocalAttemptGuard(), func() {}
	}
	return adapter.NewZKAttemptGuard(conn), conn.Close
}
