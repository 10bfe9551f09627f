// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 配置全局 zerolog 实例，所有服务在启动时调用一次。
func Init(serviceName, level string) {
	InitWithWriter(serviceName, level, os.Stdout)
}

// InitWithWriter 与 Init 相同，但允许测试注入输出目标。
func InitWithWriter(serviceName, level string, w io.Writer) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(lvl)
	zlog.Logger = zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
}

// Ctx 返回一个携带当前链路信息的 logger。
// 如果 ctx 中有有效的 Span，会自动附加 trace_id / span_id，便于在 Jaeger 与日志之间跳转。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zlog.Logger
	if ctx == nil {
		return &l
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		l = l.With().
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Logger()
	}
	return &l
}
