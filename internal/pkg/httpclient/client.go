// internal/pkg/httpclient/client.go

package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Resolver 把逻辑服务名解析为 base URL（静态配置或 Nacos）。
type Resolver interface {
	Resolve(ctx context.Context, serviceName string) (string, error)
}

// StaticResolver 使用配置里的固定地址。
type StaticResolver map[string]string

func (s StaticResolver) Resolve(_ context.Context, serviceName string) (string, error) {
	base, ok := s[serviceName]
	if !ok || base == "" {
		return "", fmt.Errorf("no address configured for service '%s'", serviceName)
	}
	return strings.TrimRight(base, "/"), nil
}

// StatusError 表示下游返回了非 2xx 响应。Message 取自响应体的 {"error": "..."}。
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("downstream returned %d: %s", e.StatusCode, e.Message)
}

// Client 是一个可追踪的、带熔断的 JSON HTTP 客户端
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client
	resolver   Resolver
	breaker    *gobreaker.CircuitBreaker[*http.Response]
}

// NewClient 创建一个新的客户端实例。
// http.Client 不设置 Timeout，完全受控于每次请求传入的 context。
func NewClient(tracer trace.Tracer, resolver Resolver, name string) *Client {
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// 4xx 是业务结果，不计入熔断
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			se, ok := err.(*StatusError)
			return ok && se.StatusCode < http.StatusInternalServerError
		},
	})
	return &Client{Tracer: tracer, HTTPClient: httpClient, resolver: resolver, breaker: breaker}
}

// PostJSON 向 serviceName+path 发送 JSON 请求，2xx 时把响应解码进 out。
func (c *Client) PostJSON(ctx context.Context, serviceName, path string, header http.Header, in, out any) error {
	base, err := c.resolver.Resolve(ctx, serviceName)
	if err != nil {
		return err
	}
	return c.Do(ctx, http.MethodPost, base+path, header, in, out)
}

// Do 执行一次带追踪和熔断的请求。
func (c *Client) Do(ctx context.Context, method, url string, header http.Header, in, out any) error {
	ctx, span := c.Tracer.Start(ctx, fmt.Sprintf("call %s", method), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.url", url),
		attribute.String("http.method", method),
	)

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		span.RecordError(err)
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	var respBody []byte
	_, err = c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(respBody, resp.Status)}
		}
		return resp, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			span.RecordError(err)
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func errorMessage(body []byte, fallback string) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return fallback
}
