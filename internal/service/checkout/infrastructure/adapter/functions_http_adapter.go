// internal/service/checkout/infrastructure/adapter/functions_http_adapter.go
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"tiffin/internal/pkg/httpclient"
	"tiffin/internal/service/checkout/domain"
	"tiffin/internal/service/checkout/port"
)

// 各函数服务在注册中心里的名字
const (
	IntentServiceName     = "order-intent-service"
	OrderServiceName      = "order-service"
	AssignmentServiceName = "vendor-assignment-service"
)

// FunctionsHTTPAdapter 通过 HTTP 调用三个服务端函数，实现 IntentCreator / OrderRecorder / VendorAssigner。
type FunctionsHTTPAdapter struct {
	client *httpclient.Client
}

var (
	_ port.IntentCreator  = (*FunctionsHTTPAdapter)(nil)
	_ port.OrderRecorder  = (*FunctionsHTTPAdapter)(nil)
	_ port.VendorAssigner = (*FunctionsHTTPAdapter)(nil)
)

func NewFunctionsHTTPAdapter(client *httpclient.Client) *FunctionsHTTPAdapter {
	return &FunctionsHTTPAdapter{client: client}
}

func (a *FunctionsHTTPAdapter) CreateIntent(ctx context.Context, session *domain.Session, lines []domain.IntentLine) (*domain.PaymentIntent, error) {
	req := struct {
		Cart []domain.IntentLine `json:"cart"`
	}{Cart: lines}
	var intent domain.PaymentIntent
	if err := a.client.PostJSON(ctx, IntentServiceName, "/create-payment-order", bearer(session), req, &intent); err != nil {
		return nil, classify(err)
	}
	return &intent, nil
}

func (a *FunctionsHTTPAdapter) RecordPaidOrder(ctx context.Context, session *domain.Session, receipt domain.CaptureReceipt) (*domain.OrderRecord, error) {
	var order domain.OrderRecord
	if err := a.client.PostJSON(ctx, OrderServiceName, "/record-paid-order", bearer(session), receipt, &order); err != nil {
		return nil, classify(err)
	}
	return &order, nil
}

func (a *FunctionsHTTPAdapter) Assign(ctx context.Context, session *domain.Session, orderID string, productIDs []string) (*domain.Assignment, error) {
	req := struct {
		OrderID    string   `json:"orderId"`
		ProductIDs []string `json:"productIds"`
	}{OrderID: orderID, ProductIDs: productIDs}
	var resp struct {
		Success bool `json:"success"`
		domain.Assignment
	}
	if err := a.client.PostJSON(ctx, AssignmentServiceName, "/assign-order-to-vendor", bearer(session), req, &resp); err != nil {
		return nil, classify(err)
	}
	if !resp.Success {
		return nil, errors.New("assignment function reported no success")
	}
	return &resp.Assignment, nil
}

func bearer(session *domain.Session) http.Header {
	h := http.Header{}
	if session != nil && session.Token != "" {
		h.Set("Authorization", "Bearer "+session.Token)
	}
	return h
}

// classify 把下游错误归类：401 视为会话失效，5xx 与网络错误（含熔断打开）视为可重试的暂时性故障。
func classify(err error) error {
	var se *httpclient.StatusError
	switch {
	case errors.As(err, &se):
		switch {
		case se.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", port.ErrNoSession, se.Message)
		case se.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %s", port.ErrUnavailable, se.Message)
		default:
			return errors.New(se.Message)
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", port.ErrUnavailable, err)
	}
}
