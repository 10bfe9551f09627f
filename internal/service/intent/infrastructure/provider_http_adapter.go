// internal/service/intent/infrastructure/provider_http_adapter.go
package infrastructure

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tiffin/internal/pkg/httpclient"
	"tiffin/internal/service/intent/domain"
	"tiffin/internal/service/intent/port"
)

// ProviderHTTPAdapter 通过支付渠道的 REST API 创建订单对象，使用 key id/secret 做 Basic 认证。
type ProviderHTTPAdapter struct {
	client    *httpclient.Client
	baseURL   string
	keyID     string
	keySecret string
}

func NewProviderHTTPAdapter(client *httpclient.Client, baseURL, keyID, keySecret string) *ProviderHTTPAdapter {
	return &ProviderHTTPAdapter{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
	}
}

func (a *ProviderHTTPAdapter) CreateOrder(ctx context.Context, req *port.CreateOrderRequest) (*domain.ProviderOrder, error) {
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(a.keyID+":"+a.keySecret)))

	var out domain.ProviderOrder
	if err := a.client.Do(ctx, http.MethodPost, a.baseURL+"/v1/orders", header, req, &out); err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && se.StatusCode < http.StatusInternalServerError {
			return nil, fmt.Errorf("provider rejected order: %s", se.Message)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: response without order id", domain.ErrProviderUnavailable)
	}
	return &out, nil
}
