// internal/service/order/infrastructure/adapter/signature_hmac_adapter.go
package adapter

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"tiffin/internal/service/order/port"
)

// HMACSignatureVerifier 按支付渠道的约定校验签名：hex(HMAC_SHA256(keySecret, orderId|paymentId))。
type HMACSignatureVerifier struct {
	secret []byte
}

func NewHMACSignatureVerifier(keySecret string) *HMACSignatureVerifier {
	return &HMACSignatureVerifier{secret: []byte(keySecret)}
}

func (v *HMACSignatureVerifier) Verify(providerOrderID, paymentID, signature string) error {
	if providerOrderID == "" || paymentID == "" || signature == "" {
		return port.ErrInvalidSignature
	}
	expected := v.Sign(providerOrderID, paymentID)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return port.ErrInvalidSignature
	}
	return nil
}

// Sign 计算签名，测试与本地沙箱支付页使用。
func (v *HMACSignatureVerifier) Sign(providerOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(providerOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
