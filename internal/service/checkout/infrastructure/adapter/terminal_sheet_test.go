// internal/service/checkout/infrastructure/adapter/terminal_sheet_test.go
package adapter

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiffin/internal/service/checkout/domain"
	"tiffin/internal/service/checkout/port"
)

func presentWith(t *testing.T, input string) (string, domain.CaptureReceipt, string) {
	t.Helper()
	var out bytes.Buffer
	sheet := NewTerminalSheet(strings.NewReader(input), &out, func(o, p string) string { return "sig:" + o + "|" + p })

	done := make(chan struct{})
	var (
		kind    string
		receipt domain.CaptureReceipt
		message string
	)
	cb := port.SheetCallbacks{
		OnSuccess: func(r domain.CaptureReceipt) { kind, receipt = "success", r; close(done) },
		OnDismiss: func() { kind = "dismiss"; close(done) },
		OnFailure: func(m string) { kind, message = "failure", m; close(done) },
	}
	intent := &domain.PaymentIntent{ProviderOrderID: "order_abc", Amount: 13000, Currency: "INR"}
	require.NoError(t, sheet.Present(context.Background(), intent, domain.Payer{Name: "Asha"}, cb))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sheet never reported")
	}
	assert.Contains(t, out.String(), "Pay INR 130.00 for order order_abc")
	return kind, receipt, message
}

func TestTerminalSheet(t *testing.T) {
	kind, receipt, _ := presentWith(t, "y\n")
	assert.Equal(t, "success", kind)
	assert.Equal(t, "order_abc", receipt.ProviderOrderID)
	assert.True(t, strings.HasPrefix(receipt.ProviderPaymentID, "pay_"))
	assert.Equal(t, "sig:order_abc|"+receipt.ProviderPaymentID, receipt.ProviderSignature)

	kind, _, _ = presentWith(t, "n\n")
	assert.Equal(t, "dismiss", kind)

	kind, _, msg := presentWith(t, "f\n")
	assert.Equal(t, "failure", kind)
	assert.Equal(t, "Payment declined by bank", msg)

	kind, _, _ = presentWith(t, "")
	assert.Equal(t, "dismiss", kind)
}

func TestTerminalSheet_ExpiredPromptLeavesInputForNextPayment(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	sheet := NewTerminalSheet(pr, io.Discard, func(o, p string) string { return "sig" })
	intent := &domain.PaymentIntent{ProviderOrderID: "order_abc", Amount: 13000, Currency: "INR"}

	stale := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sheet.Present(ctx, intent, domain.Payer{}, port.SheetCallbacks{
		OnSuccess: func(domain.CaptureReceipt) { stale <- "success" },
		OnDismiss: func() { stale <- "dismiss" },
		OnFailure: func(string) { stale <- "failure" },
	}))
	cancel()
	time.Sleep(20 * time.Millisecond)

	got := make(chan string, 1)
	require.NoError(t, sheet.Present(context.Background(), intent, domain.Payer{}, port.SheetCallbacks{
		OnSuccess: func(domain.CaptureReceipt) { got <- "success" },
		OnDismiss: func() { got <- "dismiss" },
		OnFailure: func(string) { got <- "failure" },
	}))
	_, err := pw.Write([]byte("y\n"))
	require.NoError(t, err)

	select {
	case kind := <-got:
		assert.Equal(t, "success", kind)
	case <-time.After(time.Second):
		t.Fatal("second prompt never reported")
	}
	assert.Empty(t, stale)
}

func TestSandboxSigner(t *testing.T) {
	_, err := SandboxSigner(false, "secret")
	assert.ErrorIs(t, err, ErrSandboxDisabled)

	_, err = SandboxSigner(true, "")
	assert.Error(t, err)

	sign, err := SandboxSigner(true, "secret")
	require.NoError(t, err)
	assert.Len(t, sign("order_abc", "pay_1"), 64)
	assert.Equal(t, sign("order_abc", "pay_1"), sign("order_abc", "pay_1"))
}
