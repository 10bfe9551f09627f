// internal/service/checkout/infrastructure/adapter/terminal_sheet.go
package adapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"tiffin/internal/service/checkout/domain"
	"tiffin/internal/service/checkout/port"
	orderadapter "tiffin/internal/service/order/infrastructure/adapter"
)

var ErrSandboxDisabled = errors.New("terminal payment sheet only runs against the payment sandbox")

// Signer 为 (渠道订单号, 支付号) 生成渠道签名。
type Signer func(orderID, paymentID string) string

// SandboxSigner 只有显式开启沙箱模式时才返回签名函数，生产密钥不应出现在客户端。
func SandboxSigner(enabled bool, secret string) (Signer, error) {
	if !enabled {
		return nil, ErrSandboxDisabled
	}
	if secret == "" {
		return nil, errors.New("sandbox signing secret is empty")
	}
	return orderadapter.NewHMACSignatureVerifier(secret).Sign, nil
}

type readResult struct {
	line string
	err  error
}

// TerminalSheet 是命令行下的收银台：展示金额并读取用户选择。
// y 确认支付，n 取消，f 模拟渠道失败。签名由 Signer 生成，用于沙箱联调。
type TerminalSheet struct {
	in   *bufio.Reader
	out  io.Writer
	sign Signer

	lines     chan readResult
	startRead sync.Once
}

var _ port.PaymentSheet = (*TerminalSheet)(nil)

func NewTerminalSheet(in io.Reader, out io.Writer, sign Signer) *TerminalSheet {
	return &TerminalSheet{in: bufio.NewReader(in), out: out, sign: sign, lines: make(chan readResult)}
}

// readLines 是唯一读取输入的 goroutine，读到 EOF 或错误后关闭 lines。
func (s *TerminalSheet) readLines() {
	defer close(s.lines)
	for {
		line, err := s.in.ReadString('\n')
		s.lines <- readResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

func (s *TerminalSheet) Present(ctx context.Context, intent *domain.PaymentIntent, payer domain.Payer, cb port.SheetCallbacks) error {
	fmt.Fprintf(s.out, "\nPay %s %.2f for order %s", intent.Currency, float64(intent.Amount)/100, intent.ProviderOrderID)
	if payer.Name != "" {
		fmt.Fprintf(s.out, " (%s)", payer.Name)
	}
	fmt.Fprint(s.out, "\n[y] pay  [n] cancel  [f] simulate failure: ")

	s.startRead.Do(func() { go s.readLines() })
	go func() {
		var (
			r  readResult
			ok bool
		)
		select {
		case <-ctx.Done():
			return
		case r, ok = <-s.lines:
		}
		line := r.line
		if !ok || (r.err != nil && line == "") {
			cb.OnDismiss()
			return
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			paymentID := "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
			cb.OnSuccess(domain.CaptureReceipt{
				ProviderOrderID:   intent.ProviderOrderID,
				ProviderPaymentID: paymentID,
				ProviderSignature: s.sign(intent.ProviderOrderID, paymentID),
			})
		case "f":
			cb.OnFailure("Payment declined by bank")
		default:
			cb.OnDismiss()
		}
	}()
	return nil
}
