// internal/service/checkout/domain/state.go
package domain

// State 是单次结账尝试的状态机。
type State string

const (
	StateIdle            State = "idle"
	StateIntentPending   State = "intent_pending"
	StatePaymentPending  State = "payment_pending"
	StateOrderPersisting State = "order_persisting"
	StateAssigning       State = "assigning"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

// IsTerminal: completed / failed 为终态，idle 表示没有进行中的尝试。
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanStart 判断是否可以开始一次新的尝试。
func (s State) CanStart() bool {
	return s == StateIdle || s.IsTerminal()
}

// PaymentCaptured 判断该状态下是否已经扣款，扣款之后的失败必须留下可追查的订单。
func (s State) PaymentCaptured() bool {
	return s == StateOrderPersisting || s == StateAssigning || s == StateCompleted
}
