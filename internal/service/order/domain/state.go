// internal/service/order/domain/state.go
package domain

// Status 定义了订单的生命周期状态，取值与持久化的 status 列一致。
type Status string

const (
	StatusPaymentSuccessful  Status = "payment_successful"  // 支付完成、订单已落库，等待分配商家
	StatusAwaitingAcceptance Status = "awaiting_acceptance" // 已分配商家，等待商家接单
	StatusAccepted           Status = "accepted"
	StatusRejected           Status = "rejected"
	StatusOutForDelivery     Status = "out_for_delivery"
	StatusDelivered          Status = "delivered"
	StatusAssignmentFailed   Status = "assignment_failed" // 没有可履约商家，需要人工介入
)

// 交付前的任何状态都可以直接跳到 assignment_failed。
var transitions = map[Status][]Status{
	StatusPaymentSuccessful:  {StatusAwaitingAcceptance, StatusAssignmentFailed},
	StatusAwaitingAcceptance: {StatusAccepted, StatusRejected, StatusAssignmentFailed},
	StatusAccepted:           {StatusOutForDelivery, StatusAssignmentFailed},
	StatusOutForDelivery:     {StatusDelivered, StatusAssignmentFailed},
}

// IsValid 判断是否为已定义的状态。
func (s Status) IsValid() bool {
	switch s {
	case StatusPaymentSuccessful, StatusAwaitingAcceptance, StatusAccepted, StatusRejected,
		StatusOutForDelivery, StatusDelivered, StatusAssignmentFailed:
		return true
	}
	return false
}

// IsTerminal: delivered / rejected / assignment_failed 之后不再流转。
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) String() string {
	return string(s)
}

// CanTransitionTo 判断 from -> to 是否为合法流转。
func CanTransitionTo(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsVendorStep 判断 to 是否是商家侧可以主动推进的状态。
func IsVendorStep(to Status) bool {
	switch to {
	case StatusAccepted, StatusRejected, StatusOutForDelivery, StatusDelivered:
		return true
	}
	return false
}

// IsAssignmentStep 判断 to 是否只能由商家分配（条件写入 vendor_id）产生。
func IsAssignmentStep(to Status) bool {
	return to == StatusAwaitingAcceptance
}
