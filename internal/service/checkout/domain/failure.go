// internal/service/checkout/domain/failure.go
package domain

import "fmt"

// Kind 是失败的大类，决定界面如何呈现。
type Kind string

const (
	KindValidation  Kind = "ValidationError"
	KindAuth        Kind = "AuthError"
	KindPayment     Kind = "PaymentError"
	KindPersistence Kind = "PersistenceError"
	KindAssignment  Kind = "AssignmentError"
)

// Code 是具体的失败原因。
type Code string

const (
	CodeEmptyCart          Code = "EmptyCart"
	CodeNotAuthenticated   Code = "NotAuthenticated"
	CodeIntentError        Code = "IntentError"
	CodePaymentFailed      Code = "PaymentFailed"
	CodePersistenceError   Code = "PersistenceError"
	CodeAssignmentFailed   Code = "AssignmentFailed"
	CodeCheckoutInProgress Code = "CheckoutInProgress"
)

var kindOf = map[Code]Kind{
	CodeEmptyCart:          KindValidation,
	CodeCheckoutInProgress: KindValidation,
	CodeNotAuthenticated:   KindAuth,
	CodeIntentError:        KindPayment,
	CodePaymentFailed:      KindPayment,
	CodePersistenceError:   KindPersistence,
	CodeAssignmentFailed:   KindAssignment,
}

// Failure 是结账失败时返回给界面的结构化错误，Message 可直接展示给用户。
type Failure struct {
	Kind    Kind
	Code    Code
	Message string
	// OrderID 在扣款之后的失败中必填，用户联系客服时凭此查询。
	OrderID string
	Err     error
}

func NewFailure(code Code, message string, err error) *Failure {
	return &Failure{Kind: kindOf[code], Code: code, Message: message, Err: err}
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// WithOrder 关联已扣款的渠道订单号。
func (f *Failure) WithOrder(orderID string) *Failure {
	f.OrderID = orderID
	return f
}
