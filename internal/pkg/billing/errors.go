package billing

import (
	"errors"
	"fmt"
)

// Code classifies a billing failure for callers and HTTP mapping.
type Code string

const (
	CodeInvalidPlan       Code = "invalid_plan"
	CodeIneligibleUpgrade Code = "ineligible_upgrade"
	CodeNotEligible       Code = "not_eligible"
	CodeStoreError        Code = "store_error"
	CodeGatewayFailure    Code = "gateway_failure"
	CodeInvalidTransition Code = "invalid_transition"
	CodeNotFound          Code = "not_found"
	CodeBusy              Code = "busy"
	CodeValidation        Code = "validation"
)

var defaultMessages = map[Code]string{
	CodeInvalidPlan:       "Gói thành viên không hợp lệ",
	CodeIneligibleUpgrade: "Không thể nâng cấp lên gói này",
	CodeNotEligible:       "Tài khoản chưa đủ điều kiện gia hạn tự động",
	CodeStoreError:        "Lỗi hệ thống, vui lòng thử lại sau",
	CodeGatewayFailure:    "Thanh toán không thành công",
	CodeInvalidTransition: "Trạng thái giao dịch không hợp lệ",
	CodeNotFound:          "Không tìm thấy dữ liệu",
	CodeBusy:              "Yêu cầu đang được xử lý, vui lòng thử lại",
	CodeValidation:        "Dữ liệu không hợp lệ",
}

// Error is the structured failure returned by the billing service.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidPlan       = &Error{Code: CodeInvalidPlan, Message: defaultMessages[CodeInvalidPlan]}
	ErrIneligibleUpgrade = &Error{Code: CodeIneligibleUpgrade, Message: defaultMessages[CodeIneligibleUpgrade]}
	ErrNotEligible       = &Error{Code: CodeNotEligible, Message: defaultMessages[CodeNotEligible]}
	ErrStore             = &Error{Code: CodeStoreError, Message: defaultMessages[CodeStoreError]}
	ErrGatewayFailure    = &Error{Code: CodeGatewayFailure, Message: defaultMessages[CodeGatewayFailure]}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition, Message: defaultMessages[CodeInvalidTransition]}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: defaultMessages[CodeNotFound]}
	ErrBusy              = &Error{Code: CodeBusy, Message: defaultMessages[CodeBusy]}
	ErrValidation        = &Error{Code: CodeValidation, Message: defaultMessages[CodeValidation]}
)

func newError(code Code, err error, message string) *Error {
	if message == "" {
		message = defaultMessages[code]
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the billing code of err; unknown errors map to store_error.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStoreError
}

// MessageOf returns the user-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return defaultMessages[CodeOf(err)]
}
