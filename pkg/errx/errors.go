package errx

import (
	"errors"
	"fmt"
)

type Code string

type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, msg string) *Error { return &Error{Code: code, Msg: msg} }

func Wrap(code Code, err error, msg string) *Error { return &Error{Code: code, Msg: msg, Err: err} }

func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf 取出错误携带的业务码，非 *Error 时返回空串
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// 重认证周期内的失败分类，全部在编排边界收敛为"无改进响应"
const (
	CodeNoMatchingProfile     Code = "NO_MATCHING_PROFILE"
	CodeRateLimited           Code = "RATE_LIMITED"
	CodeLoginTransportFailure Code = "LOGIN_TRANSPORT_FAILURE"
	CodeLoginStatusFailure    Code = "LOGIN_STATUS_FAILURE"
	CodeExtractionFailure     Code = "EXTRACTION_FAILURE"
	CodeRetryTransportFailure Code = "RETRY_TRANSPORT_FAILURE"
)

// 基础设施错误码
const (
	CodeConfigInvalid   Code = "CONFIG_INVALID"
	CodeStorageFailure  Code = "STORAGE_FAILURE"
	CodeProfileNotFound Code = "PROFILE_NOT_FOUND"
)
