package errors

import (
	"errors"
	"fmt"
	"swapdesk/pkg/errors/ecode"
)

// 带业务错误码的error，response包通过DecodeErr还原为{code, message}

type CodedError struct {
	Code    int
	Message string
	cause   error
}

func (e *CodedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("code=%d message=%s cause=%v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("code=%d message=%s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error { return e.cause }

// New 创建一个指定错误码的错误，message为空时使用默认提示
func New(code int, message string) *CodedError {
	if message == "" {
		message = ecode.Message(code)
	}
	return &CodedError{Code: code, Message: message}
}

// Newf 创建一个带格式化消息的错误
func Newf(code int, format string, args ...interface{}) *CodedError {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误并附加错误码
func Wrap(code int, message string, cause error) *CodedError {
	if message == "" {
		message = ecode.Message(code)
	}
	return &CodedError{Code: code, Message: message, cause: cause}
}

// DecodeErr 从error中解出错误码和提示信息
func DecodeErr(err error) (int, string) {
	if err == nil {
		return ecode.Success, ecode.Message(ecode.Success)
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}
	return ecode.InternalErr, err.Error()
}

// IsCode 判断err是否携带指定错误码
func IsCode(err error, code int) bool {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}
