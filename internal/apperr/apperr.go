// Package apperr 定义了服务统一的错误分类。
// 所有对外暴露的失败都必须归入其中一类，由 handler 层映射为
// {error_kind, message} 响应和对应的 HTTP 状态码。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 是错误类别标识，直接作为响应中的 error_kind 字段返回。
type Kind string

const (
	// 输入类错误：由调用方造成，直接返回，服务端不重试。
	KindMalformedDocument Kind = "MalformedDocumentError"
	KindInvalidArgument   Kind = "InvalidArgumentError"

	// 上游依赖类错误：可恢复，调用方可用同样的入参重试。
	KindCorpusUnavailable         Kind = "CorpusUnavailableError"
	KindEmbeddingUnavailable      Kind = "EmbeddingUnavailableError"
	KindGenerationTimeout         Kind = "GenerationTimeoutError"
	KindExternalSearchUnavailable Kind = "ExternalSearchUnavailableError"

	// 契约类错误：继续执行会产出不可靠结果，必须显式失败而非静默降级。
	KindPolicyViolation      Kind = "PolicyViolationError"
	KindExtractionValidation Kind = "ExtractionValidationError"
	KindInsufficientEvidence Kind = "InsufficientEvidenceError"

	KindInternal Kind = "InternalError"
)

// Error 是携带类别的错误实现。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建一个指定类别的错误。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf 创建一个带格式化消息的错误。
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误并赋予类别。
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Wrapf 包装底层错误并赋予类别，消息支持格式化。
func Wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 返回错误的类别；未分类错误一律视为内部错误。
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// MessageOf 返回错误对外展示的消息。
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal error"
}

// Is 判断错误是否属于指定类别。
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable 报告该类错误是否允许调用方用相同入参重试。
func Retryable(kind Kind) bool {
	switch kind {
	case KindCorpusUnavailable, KindEmbeddingUnavailable,
		KindGenerationTimeout, KindExternalSearchUnavailable:
		return true
	}
	return false
}

// HTTPStatus 将错误类别映射为 HTTP 状态码。
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindMalformedDocument, KindInvalidArgument:
		return http.StatusBadRequest
	case KindCorpusUnavailable:
		return http.StatusNotFound
	case KindEmbeddingUnavailable, KindGenerationTimeout, KindExternalSearchUnavailable:
		return http.StatusServiceUnavailable
	case KindExtractionValidation, KindInsufficientEvidence:
		return http.StatusUnprocessableEntity
	default:
		// PolicyViolation 与未分类错误都按内部错误处理
		return http.StatusInternalServerError
	}
}
