// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// レスポンスには固定メッセージのみを含め、内部エラーの詳細は載せない。
type APIError struct {
	Code    string // エラーコード
	Message string // エラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation        = "ValidationError"
	ErrCodeNotFound          = "NotFoundError"
	ErrCodeInternal          = "InternalError"
	ErrCodeUnauthorized      = "AuthenticationRequired"
	ErrCodeUndefinedEndpoint = "UndefinedEndpoint"
	ErrCodeRateLimitExceeded = "RateLimitExceeded"
)

// 固定メッセージ。原因に関わらず同じ文言を返す。
const (
	MessageBadRequest           = "The request was improperly formed."
	MessageUnprocessable        = "The request was well-formed but was unable to be followed due to semantic errors."
	MessageUnauthorized         = "Request could not be processed."
	MessageNotFound             = "Not Found"
	MessageUnsupportedMediaType = "Unsupported media type."
	MessageTooManyRequests      = "Too many requests."
	MessageInternal             = "Internal error."
)

// NewBadRequestError は不正なリクエスト形式のエラーを生成する。
func NewBadRequestError() *APIError {
	return &APIError{Code: ErrCodeValidation, Message: MessageBadRequest}
}

// NewUnprocessableError は意味的に処理できないリクエストのエラーを生成する。
func NewUnprocessableError() *APIError {
	return &APIError{Code: ErrCodeValidation, Message: MessageUnprocessable}
}

// NewUnsupportedMediaTypeError はContent-Type不一致のエラーを生成する。
func NewUnsupportedMediaTypeError() *APIError {
	return &APIError{Code: ErrCodeValidation, Message: MessageUnsupportedMediaType}
}

// NewUnauthorizedError は認証失敗のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{Code: ErrCodeUnauthorized, Message: MessageUnauthorized}
}

// NewNotFoundError はリソース未検出のエラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{Code: ErrCodeNotFound, Message: MessageNotFound}
}

// NewUndefinedEndpointError は未定義エンドポイントのエラーを生成する。
func NewUndefinedEndpointError() *APIError {
	return &APIError{Code: ErrCodeUndefinedEndpoint, Message: MessageNotFound}
}

// NewRateLimitError はレート制限超過のエラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{Code: ErrCodeRateLimitExceeded, Message: MessageTooManyRequests}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{Code: ErrCodeInternal, Message: MessageInternal}
}
