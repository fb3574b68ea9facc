// Package auth はリクエストの認証（サービスキーとセッショントークン）を提供する。
// HTTPに依存しない検証ロジックのみを持ち、ミドルウェアからはGatewayを通して使う。
package auth

import (
	"errors"
	"net/http"
	"strings"
)

const (
	// ServiceKeyHeader は上流サービスが共有サービスキーを送るヘッダー。
	ServiceKeyHeader = "X-RSKY-KEY"
	// AuthorizationHeader はエンドユーザーがベアラートークンを送るヘッダー。
	AuthorizationHeader = "Authorization"

	bearerPrefix = "Bearer "
)

var (
	// ErrMissingCredential は認証情報が送られていないことを示す。
	ErrMissingCredential = errors.New("credential is missing")
	// ErrInvalidCredential は認証情報が不正であることを示す。
	ErrInvalidCredential = errors.New("credential is invalid")
	// ErrNotConfigured はサーバー側の共有シークレットが未設定であることを示す。
	ErrNotConfigured = errors.New("service key is not configured")
)

// CredentialKind はリクエストヘッダーから判別した認証情報の種類。
type CredentialKind int

const (
	// CredentialNone は認証情報なし。
	CredentialNone CredentialKind = iota
	// CredentialServiceKey はサービスキー候補。
	CredentialServiceKey
	// CredentialBearer はベアラートークン候補。
	CredentialBearer
)

// String はログ出力用の名前を返す。
func (k CredentialKind) String() string {
	switch k {
	case CredentialServiceKey:
		return "service_key"
	case CredentialBearer:
		return "bearer"
	default:
		return "none"
	}
}

// Classify はヘッダーから認証情報の種類を判別する。検証は行わない。
// 両方のヘッダーがある場合はサービスキーを優先する。Bearer以外のスキームはCredentialNone。
func Classify(h http.Header) CredentialKind {
	if _, ok := ServiceKeyCandidate(h); ok {
		return CredentialServiceKey
	}
	if strings.HasPrefix(h.Get(AuthorizationHeader), bearerPrefix) {
		return CredentialBearer
	}
	return CredentialNone
}

// ServiceKeyCandidate はサービスキーヘッダーの値を返す。
// ヘッダーが存在しない場合はfalseを返す。
func ServiceKeyCandidate(h http.Header) (string, bool) {
	values := h.Values(ServiceKeyHeader)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// BearerCandidate はAuthorizationヘッダーからトークン部分を取り出す。
// ヘッダーがなければErrMissingCredential、Bearerスキームでなければ
// ErrInvalidCredentialを返す。
func BearerCandidate(h http.Header) (string, error) {
	value := h.Get(AuthorizationHeader)
	if value == "" {
		return "", ErrMissingCredential
	}

	token, ok := strings.CutPrefix(value, bearerPrefix)
	if !ok {
		return "", ErrInvalidCredential
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidCredential
	}
	return token, nil
}
