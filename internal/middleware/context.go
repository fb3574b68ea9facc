// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"

	"github.com/hitoshi/skygate/internal/auth"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// principalContextKey はゲートウェイが解決した呼び出し元を格納するキー。
	principalContextKey = contextKey("principal")
	// serviceKeyContextKey は検証済みサービスキーのフィンガープリントを格納するキー。
	serviceKeyContextKey = contextKey("service_key_fingerprint")
	// callerContextKey はロギングミドルウェアが用意する呼び出し元の入れ物を格納するキー。
	callerContextKey = contextKey("caller")
)

// callerInfo はガードが解決した呼び出し元をロギングミドルウェアに伝える。
// 1リクエストのゴルーチン内でのみ読み書きする。
type callerInfo struct {
	did     string
	service string
}

func contextWithCallerInfo(ctx context.Context, c *callerInfo) context.Context {
	return context.WithValue(ctx, callerContextKey, c)
}

func callerInfoFromContext(ctx context.Context) *callerInfo {
	c, _ := ctx.Value(callerContextKey).(*callerInfo)
	return c
}

// PrincipalFromContext はリクエストコンテキストから呼び出し元を取得する。
// セッションガードを通過していないリクエストでは匿名を返す。
func PrincipalFromContext(ctx context.Context) auth.Principal {
	p, ok := ctx.Value(principalContextKey).(auth.Principal)
	if !ok {
		return auth.Anonymous()
	}
	return p
}

// ContextWithPrincipal はコンテキストに呼び出し元を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	if c := callerInfoFromContext(ctx); c != nil && !p.IsAnonymous() {
		c.did = p.DID()
	}
	return context.WithValue(ctx, principalContextKey, p)
}

// ServiceKeyFingerprintFromContext はサービスキーガードを通過したリクエストの
// キーフィンガープリントを返す。
func ServiceKeyFingerprintFromContext(ctx context.Context) (string, bool) {
	fp, ok := ctx.Value(serviceKeyContextKey).(string)
	return fp, ok && fp != ""
}

// ContextWithServiceKeyFingerprint はコンテキストにキーフィンガープリントを注入する。
func ContextWithServiceKeyFingerprint(ctx context.Context, fingerprint string) context.Context {
	if c := callerInfoFromContext(ctx); c != nil {
		c.service = fingerprint
	}
	return context.WithValue(ctx, serviceKeyContextKey, fingerprint)
}
