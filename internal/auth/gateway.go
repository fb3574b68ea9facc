package auth

import (
	"context"
	"net/http"
)

// Gateway はサービスキーとセッショントークンの2つの独立したガードを束ねる。
// エンドポイントはどちらか（または両方）を前提条件として宣言する。
type Gateway struct {
	serviceKey *ServiceKeyVerifier
	session    SessionVerifier
}

// NewGateway はGatewayを生成する。
func NewGateway(serviceKey *ServiceKeyVerifier, session SessionVerifier) *Gateway {
	return &Gateway{
		serviceKey: serviceKey,
		session:    session,
	}
}

// CheckServiceKey はサービスキーガードを評価する。
// 成功時はログ用のキーのフィンガープリントを返す。
func (g *Gateway) CheckServiceKey(h http.Header) (string, error) {
	// 未設定はヘッダーの有無より先に判定する
	if !g.serviceKey.configured {
		return "", ErrNotConfigured
	}

	candidate, ok := ServiceKeyCandidate(h)
	if !ok {
		return "", ErrMissingCredential
	}

	if err := g.serviceKey.Verify(candidate); err != nil {
		return "", err
	}
	return Fingerprint(candidate), nil
}

// Authenticate はセッショントークンガードを評価する。
// 失敗時は匿名のPrincipalとエラーを返す。失敗を致命的とするかは呼び出し側が決める。
func (g *Gateway) Authenticate(ctx context.Context, h http.Header) (Principal, error) {
	token, err := BearerCandidate(h)
	if err != nil {
		return Anonymous(), err
	}

	claims, err := g.session.Verify(ctx, token)
	if err != nil {
		return Anonymous(), err
	}
	return Authenticated(claims), nil
}
