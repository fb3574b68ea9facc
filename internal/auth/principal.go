package auth

import "github.com/hitoshi/skygate/internal/model"

// Principal はゲートウェイが1回だけ解決するリクエストの呼び出し元。
// 認証済み（セッションクレームあり）か匿名のどちらかを表す。
type Principal struct {
	claims *SessionClaims
}

// Anonymous は匿名の呼び出し元を返す。
func Anonymous() Principal {
	return Principal{}
}

// Authenticated は検証済みクレームを持つ呼び出し元を返す。
func Authenticated(claims SessionClaims) Principal {
	return Principal{claims: &claims}
}

// IsAnonymous は匿名かどうかを返す。
func (p Principal) IsAnonymous() bool {
	return p.claims == nil
}

// DID は呼び出し元のDIDを返す。匿名の場合は"anonymous"。
func (p Principal) DID() string {
	if p.claims == nil {
		return model.AnonymousVisitor
	}
	return p.claims.Issuer
}

// Claims は検証済みクレームを返す。匿名の場合はfalse。
func (p Principal) Claims() (SessionClaims, bool) {
	if p.claims == nil {
		return SessionClaims{}, false
	}
	return *p.claims, true
}
