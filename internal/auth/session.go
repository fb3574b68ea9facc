package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims は検証済みベアラートークンのクレーム。1リクエストの間だけ保持する。
type SessionClaims struct {
	Issuer   string
	Audience string
	Raw      string
}

// SessionVerifier はベアラートークンを検証してクレームを返す。
// 署名・有効期間・audienceのいずれかが不正な場合はErrInvalidCredentialを返す。
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (SessionClaims, error)
}

// KeyResolver は発行者DIDに対応する署名検証用公開鍵を解決する。
// DIDドキュメントの解決手順はこのパッケージの範囲外で、外部から注入する。
type KeyResolver interface {
	ResolveSigningKey(ctx context.Context, did string) (crypto.PublicKey, error)
}

// DefaultAllowedAlgs は受け入れる署名アルゴリズムのデフォルト。
var DefaultAllowedAlgs = []string{"ES256"}

// JWTVerifierConfig はJWTVerifierの設定。
type JWTVerifierConfig struct {
	// ServiceDID は自サービスのDID。トークンのaudienceと一致する必要がある。
	ServiceDID  string
	AllowedAlgs []string
	Leeway      time.Duration
	Now         func() time.Time
}

// sessionTokenClaims はJWTパース用の内部クレーム型。
type sessionTokenClaims struct {
	jwt.RegisteredClaims
	LexiconMethod string `json:"lxm,omitempty"`
}

// JWTVerifier はgolang-jwtでサービス間JWTを検証するSessionVerifier実装。
type JWTVerifier struct {
	resolver KeyResolver
	audience string
	parser   *jwt.Parser
}

// NewJWTVerifier はJWTVerifierを生成する。
func NewJWTVerifier(resolver KeyResolver, cfg JWTVerifierConfig) *JWTVerifier {
	algs := cfg.AllowedAlgs
	if len(algs) == 0 {
		algs = DefaultAllowedAlgs
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(algs),
		jwt.WithAudience(cfg.ServiceDID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(now),
	)

	return &JWTVerifier{
		resolver: resolver,
		audience: cfg.ServiceDID,
		parser:   parser,
	}
}

// Verify はトークンの署名・有効期間・audienceを検証する。
func (v *JWTVerifier) Verify(ctx context.Context, token string) (SessionClaims, error) {
	// audience未設定のまま受け入れることはない
	if v.audience == "" {
		return SessionClaims{}, fmt.Errorf("%w: service DID is not configured", ErrInvalidCredential)
	}

	var claims sessionTokenClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		iss, err := t.Claims.GetIssuer()
		if err != nil || iss == "" {
			return nil, errMissingIssuer
		}
		return v.resolver.ResolveSigningKey(ctx, iss)
	})
	if err != nil {
		return SessionClaims{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	return SessionClaims{
		Issuer:   claims.Issuer,
		Audience: v.audience,
		Raw:      token,
	}, nil
}

var errMissingIssuer = errors.New("token has no issuer")

// FailureReason はメトリクス用に認証失敗の理由を分類する。
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCredential):
		return "missing"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return "expired"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "audience"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, ErrUnknownIssuer), errors.Is(err, errMissingIssuer):
		return "issuer"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
