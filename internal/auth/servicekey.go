package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// ServiceKeyVerifier はプロセス共通の共有シークレットとサービスキー候補を比較する。
// データベースには一切アクセスしない。
type ServiceKeyVerifier struct {
	digest     [sha256.Size]byte
	configured bool
}

// NewServiceKeyVerifier は共有シークレットを受け取りServiceKeyVerifierを生成する。
// 空文字列の場合は未設定として扱い、すべての検証がErrNotConfiguredになる。
func NewServiceKeyVerifier(secret string) *ServiceKeyVerifier {
	if secret == "" {
		return &ServiceKeyVerifier{}
	}
	return &ServiceKeyVerifier{
		digest:     sha256.Sum256([]byte(secret)),
		configured: true,
	}
}

// Verify は候補キーが共有シークレットと一致するかを検証する。
// 両者のSHA-256ダイジェストを定数時間で比較するため、長さも漏れない。
func (v *ServiceKeyVerifier) Verify(candidate string) error {
	if !v.configured {
		return ErrNotConfigured
	}

	got := sha256.Sum256([]byte(candidate))
	if subtle.ConstantTimeCompare(got[:], v.digest[:]) != 1 {
		return ErrInvalidCredential
	}
	return nil
}

// Fingerprint はログ出力用にキーの短いハッシュを返す。キー本体はログに残さない。
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}
