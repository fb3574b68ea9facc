package account

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
)

// GenerateToken は "ABCDE-FGHIJ" 形式（base32の5文字×2）のトークンを生成する。
// 人がメールから手入力する前提の長さ。
func GenerateToken() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	s := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	return s[0:5] + "-" + s[5:10], nil
}
