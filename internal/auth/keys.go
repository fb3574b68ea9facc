package auth

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownIssuer は発行者DIDに対応する鍵が見つからないことを示す。
var ErrUnknownIssuer = errors.New("unknown token issuer")

// StaticKeyResolver は設定で与えられたDIDと公開鍵の対応表から鍵を引くKeyResolver。
type StaticKeyResolver struct {
	keys map[string]crypto.PublicKey
}

// NewStaticKeyResolver はDIDと公開鍵の対応表からStaticKeyResolverを生成する。
func NewStaticKeyResolver(keys map[string]crypto.PublicKey) *StaticKeyResolver {
	copied := make(map[string]crypto.PublicKey, len(keys))
	for did, key := range keys {
		copied[did] = key
	}
	return &StaticKeyResolver{keys: copied}
}

// ParseStaticKeys は "did=base64(PKIX DER),did=..." 形式の文字列を解析する。
// 空文字列の場合は鍵なしのリゾルバを返す（すべてのベアラートークンが拒否される）。
func ParseStaticKeys(spec string) (*StaticKeyResolver, error) {
	keys := make(map[string]crypto.PublicKey)

	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		did, encoded, ok := strings.Cut(entry, "=")
		if !ok || did == "" || encoded == "" {
			return nil, fmt.Errorf("invalid signing key entry %q: want did=base64key", entry)
		}

		der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return nil, fmt.Errorf("failed to decode signing key for %s: %w", did, err)
		}

		key, err := x509.ParsePKIXPublicKey(der)
		if err != nil {
			return nil, fmt.Errorf("failed to parse signing key for %s: %w", did, err)
		}

		keys[strings.TrimSpace(did)] = key
	}

	return &StaticKeyResolver{keys: keys}, nil
}

// ResolveSigningKey はDIDに対応する公開鍵を返す。
func (r *StaticKeyResolver) ResolveSigningKey(_ context.Context, did string) (crypto.PublicKey, error) {
	key, ok := r.keys[did]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIssuer, did)
	}
	return key, nil
}

// Len は登録済みの鍵の数を返す。
func (r *StaticKeyResolver) Len() int {
	return len(r.keys)
}
