// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// OutboundGuard は外部サービス（メール配信APIなど）への送信を安全に行うための
// HTTPクライアント生成と宛先URL検証を提供する。
type OutboundGuard interface {
	// NewSafeClient はプライベートIP・ループバック・リンクローカル宛ての接続を
	// Dialerレベルで拒否するHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL は宛先URLを静的に検証する。起動時の設定チェックに使う。
	ValidateURL(rawURL string) error
}

// blockedNetworks は送信先として拒否するネットワーク範囲。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"100.64.0.0/10", // CGNAT
		"127.0.0.0/8",
		"169.254.0.0/16", // メタデータIPを含む
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// outboundGuard はOutboundGuardの実装。送信先はHTTPSの443番ポートのみ許可する。
type outboundGuard struct {
	allowedHosts map[string]struct{}
}

// NewOutboundGuard はOutboundGuardを生成する。
// allowedHostsを指定した場合はそのホストへの送信のみ許可する。
func NewOutboundGuard(allowedHosts ...string) OutboundGuard {
	g := &outboundGuard{}
	if len(allowedHosts) > 0 {
		g.allowedHosts = make(map[string]struct{}, len(allowedHosts))
		for _, h := range allowedHosts {
			g.allowedHosts[strings.ToLower(h)] = struct{}{}
		}
	}
	return g
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを生成する。
// DNS解決後のIPアドレスもDialerのControlフックで検証される。
func (g *outboundGuard) NewSafeClient(timeout time.Duration) *http.Client {
	builder := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443)

	if len(g.allowedHosts) > 0 {
		hosts := make([]string, 0, len(g.allowedHosts))
		for h := range g.allowedHosts {
			hosts = append(hosts, h)
		}
		builder = builder.SetAllowedHosts(hosts...)
	}

	return safeurl.Client(builder.Build()).Client
}

// ValidateURL は宛先URLを静的に検証する。
// DNS再バインディングはNewSafeClient側で防ぐ。
func (g *outboundGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("disallowed scheme: %q (https only)", parsed.Scheme)
	}
	if port := parsed.Port(); port != "" && port != "443" {
		return fmt.Errorf("disallowed port: %s", port)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
	} else if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	if g.allowedHosts != nil {
		if _, ok := g.allowedHosts[host]; !ok {
			return fmt.Errorf("host is not in the allow list: %s", host)
		}
	}

	return nil
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
