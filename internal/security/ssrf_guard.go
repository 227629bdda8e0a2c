package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService は外部API呼び出しの接続先を制限する。
// スポーツデータAPIとGoogle APIへの通信はすべてこのガードを経由する。
type SSRFGuardService interface {
	// NewSafeClient は接続時にDNS解決後のIPアドレスを検証するHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL は環境変数で差し替え可能な接続先を起動時に静的に検証する。
	ValidateURL(rawURL string) error
}

// outboundPort は外部APIへの接続で許可する唯一のポート。
const outboundPort = 443

// blockedPrefixes は静的検証で拒否するアドレス範囲。
// 実際の接続時はsafeurlが同等の範囲をDialerで拒否する。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // メタデータIPを含む
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

var (
	errEmptyURL      = errors.New("empty URL")
	errNotHTTPS      = errors.New("only https is allowed")
	errCredentialURL = errors.New("credentials in URL are not allowed")
)

type ssrfGuard struct{}

// NewSSRFGuard はSSRFGuardServiceの新しいインスタンスを生成する。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

// NewSafeClient はhttpsかつ443番ポートのみに接続できるHTTPクライアントを生成する。
// プライベート、ループバック、リンクローカルの各アドレスへの接続はsafeurlが拒否する。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(outboundPort).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はURLのスキーム、ポート、ホストを検証する。
// ホスト名のDNS解決は行わないため、解決後のアドレスはNewSafeClient側で検証される。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return errEmptyURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("%w: %q", errNotHTTPS, u.Scheme)
	}
	if u.User != nil {
		return errCredentialURL
	}
	if port := u.Port(); port != "" && port != fmt.Sprint(outboundPort) {
		return fmt.Errorf("disallowed port: %s", port)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if slices.ContainsFunc(blockedPrefixes, func(p netip.Prefix) bool { return p.Contains(addr) }) {
			return fmt.Errorf("blocked IP address: %s", addr)
		}
	}
	return nil
}
