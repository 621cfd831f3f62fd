// Package webreader fetches web pages and extracts their visible text.
package webreader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"
)

// Page is the extracted content of a fetched URL.
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	ContentType string `json:"contentType,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
}

// ErrBlockedAddress is returned for hosts resolving to loopback, private,
// link-local or unspecified addresses.
var ErrBlockedAddress = errors.New("address is not publicly routable")

// Config bounds fetches.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	MaxChars     int
	// AllowPrivateNetworks disables the public address check.
	AllowPrivateNetworks bool
}

// Reader fetches pages over HTTP.
type Reader struct {
	http *resty.Client
	cfg  Config
}

// NewReader builds a Reader with defaults for zero config values.
func NewReader(cfg Config) *Reader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 2 << 20
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 20000
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if !cfg.AllowPrivateNetworks {
		dialer.Control = publicOnly
	}
	transport := &http.Transport{
		// No proxy: the address check applies to the dialled host.
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &Reader{
		http: resty.New().
			SetTransport(transport).
			SetTimeout(cfg.Timeout).
			SetRedirectPolicy(resty.FlexibleRedirectPolicy(5), resty.RedirectPolicyFunc(checkRedirect(cfg.AllowPrivateNetworks))).
			SetHeader("User-Agent", "chat-api-webreader/1.0"),
		cfg: cfg,
	}
}

// publicOnly runs after name resolution, so it sees every address actually
// dialled, including redirect targets and re-resolved names.
func publicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, ErrBlockedAddress)
	}
	if !Routable(ip) {
		return fmt.Errorf("dial %s: %w", address, ErrBlockedAddress)
	}
	return nil
}

// Routable reports whether ip is a public unicast address.
func Routable(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsValid() &&
		!ip.IsLoopback() &&
		!ip.IsPrivate() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsLinkLocalMulticast() &&
		!ip.IsInterfaceLocalMulticast() &&
		!ip.IsMulticast() &&
		!ip.IsUnspecified()
}

func checkRedirect(allowPrivate bool) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, _ []*http.Request) error {
		if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
			return fmt.Errorf("redirect to %s: unsupported scheme", req.URL.Scheme)
		}
		if allowPrivate {
			return nil
		}
		if ip, err := netip.ParseAddr(req.URL.Hostname()); err == nil && !Routable(ip) {
			return fmt.Errorf("redirect to %s: %w", req.URL.Host, ErrBlockedAddress)
		}
		return nil
	}
}

// Read fetches rawURL and returns its title and visible text.
func (r *Reader) Read(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.New("url must be an absolute http(s) url")
	}
	if !r.cfg.AllowPrivateNetworks {
		if ip, err := netip.ParseAddr(u.Hostname()); err == nil && !Routable(ip) {
			return nil, fmt.Errorf("fetch %s: %w", u.Host, ErrBlockedAddress)
		}
	}

	resp, err := r.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: HTTP %d", u, resp.StatusCode())
	}

	raw, err := io.ReadAll(io.LimitReader(body, r.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}

	page := &Page{URL: u.String(), ContentType: resp.Header().Get("Content-Type")}
	if strings.Contains(page.ContentType, "html") || page.ContentType == "" {
		page.Title, page.Content = Extract(raw)
	}
	if page.Content == "" {
		page.Content = strings.TrimSpace(string(raw))
	}
	if runes := []rune(page.Content); len(runes) > r.cfg.MaxChars {
		page.Content = string(runes[:r.cfg.MaxChars])
		page.Truncated = true
	}
	return page, nil
}

var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"title":    true,
}

// Extract returns the document title and its visible text.
func Extract(raw []byte) (string, string) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", ""
	}

	var title string
	var builder strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "title" && title == "" && n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			if skipped[n.Data] {
				return
			}
		}
		if n.Type == html.TextNode {
			if val := strings.Join(strings.Fields(n.Data), " "); val != "" {
				if builder.Len() > 0 {
					builder.WriteString(" ")
				}
				builder.WriteString(val)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, builder.String()
}
