// Package scrape fetches lead websites and reduces them to readable text.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/soyeahso/leadreach/internal/config"
	"github.com/soyeahso/leadreach/internal/logging"
)

const (
	maxResponseSize = 10 * 1024 * 1024 // 10MB
	maxRedirects    = 5
)

// ErrBlocked is returned when a URL points at a private or internal address.
var ErrBlocked = errors.New("blocked private/internal address")

// Scraper fetches pages over HTTP with an SSRF guard and a rate limit.
type Scraper struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxChars  int
	allowPriv bool
	log       *logging.Logger
}

// New creates a Scraper from configuration.
func New(cfg config.ScraperConfig, log *logging.Logger) *Scraper {
	s := &Scraper{
		userAgent: cfg.UserAgent,
		maxChars:  cfg.MaxChars,
		allowPriv: cfg.AllowPrivate,
		log:       log.Sub("scrape"),
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	s.limiter = rate.NewLimiter(limit, burst)

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// No proxy: the dial guard must see the target address, not a proxy's.
	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: s.checkDial}
	transport := &http.Transport{
		Proxy:               nil,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     60 * time.Second,
	}
	s.client = &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return checkScheme(req.URL)
		},
	}
	return s
}

// Scrape fetches rawURL and returns the page's visible text, truncated to
// the configured maximum.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if err := checkScheme(u); err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid URL %q: missing host", rawURL)
	}
	if !s.allowPriv {
		if err := validateURLTarget(ctx, u.Hostname()); err != nil {
			return "", err
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("failed to fetch %s: HTTP %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	var text string
	switch {
	case contentType == "" || strings.Contains(contentType, "html"):
		text, err = ExtractText(strings.NewReader(string(body)))
		if err != nil {
			return "", fmt.Errorf("parsing %s: %w", u, err)
		}
	case strings.HasPrefix(contentType, "text/"):
		text = collapseSpace(string(body))
	default:
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}

	text = truncate(text, s.maxChars)
	s.log.Info().
		Str("url", u.String()).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Int("chars", len(text)).
		Dur("duration", time.Since(start)).
		Msg("page scraped")
	return text, nil
}

func checkScheme(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must start with http:// or https://")
	}
	return nil
}

// checkDial rejects connections to private addresses after DNS resolution,
// which also covers redirects and rebinding.
func (s *Scraper) checkDial(_, address string, _ syscall.RawConn) error {
	if s.allowPriv {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlocked, ip)
	}
	return nil
}

var privateNets = func() []*net.IPNet {
	var nets []*net.IPNet
	for _, r := range []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"100.64.0.0/10",
		"0.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	} {
		_, cidr, err := net.ParseCIDR(r)
		if err == nil {
			nets = append(nets, cidr)
		}
	}
	return nets
}()

// isPrivateIP checks if an IP address belongs to a private/reserved range.
func isPrivateIP(ip net.IP) bool {
	if ip.IsUnspecified() {
		return true
	}
	for _, cidr := range privateNets {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// validateURLTarget resolves a hostname and rejects private/internal IPs.
func validateURLTarget(ctx context.Context, host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("%w: %s", ErrBlocked, ip)
		}
		return nil
	}
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to resolve hostname %q: %w", host, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip.IP) {
			return fmt.Errorf("%w: %s resolves to %s", ErrBlocked, host, ip.IP)
		}
	}
	return nil
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
