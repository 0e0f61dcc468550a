package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-market/config"
)

// Provider resolves the list of proxy URLs to rotate through.
type Provider interface {
	Proxies(ctx context.Context) ([]string, error)
}

// StaticProvider serves a fixed list.
type StaticProvider []string

// Proxies returns the non-blank entries, normalized.
func (p StaticProvider) Proxies(context.Context) ([]string, error) {
	out := make([]string, 0, len(p))
	for _, s := range p {
		if s = Normalize(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// Normalize trims s and prefixes http:// when it carries no scheme.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s != "" && !strings.Contains(s, "://") {
		s = "http://" + s
	}
	return s
}

// gateways maps known rotating-proxy services to their gateway host.
var gateways = map[string]string{
	"smartproxy": "gate.smartproxy.com:7000",
	"brightdata": "brd.superproxy.io:22225",
	"oxylabs":    "pr.oxylabs.io:7777",
}

// ServiceProvider obtains proxies from an external proxy service. With an
// Endpoint it downloads a newline-separated list; otherwise it builds the
// authenticated gateway URL of a known service.
type ServiceProvider struct {
	Name     string
	Endpoint string
	APIKey   string
	Username string
	Client   *http.Client
}

// NewServiceProvider builds a provider from the proxy configuration.
func NewServiceProvider(cfg config.ProxyConfig, client *http.Client) *ServiceProvider {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ServiceProvider{
		Name:     cfg.ServiceName,
		Endpoint: cfg.Endpoint,
		APIKey:   cfg.APIKey,
		Username: cfg.Username,
		Client:   client,
	}
}

// Proxies resolves the service's proxy list.
func (p *ServiceProvider) Proxies(ctx context.Context) ([]string, error) {
	if p.Endpoint != "" {
		return p.download(ctx)
	}

	host, ok := gateways[strings.ToLower(p.Name)]
	if !ok {
		return nil, fmt.Errorf("unknown proxy service %q", p.Name)
	}
	if p.Username == "" || p.APIKey == "" {
		return nil, fmt.Errorf("proxy service %q requires username and api key", p.Name)
	}
	u := url.URL{
		Scheme: "http",
		User:   url.UserPassword(p.Username, p.APIKey),
		Host:   host,
	}
	return []string{u.String()}, nil
}

func (p *ServiceProvider) download(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build proxy list request: %w", err)
	}
	if p.APIKey != "" {
		req.Header.Set("X-API-Key", p.APIKey)
		if p.Username != "" {
			req.SetBasicAuth(p.Username, p.APIKey)
		}
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch proxy list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch proxy list: http status %d", resp.StatusCode)
	}

	var proxies []string
	scanner := bufio.NewScanner(io.LimitReader(resp.Body, 1<<20))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proxies = append(proxies, Normalize(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy list: %w", err)
	}
	return proxies, nil
}
