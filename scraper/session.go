package scraper

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
)

// session is one colly collector with its own cookie jar and connection
// pool. Discarding it drops cookies and keep-alive connections.
type session struct {
	collector *colly.Collector
	proxy     *url.URL

	status int
	body   []byte
	err    error
}

type result struct {
	status int
	body   string
	err    error
}

func newSession(timeout time.Duration, transport http.RoundTripper) *session {
	s := &session{}

	c := colly.NewCollector()
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(timeout)

	if transport == nil {
		transport = &http.Transport{
			Proxy: s.proxyURL,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	c.WithTransport(transport)

	c.OnResponse(func(r *colly.Response) {
		s.status = r.StatusCode
		s.body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			s.status = r.StatusCode
		}
		s.err = err
	})

	s.collector = c
	return s
}

func (s *session) proxyURL(*http.Request) (*url.URL, error) {
	return s.proxy, nil
}

// get issues a synchronous GET through proxy (nil for a direct connection).
func (s *session) get(rawURL string, headers http.Header, proxy *url.URL) result {
	s.status, s.body, s.err = 0, nil, nil
	s.proxy = proxy

	if err := s.collector.Request(http.MethodGet, rawURL, nil, nil, headers); err != nil && s.err == nil {
		s.err = err
	}
	if s.err != nil && s.status == 0 {
		return result{err: s.err}
	}
	return result{status: s.status, body: string(s.body)}
}
