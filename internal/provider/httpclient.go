package provider

import (
	"math/rand"
	"net/http"
	"time"
)

// userAgents is the pool every provider client draws from.  Scraped sites
// throttle repeat agents, so each constructed client picks one at random.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:126.0) Gecko/20100101 Firefox/126.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

// RandomUserAgent returns one agent from the pool
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// headerTransport injects a fixed header set into every request
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for key, value := range t.headers {
		if clone.Header.Get(key) == "" {
			clone.Header.Set(key, value)
		}
	}
	return t.base.RoundTrip(clone)
}

// NewHTTPClient builds a client carrying the provider's required headers plus
// a user agent picked at construction time.
func NewHTTPClient(headers map[string]string) *http.Client {
	merged := make(map[string]string, len(headers)+1)
	merged["User-Agent"] = RandomUserAgent()
	for key, value := range headers {
		merged[key] = value
	}
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &headerTransport{
			headers: merged,
			base:    http.DefaultTransport,
		},
	}
}
