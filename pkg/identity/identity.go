// Package identity rotates the browser identity (user agent and proxy) used
// each time a browser session is started.
package identity

import (
	"math/rand/v2"
	"sync"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// Identity is what a fresh browser session presents to the site.
type Identity struct {
	UserAgent string
	Proxy     string // empty means a direct connection
}

// Rotator hands out identities: proxies in round-robin order, user agents at random.
type Rotator struct {
	proxies    []string
	userAgents []string
	mu         sync.Mutex
	proxyIndex int
}

// NewRotator returns a Rotator. A nil or empty userAgents uses a built-in desktop Chrome set.
func NewRotator(userAgents, proxies []string) *Rotator {
	if len(userAgents) == 0 {
		userAgents = defaultUserAgents
	}
	return &Rotator{
		proxies:    proxies,
		userAgents: userAgents,
	}
}

// Next returns the identity for the next browser session.
func (r *Rotator) Next() Identity {
	return Identity{
		UserAgent: r.userAgent(),
		Proxy:     r.proxy(),
	}
}

func (r *Rotator) proxy() string {
	if len(r.proxies) == 0 {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.proxies[r.proxyIndex]
	r.proxyIndex = (r.proxyIndex + 1) % len(r.proxies)
	return p
}

func (r *Rotator) userAgent() string {
	return r.userAgents[rand.IntN(len(r.userAgents))]
}
