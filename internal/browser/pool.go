package browser

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

// Factory builds the Browser for one endpoint.
type Factory func(endpoint catalog.Endpoint) (catalog.Browser, error)

// SessionConfig carries the knobs shared by every session backend.
type SessionConfig struct {
	UserAgent         string
	NavigationTimeout time.Duration
	ConnectTimeout    time.Duration
	MaxQPS            float64
}

// Pool holds a fixed set of endpoints and hands them out to workers.
type Pool struct {
	endpoints []catalog.Endpoint
	browsers  []catalog.Browser
}

// NewPool builds one Browser per endpoint using factory. When maxQPS is
// positive every endpoint gets its own token bucket shared by all workers
// bound to it.
func NewPool(endpoints []catalog.Endpoint, factory Factory, maxQPS float64) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one browser endpoint is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("browser factory is required")
	}
	p := &Pool{
		endpoints: make([]catalog.Endpoint, len(endpoints)),
		browsers:  make([]catalog.Browser, len(endpoints)),
	}
	for i, ep := range endpoints {
		ep.Address = os.ExpandEnv(ep.Address)
		ep.Family = strings.ToLower(strings.TrimSpace(ep.Family))
		b, err := factory(ep)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("init endpoint %d: %w", i, err)
		}
		if maxQPS > 0 {
			b = &pacedBrowser{
				inner:    b,
				limiter:  rate.NewLimiter(rate.Limit(maxQPS), 1),
				endpoint: ep.Address,
			}
		}
		p.endpoints[i] = ep
		p.browsers[i] = b
	}
	return p, nil
}

// Size returns the number of physical endpoints.
func (p *Pool) Size() int {
	return len(p.endpoints)
}

// EndpointFor returns endpoints[worker mod K].
func (p *Pool) EndpointFor(worker int) catalog.Endpoint {
	return p.endpoints[p.index(worker)]
}

// BrowserFor returns the Browser bound to EndpointFor(worker).
func (p *Pool) BrowserFor(worker int) catalog.Browser {
	return p.browsers[p.index(worker)]
}

func (p *Pool) index(worker int) int {
	k := len(p.endpoints)
	return ((worker % k) + k) % k
}

// Close releases backend resources held by each Browser.
func (p *Pool) Close() {
	for _, b := range p.browsers {
		if c, ok := unwrap(b).(interface{ Close() }); ok {
			c.Close()
		}
	}
}

func unwrap(b catalog.Browser) catalog.Browser {
	if paced, ok := b.(*pacedBrowser); ok {
		return paced.inner
	}
	return b
}

// NewFactory returns a Factory that picks the backend by endpoint family.
func NewFactory(cfg SessionConfig, logger *zap.Logger) Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ep catalog.Endpoint) (catalog.Browser, error) {
		switch ep.Family {
		case catalog.FamilyChromium, "chrome", "":
			logger.Info("using chromium endpoint", zap.String("endpoint", redact(ep.Address)))
			return NewChromium(ChromiumConfig{
				Address:           ep.Address,
				UserAgent:         cfg.UserAgent,
				NavigationTimeout: cfg.NavigationTimeout,
				ConnectTimeout:    cfg.ConnectTimeout,
			})
		case catalog.FamilyDirect:
			logger.Info("using direct endpoint", zap.String("proxy", redact(ep.Address)))
			return NewDirect(DirectConfig{
				ProxyURL:  ep.Address,
				UserAgent: cfg.UserAgent,
				Timeout:   cfg.NavigationTimeout,
			})
		default:
			return nil, fmt.Errorf("browser family %q is not supported", ep.Family)
		}
	}
}

// redact strips userinfo so credentials never reach the logs.
func redact(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return address
	}
	scheme := strings.Index(address, "://")
	if scheme < 0 || scheme > at {
		return address[at+1:]
	}
	return address[:scheme+3] + "***@" + address[at+1:]
}
