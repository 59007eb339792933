package factcheck

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/veracity-social/veracity/internal/model"
)

// LinkValidator annotates evidence URLs with liveness. It issues polite
// HEAD requests (robots.txt-aware, bounded concurrency) and never blocks a
// verdict: a dead link only lowers confidence in the evidence, it does not
// change the verdict itself.
type LinkValidator struct {
	httpClient *http.Client
	maxWorkers int
	userAgent  string

	robotsMu    sync.RWMutex
	robotsCache map[string]*robotstxt.RobotsData
}

// NewLinkValidator creates a link validator.
func NewLinkValidator(timeout time.Duration, maxWorkers int, userAgent string) *LinkValidator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxWorkers <= 0 {
		maxWorkers = 8
	}

	return &LinkValidator{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		maxWorkers:  maxWorkers,
		userAgent:   userAgent,
		robotsCache: make(map[string]*robotstxt.RobotsData),
	}
}

// Annotate checks every evidence item's URL concurrently and fills the
// Checked/Accessible fields in place.
func (v *LinkValidator) Annotate(ctx context.Context, evidence []*model.Evidence) {
	if len(evidence) == 0 {
		return
	}

	sem := make(chan struct{}, v.maxWorkers)
	var wg sync.WaitGroup
	for _, ev := range evidence {
		wg.Add(1)
		go func(e *model.Evidence) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			e.Checked = true
			e.Accessible = v.checkURL(ctx, e.URL)
		}(ev)
	}
	wg.Wait()
}

func (v *LinkValidator) checkURL(ctx context.Context, rawURL string) bool {
	allowed, err := v.canFetch(ctx, rawURL)
	if err != nil || !allowed {
		// Disallowed by robots.txt; assume the link is fine rather than
		// marking trusted evidence dead.
		return true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", v.userAgent)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

// canFetch checks robots.txt for the URL's host, caching per host.
func (v *LinkValidator) canFetch(ctx context.Context, rawURL string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("parse URL: %w", err)
	}

	data, err := v.robotsData(ctx, parsed)
	if err != nil {
		// No readable robots.txt means fetching is allowed.
		return true, nil
	}
	return data.TestAgent(parsed.Path, v.userAgent), nil
}

func (v *LinkValidator) robotsData(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	v.robotsMu.RLock()
	data, exists := v.robotsCache[parsed.Host]
	v.robotsMu.RUnlock()
	if exists {
		return data, nil
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", parsed.Scheme, parsed.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", v.userAgent)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err = robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	v.robotsMu.Lock()
	v.robotsCache[parsed.Host] = data
	v.robotsMu.Unlock()

	return data, nil
}
