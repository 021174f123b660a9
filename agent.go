// Package offlineagent implements an offline-first caching agent for a
// single-page web application. It fronts the application origin, serves
// stored responses when possible, pre-populates a versioned store from an
// asset manifest and keeps entries fresh with detached background
// revalidation.
package offlineagent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	identity "github.com/offline-agent/offline-agent/pkg/request-identity"
	snapshot "github.com/offline-agent/offline-agent/pkg/response-snapshot"
	"github.com/offline-agent/offline-agent/store"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const defaultFetchTimeout = 30 * time.Second

type Config struct {
	// Storage for response snapshots.
	Store store.Provider
	// URL of the application origin.
	// Origins with paths are not supported.
	OriginURL url.URL
	// Namespace naming prefix, usually the application name.
	AppPrefix string
	// Version of the asset generation, e.g. "1.4.2".
	// The current namespace is "<AppPrefix>-<Version>".
	Version string
	// Ordered list of asset paths to pre-populate at install time.
	Manifest []string
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// Timeout for synchronous origin fetches. Zero means the default of
	// 30 seconds; a negative value disables the timeout entirely.
	FetchTimeout time.Duration
}

// Agent intercepts requests for the controlled application and resolves
// them cache-first against the versioned store. It implements http.Handler.
type Agent struct {
	store        store.Provider
	lifecycle    *Lifecycle
	originURL    url.URL
	version      string
	log          zerolog.Logger
	fetcher      *originFetcher
	originProxy  *httputil.ReverseProxy
	passthrough  *httputil.ReverseProxy
	refreshGroup singleflight.Group
}

// New initializes the agent and its lifecycle manager.
// The store is not populated until Install is called.
func New(config Config) (*Agent, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config.OriginURL.Host == "" {
		return nil, fmt.Errorf("origin URL is required")
	}
	if config.AppPrefix == "" || config.Version == "" {
		return nil, fmt.Errorf("app prefix and version are required")
	}

	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().
		Str("origin", config.OriginURL.String()).
		Logger()

	timeout := config.FetchTimeout
	if timeout == 0 {
		timeout = defaultFetchTimeout
	} else if timeout < 0 {
		timeout = 0
	}

	fetcher := &originFetcher{
		client: &http.Client{
			Timeout: timeout,
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		originURL: config.OriginURL,
	}

	a := &Agent{
		store:     config.Store,
		originURL: config.OriginURL,
		version:   config.Version,
		log:       logger,
		fetcher:   fetcher,
		originProxy: &httputil.ReverseProxy{
			Director: createDirector(config.OriginURL.Scheme, config.OriginURL.Host),
		},
		passthrough: &httputil.ReverseProxy{
			Director: passthroughDirector,
		},
	}
	a.lifecycle = newLifecycle(lifecycleConfig{
		store:    config.Store,
		fetcher:  fetcher,
		prefix:   config.AppPrefix,
		version:  config.Version,
		manifest: config.Manifest,
		log:      logger,
	})
	return a, nil
}

// Install pre-populates the current namespace from the manifest.
// See Lifecycle.Install for the all-or-nothing semantics.
func (a *Agent) Install(ctx context.Context) error {
	return a.lifecycle.Install(ctx)
}

// Activate evicts stale namespaces and takes over request serving.
func (a *Agent) Activate(ctx context.Context) error {
	return a.lifecycle.Activate(ctx)
}

// Lifecycle exposes the agent's lifecycle manager.
func (a *Agent) Lifecycle() *Lifecycle {
	return a.lifecycle
}

// ServeHTTP implements the http.Handler interface.
// Cross-origin requests pass through untouched; same-origin non-GET
// requests are forwarded to the origin with no caching side effects;
// same-origin GET requests are resolved by the strategy engine.
func (a *Agent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !a.sameOrigin(r) {
		cs := CacheStatus{}
		cs.Forward(FwdReasonBypass)
		w.Header().Set("Cache-Status", cs.String())
		a.passthrough.ServeHTTP(w, r)
		return
	}
	if r.Method != http.MethodGet {
		cs := CacheStatus{}
		cs.Forward(FwdReasonMethod)
		w.Header().Set("Cache-Status", cs.String())
		a.originProxy.ServeHTTP(w, r)
		return
	}
	a.resolve(w, r)
}

// sameOrigin reports whether the request targets the controlled origin.
// Relative request URIs (the normal reverse-proxy case) are same-origin.
func (a *Agent) sameOrigin(r *http.Request) bool {
	if r.URL.Host == "" {
		return true
	}
	return r.URL.Host == a.originURL.Host
}

func createDirector(scheme, host string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		req.Host = host
	}
}

// passthroughDirector forwards a request to the host it already targets.
func passthroughDirector(req *http.Request) {
	if req.URL.Scheme == "" {
		req.URL.Scheme = "http"
	}
	if req.URL.Host == "" {
		req.URL.Host = req.Host
	}
}

// originFetcher issues GET requests against the application origin and
// captures the result as an immutable snapshot.
type originFetcher struct {
	client    *http.Client
	originURL url.URL
}

func (f *originFetcher) Fetch(ctx context.Context, path string) (snapshot.Snapshot, error) {
	target := f.originURL
	ref, err := url.Parse(path)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	target.Path = ref.Path
	target.RawQuery = ref.RawQuery
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	res, err := f.client.Do(req)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return snapshot.Capture(res)
}

func (f *originFetcher) fetchIdentity(ctx context.Context, id string) (snapshot.Snapshot, error) {
	req, err := identity.ToRequest(id)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return f.Fetch(ctx, req.URL.RequestURI())
}
