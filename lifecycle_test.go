package offlineagent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"testing"

	identity "github.com/offline-agent/offline-agent/pkg/request-identity"
	"github.com/offline-agent/offline-agent/store"

	"github.com/rs/zerolog"
)

func newTestAgentWithStore(t *testing.T, origin *httptest.Server, provider store.Provider, manifest ...string) *Agent {
	t.Helper()
	originURL, err := url.Parse(origin.URL)
	if err != nil {
		t.Fatal(err)
	}
	logger := zerolog.Nop()
	a, err := New(Config{
		Store:     provider,
		OriginURL: *originURL,
		AppPrefix: "app",
		Version:   "1.0.0",
		Manifest:  manifest,
		Logger:    &logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestActivationEvictsOnlyStalePrefixNamespaces(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("root"))
	}))
	defer origin.Close()
	provider := store.NewMemoryStore()
	if _, err := provider.Open("app-0.9.0"); err != nil {
		t.Fatal(err)
	}
	if _, err := provider.Open("other-x"); err != nil {
		t.Fatal(err)
	}
	a := newTestAgentWithStore(t, origin, provider, "/")
	installAndActivate(t, a)

	names, err := provider.Namespaces()
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "app-1.0.0" || names[1] != "other-x" {
		t.Fatalf("Namespaces are %v", names)
	}
}

func TestInstallIsAllOrNothing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("root"))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	origin := httptest.NewServer(mux)
	defer origin.Close()
	provider := store.NewMemoryStore()
	a := newTestAgentWithStore(t, origin, provider, "/", "/broken")

	if err := a.Install(context.Background()); err == nil {
		t.Fatal("Expected install to fail")
	}
	if state := a.Lifecycle().State(); state != StateInstalling {
		t.Fatalf("State is %s", state)
	}

	// nothing was written, not even the assets that fetched fine
	h, err := provider.Open(a.Lifecycle().Namespace())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := h.Match(identity.FromPath("/")); ok {
		t.Fatal("Failed install left a partial namespace")
	}
}

func TestInstallSkipsWaiting(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("root"))
	}))
	defer origin.Close()
	a := newTestAgent(t, origin, "/")

	if err := a.Install(context.Background()); err != nil {
		t.Fatal(err)
	}
	if state := a.Lifecycle().State(); state != StateActivating {
		t.Fatalf("State after install is %s", state)
	}
	if a.Lifecycle().Current() != nil {
		t.Fatal("Handle published before activation")
	}

	if err := a.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if state := a.Lifecycle().State(); state != StateActive {
		t.Fatalf("State after activate is %s", state)
	}
	if a.Lifecycle().Current() == nil {
		t.Fatal("No handle published after activation")
	}
}

func TestRetire(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("root"))
	}))
	defer origin.Close()
	a := newTestAgent(t, origin, "/")
	installAndActivate(t, a)

	a.Lifecycle().Retire()
	if state := a.Lifecycle().State(); state != StateRedundant {
		t.Fatalf("State is %s", state)
	}
	if a.Lifecycle().Current() != nil {
		t.Fatal("Retired instance still holds a handle")
	}
}
