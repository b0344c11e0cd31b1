package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/basel-ax/tunerelay/internal/config"
	"github.com/basel-ax/tunerelay/internal/infrastructure/astria"
	"github.com/basel-ax/tunerelay/internal/service"
)

// fakeProvider simulates the tuning service. Poll behaviour is chosen per tune id:
//
//	"ready"  - images on the first poll
//	"failN"  - status "failed" on poll N
//	"broken" - 502 from the second poll on
//	anything else - pending forever
type fakeProvider struct {
	mu          sync.Mutex
	tuneCalls   int
	promptCalls int
	polls       map[string]int
	idKey       string
	lastTitle   string
	lastPhotos  int
	rejectTune  bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{polls: map[string]int{}, idKey: "id"}
}

func (f *fakeProvider) handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/tunes", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.tuneCalls++
		reject := f.rejectTune
		f.mu.Unlock()
		if reject {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"images":["must have at least 4 images"]}`))
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.lastTitle = r.FormValue("tune[title]")
		f.lastPhotos = len(r.MultipartForm.File["tune[images][]"])
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":1001}`))
	})
	r.Post("/tunes/{tune}/prompts", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.promptCalls++
		key := f.idKey
		f.mu.Unlock()
		_, _ = fmt.Fprintf(w, `{%q:"%s-job"}`, key, chi.URLParam(r, "tune"))
	})
	r.Get("/tunes/{tune}/prompts/{prompt}", func(w http.ResponseWriter, r *http.Request) {
		tune := chi.URLParam(r, "tune")
		f.mu.Lock()
		f.polls[tune]++
		n := f.polls[tune]
		f.mu.Unlock()

		switch {
		case tune == "ready":
			_, _ = fmt.Fprintf(w, `{"id":%q,"images":["https://cdn.example/%s.jpg"]}`, chi.URLParam(r, "prompt"), tune)
		case tune == "broken" && n >= 2:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"bad gateway"}`))
		case strings.HasPrefix(tune, "fail"):
			var k int
			_, _ = fmt.Sscanf(tune, "fail%d", &k)
			if n >= k {
				_, _ = w.Write([]byte(`{"status":"failed","images":[]}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"processing","images":[]}`))
		default:
			_, _ = w.Write([]byte(`{"status":"processing","images":[]}`))
		}
	})
	r.Get("/tunes", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	return r
}

func (f *fakeProvider) set(fn func(f *fakeProvider)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeProvider) lastTrain() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTitle, f.lastPhotos
}

func (f *fakeProvider) pollsFor(tune string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[tune]
}

func (f *fakeProvider) outboundCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.tuneCalls + f.promptCalls
	for _, p := range f.polls {
		n += p
	}
	return n
}

type testEnv struct {
	provider *fakeProvider
	handler  http.Handler
	cfg      *config.Config
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	fp := newFakeProvider()
	upstream := httptest.NewServer(fp.handler())
	t.Cleanup(upstream.Close)

	cfg := config.Default()
	cfg.Astria.APIKey = "test-key"
	cfg.Astria.BaseURL = upstream.URL
	cfg.Poll.Interval = time.Millisecond
	cfg.Poll.MaxAttempts = 6
	cfg.RateLimit.RPS = 0
	cfg.StaticDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	client := astria.NewClient(cfg)
	relay := service.NewRelayService(cfg, client, nil)
	probe := service.NewProviderProbe(cfg, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return &testEnv{
		provider: fp,
		handler:  NewServer(cfg, relay, probe, nil).Routes(ctx),
		cfg:      cfg,
	}
}
