package directhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jholdgaard/subastamon/internal/clock"
	"github.com/jholdgaard/subastamon/internal/config"
	"github.com/jholdgaard/subastamon/internal/event"
)

func testConfig() config.CollectorConfig {
	return config.CollectorConfig{
		BaseCadenceSeconds:       0.05,
		RelaxedCadenceSeconds:    0.05,
		ConcurrentRequests:       3,
		RequestTimeoutIntensiveS: 1,
		RequestTimeoutRelaxedS:   1,
		AuthFailuresMax:          3,
	}
}

func newTestSession(referer string) Session {
	return Session{
		AuctionExtID: "22053",
		MarginText:   "0,0050",
		Items:        []Item{{LocalID: "1", Description: "RENGLON 1"}},
		Cookies:      []*http.Cookie{{Name: "ASP.NET_SessionId", Value: "abc"}},
		Referer:      referer,
	}
}

func waitForEvent(t *testing.T, ch <-chan event.Event, kind event.Kind, timeout time.Duration) event.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestCollector_PublishesUpdateOnSuccessfulPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"d": `[{"monto_a_mostrar":"$ 100,00","monto":"100.00","hora":"10:00","id_proveedor":"P1"}]@@$ 50,00@@$ 90,00@@`,
		})
	}))
	defer srv.Close()

	c, err := New(newTestSession(srv.URL+"/VistaPublica/SubastaVivoAccesoPublico.aspx"), testConfig(), clock.Real{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.searchURL = srv.URL + searchOffersPath

	events := c.Bus().Subscribe(32)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	ev := waitForEvent(t, events, event.KindUpdate, 2*time.Second)
	if ev.Update == nil {
		t.Fatal("UPDATE event carried no payload")
	}
	if ev.Update.BestOfferText != "$ 100,00" {
		t.Errorf("BestOfferText = %q, want %q", ev.Update.BestOfferText, "$ 100,00")
	}
	if ev.Update.OfferToBeatText != "$ 90,00" {
		t.Errorf("OfferToBeatText = %q, want %q", ev.Update.OfferToBeatText, "$ 90,00")
	}
	if ev.Update.BestProviderID != "P1" {
		t.Errorf("BestProviderID = %q, want P1", ev.Update.BestProviderID)
	}
}

func TestCollector_SessionExpiresAfterConsecutiveAuthFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.AuthFailuresMax = 2
	c, err := New(newTestSession(srv.URL+"/VistaPublica/SubastaVivoAccesoPublico.aspx"), cfg, clock.Real{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.searchURL = srv.URL + searchOffersPath

	events := c.Bus().Subscribe(32)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	waitForEvent(t, events, event.KindException, 2*time.Second)

	deadline := time.After(time.Second)
	for {
		c.mu.Lock()
		running := c.running
		c.mu.Unlock()
		if !running {
			return
		}
		select {
		case <-deadline:
			t.Fatal("collector did not self-stop after session expired")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCollector_PortalTerminatorEndsAuction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"d": `[]@@@@@@Subasta Finalizada`})
	}))
	defer srv.Close()

	c, err := New(newTestSession(srv.URL+"/VistaPublica/SubastaVivoAccesoPublico.aspx"), testConfig(), clock.Real{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.searchURL = srv.URL + searchOffersPath

	events := c.Bus().Subscribe(32)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	waitForEvent(t, events, event.KindEnd, 2*time.Second)
}

func TestNew_RejectsEmptySession(t *testing.T) {
	_, err := New(Session{Referer: "https://example.com"}, testConfig(), clock.Real{}, nil)
	if err == nil {
		t.Fatal("expected an error for a session with no items")
	}
}

func TestNew_RejectsUnparsableReferer(t *testing.T) {
	session := newTestSession("://not-a-url")
	if _, err := New(session, testConfig(), clock.Real{}, nil); err == nil {
		t.Fatal("expected an error for an unparsable referer")
	}
}
