// Package directhttp implements the high-speed polling collector: once
// the browser collector has captured a session, directhttp takes over
// the "phase 2" best-offer polling loop by replaying the portal's own
// BuscarOfertas XHR directly over HTTP/2, reusing the captured cookies
// instead of driving Chromium. Grounded on
// original_source/app/collector/http_monitor.py's HttpMonitor, which
// documents the same relationship ("no modifica Engine, DB, UI ni
// eventos ... PlaywrightCollector sigue siendo responsable del browse +
// capture").
package directhttp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/jholdgaard/subastamon/internal/clock"
	"github.com/jholdgaard/subastamon/internal/collector"
	"github.com/jholdgaard/subastamon/internal/collector/portalwire"
	"github.com/jholdgaard/subastamon/internal/config"
	"github.com/jholdgaard/subastamon/internal/event"
	"github.com/jholdgaard/subastamon/internal/money"
)

var _ collector.Collector = (*Collector)(nil)

const baseDomain = "webecommerce.cba.gov.ar"
const searchOffersPath = "/VistaPublica/SubastaVivoAccesoPublico.aspx/BuscarOfertas"

var defaultSearchOffersURL = "https://" + baseDomain + searchOffersPath

// Item is one auction row the collector polls, as handed off by the
// browser collector's capture phase.
type Item struct {
	LocalID     string
	Description string
}

// Session is everything the browser collector's capture phase hands
// directhttp so it can take over polling without ever opening
// Chromium: the auction identity, the minimum-margin string the portal
// expects verbatim, the rows to poll, and the cookies/referer that
// prove the session is authenticated.
type Session struct {
	AuctionExtID string
	MarginText   string
	Items        []Item
	Cookies      []*http.Cookie
	Referer      string
}

// Collector polls the portal's BuscarOfertas endpoint directly over
// HTTP, replaying the cookies a browser session captured. Grounded on
// HttpMonitor's semaphore-bounded asyncio.gather cycle, translated to a
// bounded worker fan-out per tick.
type Collector struct {
	session        Session
	cfg            config.CollectorConfig
	clk            clock.Clock
	logger         *slog.Logger
	bus            *collector.Bus
	client         *http.Client
	searchURL      string
	limiter        *rate.Limiter

	mu           sync.Mutex
	cadence      time.Duration
	intensive    bool
	running      bool
	done         chan struct{}
	authFailures int
	cursor       int
	lastSig      map[string]string

	wg sync.WaitGroup
}

// New builds a directhttp collector for session. The returned
// collector owns its own http.Client with an HTTP/2-capable transport
// and a cookie jar seeded from session.Cookies; it does not share a
// client with any other collector.
func New(session Session, cfg config.CollectorConfig, clk clock.Clock, logger *slog.Logger) (*Collector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if len(session.Items) == 0 {
		return nil, fmt.Errorf("directhttp: session has no items to poll")
	}
	refURL, err := url.Parse(session.Referer)
	if err != nil {
		return nil, fmt.Errorf("directhttp: parsing referer %q: %w", session.Referer, err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("directhttp: building cookie jar: %w", err)
	}
	jar.SetCookies(refURL, session.Cookies)

	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // spec.md §6: portal serves a self-signed cert
		MaxIdleConnsPerHost: cfg.ConcurrentRequests + 5,
		IdleConnTimeout:     30 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		logger.Warn("directhttp: http/2 not available on this transport, continuing over h1", slog.Any("error", err))
	}

	cadence := time.Duration(cfg.BaseCadenceSeconds * float64(time.Second))

	return &Collector{
		session:   session,
		cfg:       cfg,
		clk:       clk,
		logger:    logger,
		bus:       collector.NewBus(),
		client:    &http.Client{Jar: jar, Transport: transport},
		searchURL: defaultSearchOffersURL,
		limiter:   rate.NewLimiter(rate.Limit(cfg.ConcurrentRequests), cfg.ConcurrentRequests),
		cadence:   cadence,
		intensive: true,
		lastSig:   make(map[string]string),
	}, nil
}

// Bus returns the event bus this collector publishes onto.
func (c *Collector) Bus() *collector.Bus { return c.bus }

// SetCadence changes the pause between polling cycles, in both relaxed
// and intensive mode.
func (c *Collector) SetCadence(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cadence = d
}

// SetIntensive switches between polling every item every cycle
// (intensive) and rotating through one item per cycle (relaxed).
func (c *Collector) SetIntensive(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intensive = on
}

// Start begins polling in a background goroutine and returns once the
// first cycle has completed.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	started := make(chan struct{})
	c.wg.Add(1)
	go c.loop(ctx, started)
	<-started
	return nil
}

// Stop halts polling. Idempotent: a no-op if already stopped, whether
// by an explicit Stop or by the collector's own session-expired
// self-stop.
func (c *Collector) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// markStopped records a self-initiated stop (session expiry, portal
// terminator) without closing done: the loop goroutine that calls this
// is the same one about to return, so there is nothing left to signal.
func (c *Collector) markStopped() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *Collector) loop(ctx context.Context, started chan struct{}) {
	defer c.wg.Done()
	defer c.bus.Publish(c.newEvent(event.KindStop, event.LevelInfo, "direct-http collector stopped", nil))
	first := true
	defer func() {
		// Unblock Start even when the loop exits before its first cycle.
		if first {
			close(started)
		}
	}()

	c.bus.Publish(c.newEvent(event.KindStart, event.LevelInfo,
		fmt.Sprintf("direct-http collector started: auction=%s items=%d", c.session.AuctionExtID, len(c.session.Items)), nil))

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		cycleStart := c.clk.Now()
		tick++

		c.mu.Lock()
		intensive := c.intensive
		cadence := c.cadence
		c.mu.Unlock()

		var items []Item
		var timeout time.Duration
		if intensive {
			items = c.session.Items
			timeout = time.Duration(c.cfg.RequestTimeoutIntensiveS * float64(time.Second))
		} else {
			c.mu.Lock()
			idx := c.cursor % len(c.session.Items)
			c.cursor++
			c.mu.Unlock()
			items = []Item{c.session.Items[idx]}
			timeout = time.Duration(c.cfg.RequestTimeoutRelaxedS * float64(time.Second))
		}

		stopped := c.runCycle(ctx, items, timeout, tick)
		if first {
			close(started)
			first = false
		}
		if stopped {
			return
		}

		elapsed := c.clk.Now().Sub(cycleStart)
		sleepFor := cadence - elapsed
		if sleepFor < 0 {
			sleepFor = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-time.After(sleepFor):
		}
	}
}

// runCycle fetches every item in items concurrently (bounded by
// cfg.ConcurrentRequests) and processes the results in a stable order.
// It returns true if the collector stopped itself mid-cycle (session
// expiry or portal terminator), in which case the caller must not
// continue the loop.
func (c *Collector) runCycle(ctx context.Context, items []Item, timeout time.Duration, tick int) bool {
	sem := make(chan struct{}, c.cfg.ConcurrentRequests)
	results := make([]fetchResult, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item Item) {
			defer wg.Done()
			results[i] = c.fetchOne(ctx, item, timeout, sem)
		}(i, item)
	}
	wg.Wait()

	updates, errs, timeouts := 0, 0, 0
	for _, res := range results {
		if ctx.Err() != nil {
			return true
		}
		switch c.handleResult(res) {
		case outcomeUpdate:
			updates++
		case outcomeError:
			errs++
		case outcomeTimeout:
			errs++
			timeouts++
		case outcomeSessionExpired, outcomeEnded:
			return true
		}
	}

	if tick%10 == 1 {
		c.bus.Publish(c.newEvent(event.KindHeartbeat, event.LevelInfo,
			fmt.Sprintf("direct-http collector tick=%d items=%d updates=%d errors=%d timeouts=%d",
				tick, len(items), updates, errs, timeouts), nil))
	}
	return false
}

type resultOutcome int

const (
	outcomeUpdate resultOutcome = iota
	outcomeError
	outcomeTimeout
	outcomeSessionExpired
	outcomeEnded
)

type fetchResult struct {
	item    Item
	status  int
	body    []byte
	errKind event.ErrorKind
	errMsg  string
}

func (c *Collector) fetchOne(ctx context.Context, item Item, timeout time.Duration, sem chan struct{}) fetchResult {
	if err := c.limiter.Wait(ctx); err != nil {
		return fetchResult{item: item, errKind: event.ErrorKindNetwork, errMsg: err.Error()}
	}

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return fetchResult{item: item, errKind: event.ErrorKindNetwork, errMsg: ctx.Err().Error()}
	}
	defer func() { <-sem }()

	payload, err := json.Marshal(map[string]string{
		"id_Cotizacion":   c.session.AuctionExtID,
		"id_Item_Renglon": item.LocalID,
		"Margen_Minimo":   c.session.MarginText,
	})
	if err != nil {
		return fetchResult{item: item, errKind: event.ErrorKindUnknown, errMsg: err.Error()}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.searchURL, bytes.NewReader(payload))
	if err != nil {
		return fetchResult{item: item, errKind: event.ErrorKindUnknown, errMsg: err.Error()}
	}
	c.applyHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		kind := event.ErrorKindNetwork
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			kind = event.ErrorKindTimeout
		}
		return fetchResult{item: item, errKind: kind, errMsg: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		kind := event.ErrorKindHTTP
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = event.ErrorKindAuth
		}
		return fetchResult{item: item, status: resp.StatusCode, errKind: kind}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetchResult{item: item, status: resp.StatusCode, errKind: event.ErrorKindNetwork, errMsg: err.Error()}
	}
	return fetchResult{item: item, status: http.StatusOK, body: body}
}

func (c *Collector) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "es-AR,es;q=0.9")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	req.Header.Set("Referer", c.session.Referer)
	req.Header.Set("Origin", "https://"+baseDomain)
}

// handleResult publishes the event that corresponds to one fetch
// outcome and returns what the caller should do about it.
func (c *Collector) handleResult(res fetchResult) resultOutcome {
	if res.errKind == event.ErrorKindAuth {
		c.mu.Lock()
		c.authFailures++
		failures := c.authFailures
		c.mu.Unlock()

		if failures >= c.cfg.AuthFailuresMax {
			c.bus.Publish(c.newEvent(event.KindException, event.LevelWarn,
				fmt.Sprintf("session expired after %d consecutive auth failures, stopping for re-capture", failures), &res.item.LocalID))
			c.markStopped()
			return outcomeSessionExpired
		}
		c.bus.Publish(c.httpErrorEvent(res))
		return outcomeError
	}

	if res.errKind != "" {
		c.bus.Publish(c.httpErrorEvent(res))
		if res.errKind == event.ErrorKindTimeout {
			return outcomeTimeout
		}
		return outcomeError
	}

	c.mu.Lock()
	c.authFailures = 0
	c.mu.Unlock()

	var env struct {
		D string `json:"d"`
	}
	if err := json.Unmarshal(res.body, &env); err != nil {
		c.bus.Publish(c.httpErrorEvent(fetchResult{item: res.item, status: res.status, errKind: event.ErrorKindUnknown, errMsg: err.Error()}))
		return outcomeError
	}

	parsed := portalwire.Parse(env.D)
	payload := c.buildUpdate(res.item, parsed)

	c.mu.Lock()
	sig := parsed.BudgetText + "|" + parsed.OfferToBeatText + "|" + parsed.PortalMessage
	if parsed.BestOffer != nil {
		sig = parsed.BestOffer.DisplayAmount + "|" + sig
	}
	payload.Changed = c.lastSig[res.item.LocalID] != sig
	c.lastSig[res.item.LocalID] = sig
	c.mu.Unlock()

	auctionID := c.session.AuctionExtID
	localID := res.item.LocalID
	c.bus.Publish(event.Event{
		Kind:      event.KindUpdate,
		Level:     event.LevelInfo,
		Message:   fmt.Sprintf("update item %s", localID),
		AuctionID: &auctionID,
		ItemID:    &localID,
		CreatedAt: c.clk.Now(),
		Update:    &payload,
	})

	if strings.Contains(strings.ToLower(parsed.PortalMessage), "finalizada") {
		c.bus.Publish(event.Event{
			Kind:      event.KindEnd,
			Level:     event.LevelInfo,
			Message:   fmt.Sprintf("auction %s finalized (item %s)", auctionID, localID),
			AuctionID: &auctionID,
			ItemID:    &localID,
			CreatedAt: c.clk.Now(),
			End:       &event.EndPayload{AuctionExtID: auctionID, LocalID: localID, Reason: "portal reported finalizada"},
		})
		c.markStopped()
		return outcomeEnded
	}
	return outcomeUpdate
}

func (c *Collector) buildUpdate(item Item, parsed portalwire.Result) event.UpdatePayload {
	payload := event.UpdatePayload{
		AuctionExtID:    c.session.AuctionExtID,
		LocalID:         item.LocalID,
		Description:     item.Description,
		OfferToBeatText: parsed.OfferToBeatText,
		BudgetText:      parsed.BudgetText,
		PortalMessage:   parsed.PortalMessage,
		TransportStatus: http.StatusOK,
	}
	if v, ok := money.ParseARS(parsed.OfferToBeatText); ok {
		payload.OfferToBeatValue = &v
	}
	if v, ok := money.ParseARS(parsed.BudgetText); ok {
		payload.BudgetValue = &v
	}
	if parsed.BestOffer != nil {
		payload.BestOfferText = parsed.BestOffer.DisplayAmount
		payload.LastOfferTime = parsed.BestOffer.Time
		payload.BestProviderID = parsed.BestOffer.ProviderID
		if v, ok := parsed.BestOfferValue(); ok {
			payload.BestOfferValue = &v
		}
		if raw, err := json.Marshal(parsed.Offers); err == nil {
			payload.RawOffers = raw
		}
	}
	return payload
}

func (c *Collector) httpErrorEvent(res fetchResult) event.Event {
	auctionID := c.session.AuctionExtID
	localID := res.item.LocalID
	kind := res.errKind
	if kind == "" {
		kind = event.ErrorKindUnknown
	}
	msg := res.errMsg
	if msg == "" {
		msg = fmt.Sprintf("http status %d", res.status)
	}
	return event.Event{
		Kind:      event.KindHTTPError,
		Level:     event.LevelWarn,
		Message:   fmt.Sprintf("%s: item %s: %s", kind, localID, msg),
		AuctionID: &auctionID,
		ItemID:    &localID,
		CreatedAt: c.clk.Now(),
		HTTPError: &event.HTTPErrorPayload{
			AuctionExtID:    auctionID,
			LocalID:         localID,
			TransportStatus: res.status,
			ErrorKind:       kind,
			Message:         msg,
		},
	}
}

func (c *Collector) newEvent(kind event.Kind, level event.Level, msg string, itemID *string) event.Event {
	auctionID := c.session.AuctionExtID
	return event.Event{
		Kind:      kind,
		Level:     level,
		Message:   msg,
		AuctionID: &auctionID,
		ItemID:    itemID,
		CreatedAt: c.clk.Now(),
	}
}
