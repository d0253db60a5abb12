package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/jholdgaard/subastamon/internal/clock"
	"github.com/jholdgaard/subastamon/internal/collector"
	"github.com/jholdgaard/subastamon/internal/collector/directhttp"
	"github.com/jholdgaard/subastamon/internal/collector/portalwire"
	"github.com/jholdgaard/subastamon/internal/config"
	"github.com/jholdgaard/subastamon/internal/event"
	"github.com/jholdgaard/subastamon/internal/money"
)

var _ collector.Collector = (*Collector)(nil)

const listadoURL = "https://webecommerce.cba.gov.ar/VistaPublica/OportunidadProveedores.aspx"
const subastaURLPart = "SubastaVivoAccesoPublico.aspx"

const selRenglonSelect = `#ddlItemRenglon`
const selMargenMinimo = `#txtMargenMinimo`

var idCotizacionRe = regexp.MustCompile(`Cargar_Parametro\(\s*"id_Cotizacion"\s*,\s*'(\d+)'`)

// Collector drives a real Chromium tab via chromedp: the operator
// navigates it to an auction manually, capture_current reads the row
// list and reference prices out of the DOM, and a monitor loop polls
// BuscarOfertas from inside the page's own context (reusing its
// cookies/ASP.NET session) until the runtime switches over to
// internal/collector/directhttp. Grounded on
// original_source/app/collector/playwright_collector.py's
// PlaywrightCollector.
type Collector struct {
	headless bool
	cfg      config.CollectorConfig
	clk      clock.Clock
	logger   *slog.Logger
	bus      *collector.Bus

	mu        sync.Mutex
	cadence   time.Duration
	intensive bool
	running   bool
	done      chan struct{}
	lastSig   map[string]string
	cursor    int

	captured   *directhttp.Session
	cancelFns  []context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a browser collector. headless controls whether Chromium
// opens a visible window; operators need a visible window to navigate
// to the auction themselves, so production wiring should pass false.
func New(cfg config.CollectorConfig, headless bool, clk clock.Clock, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Collector{
		headless:  headless,
		cfg:       cfg,
		clk:       clk,
		logger:    logger,
		bus:       collector.NewBus(),
		cadence:   time.Duration(cfg.BaseCadenceSeconds * float64(time.Second)),
		intensive: true,
		lastSig:   make(map[string]string),
	}
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

// SetIntensive switches between polling every row every cycle
// (intensive) and rotating through one row per cycle (relaxed).
func (c *Collector) SetIntensive(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intensive = on
}

// CapturedSession returns the session handed off by the last
// successful capture, for internal/collector/directhttp to take the
// polling handoff. The zero value's ok is false until a capture
// completes, and the captured session survives Stop so a cold switch
// to direct-HTTP is still possible after the browser tab is closed.
func (c *Collector) CapturedSession() (directhttp.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.captured == nil {
		return directhttp.Session{}, false
	}
	return *c.captured, true
}

// Start opens Chromium (headless per New's setting), navigates to the
// public auction listing, and waits for the operator to browse into an
// auction before capturing it and starting the monitor loop. It
// returns once capture has completed (or ctx is cancelled / capture
// fails).
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.headless),
		chromedp.Flag("ignore-certificate-errors", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	c.mu.Lock()
	c.cancelFns = []context.CancelFunc{browserCancel, allocCancel}
	c.mu.Unlock()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(listadoURL)); err != nil {
		c.teardown()
		return fmt.Errorf("browser: opening listado: %w", err)
	}
	c.bus.Publish(c.newEvent(event.KindStart, event.LevelInfo, "browser collector started", nil))

	started := make(chan struct{})
	c.wg.Add(1)
	go c.runCaptureAndMonitor(browserCtx, started)
	<-started
	return nil
}

func (c *Collector) teardown() {
	c.mu.Lock()
	fns := c.cancelFns
	c.cancelFns = nil
	c.running = false
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Stop halts the monitor loop and closes the Chromium session.
// Idempotent.
func (c *Collector) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.done)
	fns := c.cancelFns
	c.cancelFns = nil
	c.mu.Unlock()

	c.wg.Wait()
	for _, fn := range fns {
		fn()
	}
	return nil
}

func (c *Collector) runCaptureAndMonitor(ctx context.Context, started chan struct{}) {
	defer c.wg.Done()
	defer c.bus.Publish(c.newEvent(event.KindStop, event.LevelInfo, "browser collector stopped", nil))

	ok := c.captureCurrent(ctx)
	close(started)
	if !ok {
		return
	}
	c.monitorLoop(ctx)
}

// captureCurrent waits (up to 60s) for the operator to navigate into
// an auction page, then reads the row select, the reference-price
// grid, the minimum-margin field, id_cotizacion, and the page's
// cookies, and publishes a SNAPSHOT event.
func (c *Collector) captureCurrent(ctx context.Context) bool {
	c.bus.Publish(c.newEvent(event.KindHeartbeat, event.LevelInfo, "waiting for the operator to open an auction (max 60s)", nil))

	deadline := c.clk.Now().Add(60 * time.Second)
	for {
		var url string
		if err := chromedp.Run(ctx, chromedp.Location(&url)); err != nil {
			c.bus.Publish(c.newEvent(event.KindException, event.LevelError, fmt.Sprintf("reading page location: %v", err), nil))
			return false
		}
		if strings.Contains(url, subastaURLPart) {
			break
		}
		if c.clk.Now().After(deadline) {
			c.bus.Publish(c.newEvent(event.KindException, event.LevelWarn, "timed out waiting for the operator to open an auction", nil))
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-c.done:
			return false
		case <-time.After(200 * time.Millisecond):
		}
	}

	var options []Option
	var rows []DetailRow
	var margin, html string
	actions := []chromedp.Action{
		chromedp.WaitVisible(selRenglonSelect, chromedp.ByID),
		chromedp.Evaluate(optionsScript, &options),
		chromedp.Evaluate(detailRowsScript, &rows),
		chromedp.Value(selMargenMinimo, &margin, chromedp.ByID),
		chromedp.OuterHTML("html", &html),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		c.bus.Publish(c.newEvent(event.KindException, event.LevelError, fmt.Sprintf("reading auction page: %v", err), nil))
		return false
	}

	idCot := extractIDCotizacion(html)
	if idCot == "" {
		c.bus.Publish(c.newEvent(event.KindException, event.LevelError, "could not find id_cotizacion on the auction page", nil))
		return false
	}

	matched := MatchItems(options, rows)
	if len(matched) == 0 {
		c.bus.Publish(c.newEvent(event.KindException, event.LevelError, "no auction rows matched between the select and the detail grid", nil))
		return false
	}

	var cookies []*network.Cookie
	if err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	})); err != nil {
		c.bus.Publish(c.newEvent(event.KindException, event.LevelError, fmt.Sprintf("reading session cookies: %v", err), nil))
		return false
	}

	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		httpCookies = append(httpCookies, &http.Cookie{Name: ck.Name, Value: ck.Value, Domain: ck.Domain, Path: ck.Path})
	}

	items := make([]event.SnapshotItem, 0, len(matched))
	dhItems := make([]directhttp.Item, 0, len(matched))
	for _, mi := range matched {
		items = append(items, event.SnapshotItem{
			LocalID:        mi.Value,
			Text:           mi.Text,
			Quantity:       mi.Quantity,
			ReferenceTotal: mi.ReferenceTotal,
			ReferenceUnit:  mi.ReferenceUnit,
			Budget:         mi.ReferenceTotal,
		})
		dhItems = append(dhItems, directhttp.Item{LocalID: mi.Value, Description: mi.Text})
	}

	c.mu.Lock()
	c.captured = &directhttp.Session{
		AuctionExtID: idCot,
		MarginText:   margin,
		Items:        dhItems,
		Cookies:      httpCookies,
		Referer:      url,
	}
	c.mu.Unlock()

	auctionID := idCot
	c.bus.Publish(event.Event{
		Kind:      event.KindSnapshot,
		Level:     event.LevelInfo,
		Message:   fmt.Sprintf("auction %s captured: %d rows", idCot, len(items)),
		AuctionID: &auctionID,
		CreatedAt: c.clk.Now(),
		Snapshot: &event.SnapshotPayload{
			AuctionExtID: idCot,
			MarginString: margin,
			URL:          url,
			Items:        items,
		},
	})
	return true
}

const optionsScript = `Array.from(document.querySelectorAll('#ddlItemRenglon option')).map(o => ({Value: o.value, Text: (o.textContent||'').trim()}))`

// detailRowsScript mirrors _parse_detalle_table: every <tr> of
// #gvDetalleCotizacion becomes one row, classified as a "RENGLON ..."
// summary row or a plain offer-detail row, with the numeric columns
// parsed leniently (comma-decimal, blank -> omitted) since their exact
// position varies between single-item and multi-item quotations.
const detailRowsScript = `Array.from(document.querySelectorAll('#gvDetalleCotizacion tr')).filter(r => r.querySelectorAll('td').length > 0).map(r => {
	const cells = Array.from(r.querySelectorAll('td')).map(td => (td.textContent||'').trim());
	const desc = cells[0] || '';
	const isSummary = /^RENGLON\b/i.test(desc);
	const num = (s) => {
		if (!s) return null;
		const n = parseFloat(s.replace(/\./g, '').replace(',', '.').replace(/[^0-9.\-]/g, ''));
		return isNaN(n) ? null : n;
	};
	let qty = null, refTotal = null;
	for (let i = 1; i < cells.length; i++) {
		const n = num(cells[i]);
		if (n === null) continue;
		if (qty === null) { qty = n; } else if (refTotal === null) { refTotal = n; }
	}
	const refUnit = (qty && refTotal !== null && qty !== 0) ? (refTotal / qty) : null;
	return {Description: desc, IsSummary: isSummary, Quantity: qty, ReferenceTotal: refTotal, ReferenceUnit: refUnit};
})`

func extractIDCotizacion(html string) string {
	m := idCotizacionRe.FindStringSubmatch(html)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// monitorLoop polls BuscarOfertas from inside the page's own context
// (so the request carries the page's ASP.NET session cookies without
// this process ever seeing them as raw bytes beyond the snapshot
// handed to directhttp), rotating through captured rows the same way
// directhttp.Collector does.
func (c *Collector) monitorLoop(ctx context.Context) {
	c.mu.Lock()
	session := c.captured
	c.mu.Unlock()
	if session == nil {
		return
	}

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

		var items []directhttp.Item
		if intensive {
			items = session.Items
		} else {
			c.mu.Lock()
			idx := c.cursor % len(session.Items)
			c.cursor++
			c.mu.Unlock()
			items = []directhttp.Item{session.Items[idx]}
		}

		if c.runMonitorCycle(ctx, session, items, tick) {
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

type pageFetchResult struct {
	Status int    `json:"status"`
	JSON   string `json:"json"`
}

// runMonitorCycle fetches every item in items from inside the page
// context in one batched page.evaluate call, mirroring
// _fetch_buscar_ofertas_batch. It returns true if the caller must stop
// (page closed, or the portal reported the auction finalized).
func (c *Collector) runMonitorCycle(ctx context.Context, session *directhttp.Session, items []directhttp.Item, tick int) bool {
	type payload struct {
		IDCotizacion  string `json:"id_Cotizacion"`
		IDItemRenglon string `json:"id_Item_Renglon"`
		MargenMinimo  string `json:"Margen_Minimo"`
	}
	batch := make([]payload, len(items))
	for i, it := range items {
		batch[i] = payload{IDCotizacion: session.AuctionExtID, IDItemRenglon: it.LocalID, MargenMinimo: session.MarginText}
	}
	batchJSON, err := json.Marshal(batch)
	if err != nil {
		c.bus.Publish(c.newEvent(event.KindException, event.LevelError, fmt.Sprintf("encoding batch payload: %v", err), nil))
		return false
	}

	var results []pageFetchResult
	expr := fmt.Sprintf(fetchBatchScriptTemplate, string(batchJSON))
	evalErr := chromedp.Run(ctx, chromedp.Evaluate(expr, &results, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if evalErr != nil {
		msg := evalErr.Error()
		if strings.Contains(strings.ToLower(msg), "closed") {
			c.bus.Publish(c.newEvent(event.KindStop, event.LevelWarn, "browser tab closed during monitoring", nil))
			return true
		}
		c.bus.Publish(c.newEvent(event.KindException, event.LevelError, fmt.Sprintf("fetch batch failed: %v", evalErr), nil))
		return false
	}

	updates := 0
	for i, res := range results {
		if i >= len(items) {
			break
		}
		if c.handleMonitorResult(session, items[i], res) {
			return true
		}
		updates++
	}

	if tick%10 == 1 {
		c.bus.Publish(c.newEvent(event.KindHeartbeat, event.LevelInfo, fmt.Sprintf("browser monitor tick=%d rows=%d updates=%d", tick, len(items), updates), nil))
	}
	return false
}

const fetchBatchScriptTemplate = `(async () => {
	const endpoint = "SubastaVivoAccesoPublico.aspx/BuscarOfertas";
	const batch = %s;
	const tasks = batch.map(async (p) => {
		try {
			const r = await fetch(endpoint, {
				method: "POST",
				headers: {"Content-Type": "application/json; charset=UTF-8", "X-Requested-With": "XMLHttpRequest"},
				body: JSON.stringify(p),
			});
			const text = await r.text();
			return {status: r.status, json: text};
		} catch (e) {
			return {status: 0, json: ""};
		}
	});
	return await Promise.all(tasks);
})()`

func (c *Collector) handleMonitorResult(session *directhttp.Session, item directhttp.Item, res pageFetchResult) bool {
	auctionID := session.AuctionExtID
	localID := item.LocalID

	if res.Status != http.StatusOK {
		kind := event.ErrorKindHTTP
		if res.Status == 0 {
			kind = event.ErrorKindNetwork
		} else if res.Status == http.StatusUnauthorized || res.Status == http.StatusForbidden {
			kind = event.ErrorKindAuth
		}
		c.bus.Publish(event.Event{
			Kind: event.KindHTTPError, Level: event.LevelWarn,
			Message:   fmt.Sprintf("BuscarOfertas http=%d item=%s", res.Status, localID),
			AuctionID: &auctionID, ItemID: &localID, CreatedAt: c.clk.Now(),
			HTTPError: &event.HTTPErrorPayload{AuctionExtID: auctionID, LocalID: localID, TransportStatus: res.Status, ErrorKind: kind},
		})
		return false
	}

	var env struct {
		D string `json:"d"`
	}
	if err := json.Unmarshal([]byte(res.JSON), &env); err != nil {
		return false
	}
	parsed := portalwire.Parse(env.D)
	payload := event.UpdatePayload{
		AuctionExtID: auctionID, LocalID: localID, Description: item.Description,
		OfferToBeatText: parsed.OfferToBeatText, BudgetText: parsed.BudgetText,
		PortalMessage: parsed.PortalMessage, TransportStatus: http.StatusOK,
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
	}

	c.mu.Lock()
	sig := payload.BestOfferText + "|" + payload.OfferToBeatText + "|" + payload.PortalMessage
	payload.Changed = c.lastSig[localID] != sig
	c.lastSig[localID] = sig
	c.mu.Unlock()

	c.bus.Publish(event.Event{
		Kind: event.KindUpdate, Level: event.LevelInfo, Message: fmt.Sprintf("update item %s", localID),
		AuctionID: &auctionID, ItemID: &localID, CreatedAt: c.clk.Now(), Update: &payload,
	})

	if strings.Contains(strings.ToLower(parsed.PortalMessage), "finalizada") {
		c.bus.Publish(event.Event{
			Kind: event.KindEnd, Level: event.LevelInfo,
			Message:   fmt.Sprintf("auction %s finalized (item %s)", auctionID, localID),
			AuctionID: &auctionID, ItemID: &localID, CreatedAt: c.clk.Now(),
			End: &event.EndPayload{AuctionExtID: auctionID, LocalID: localID, Reason: "portal reported finalizada"},
		})
		return true
	}
	return false
}

func (c *Collector) newEvent(kind event.Kind, level event.Level, msg string, auctionID *string) event.Event {
	if auctionID == nil {
		c.mu.Lock()
		if c.captured != nil {
			id := c.captured.AuctionExtID
			auctionID = &id
		}
		c.mu.Unlock()
	}
	return event.Event{Kind: kind, Level: level, Message: msg, AuctionID: auctionID, CreatedAt: c.clk.Now()}
}
