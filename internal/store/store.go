package store

import (
	"context"
	"time"
)

// AuctionState is an auction's lifecycle state.
type AuctionState string

const (
	AuctionRunning AuctionState = "RUNNING"
	AuctionError   AuctionState = "ERROR"
	AuctionEnded   AuctionState = "ENDED"
)

// Auction represents one government electronic-auction ("subasta").
// ExtID is the portal's own opaque identifier (id_cot); the composite
// key (ExtID, Item.LocalID) is unique across items.
type Auction struct {
	ExtID          string       `db:"ext_id"`
	URL            string       `db:"url"`
	State          AuctionState `db:"state"`
	ProviderID     *string      `db:"provider_id"` // mi_id_proveedor
	ErrorStreak    int          `db:"error_streak"`
	LastSuccessAt  *time.Time   `db:"last_success_at"`
	LastStatus     int          `db:"last_status"`
	CreatedAt      time.Time    `db:"created_at"`
	EndedAt        *time.Time   `db:"ended_at"`
}

// Item represents one auction line ("renglon").
type Item struct {
	AuctionExtID string    `db:"auction_ext_id"`
	LocalID      string    `db:"local_id"` // id_renglon
	Description  string    `db:"description"`
	MarginString string    `db:"margin_string"`
	CreatedAt    time.Time `db:"created_at"`
}

// ItemState is the engine's view of an item's best-offer polling
// result. Mutated only by the engine in response to UPDATE events.
type ItemState struct {
	AuctionExtID     string    `db:"auction_ext_id"`
	LocalID          string    `db:"local_id"`
	BestOfferText    string    `db:"best_offer_text"`
	BestOfferValue   *float64  `db:"best_offer_value"`
	OfferToBeatText  string    `db:"offer_to_beat_text"`
	OfferToBeatValue *float64  `db:"offer_to_beat_value"`
	BudgetText       string    `db:"budget_text"`
	BudgetValue      *float64  `db:"budget_value"`
	PortalMessage    string    `db:"portal_message"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// ItemCommercial holds the operator-supplied, portal-derived, and
// engine-derived commercial figures for one item. Unit/total cost are
// always kept consistent with Quantity: whichever of UnitCostARS /
// TotalCostARS changes, the other is recomputed, with TotalCostARS
// given priority when both are supplied in the same write.
type ItemCommercial struct {
	AuctionExtID string `db:"auction_ext_id"`
	LocalID      string `db:"local_id"`

	// Operator-supplied.
	Unit          string   `db:"unit"`
	Brand         string   `db:"brand"`
	Notes         string   `db:"notes"`
	USDConversion *float64 `db:"usd_conversion"`
	UnitCostARS   *float64 `db:"unit_cost_ars"`
	TotalCostARS  *float64 `db:"total_cost_ars"`
	UnitCostUSD   *float64 `db:"unit_cost_usd"`  // derived: unit_cost_ars / usd_conversion
	TotalCostUSD  *float64 `db:"total_cost_usd"` // derived: total_cost_ars / usd_conversion
	MinMargin     float64  `db:"min_margin"`     // fraction in [0,1]

	// Portal-derived.
	Quantity          *float64 `db:"quantity"`
	BudgetReference   *float64 `db:"budget_reference"`
	ReferenceUnitCost *float64 `db:"reference_unit_cost"`

	// Engine-derived.
	AcceptableUnitPrice  *float64 `db:"acceptable_unit_price"`
	AcceptableTotalPrice *float64 `db:"acceptable_total_price"`
	ReferenceMargin      *float64 `db:"reference_margin"`
	UnitImprovementPrice *float64 `db:"unit_improvement_price"`
	MarginToBeat         *float64 `db:"margin_to_beat"`
	BestOfferSnapshot    string   `db:"best_offer_snapshot"`
	ChangeNote           string   `db:"change_note"`
}

// ItemConfig holds per-item operator flags.
type ItemConfig struct {
	AuctionExtID    string   `db:"auction_ext_id"`
	LocalID         string   `db:"local_id"`
	Follow          bool     `db:"follow"`
	MyBid           bool     `db:"my_bid"`
	MinMarginOverride *float64 `db:"min_margin_override"`
	HideBelowThreshold bool   `db:"hide_below_threshold"`
}

// UIPreference is an opaque operator UI setting.
type UIPreference struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// AuctionRepository persists Auction records.
type AuctionRepository interface {
	Upsert(ctx context.Context, a *Auction) error
	GetByExtID(ctx context.Context, extID string) (*Auction, error)
	Current(ctx context.Context) (*Auction, error)
	ListRunning(ctx context.Context) ([]Auction, error)
	End(ctx context.Context, extID string) error
}

// ItemRepository persists Item records.
type ItemRepository interface {
	Upsert(ctx context.Context, i *Item) error
	Get(ctx context.Context, auctionExtID, localID string) (*Item, error)
	ListForAuction(ctx context.Context, auctionExtID string) ([]Item, error)
}

// ItemStateRepository persists ItemState records.
type ItemStateRepository interface {
	Upsert(ctx context.Context, s *ItemState) error
	Get(ctx context.Context, auctionExtID, localID string) (*ItemState, error)
}

// ItemCommercialRepository persists ItemCommercial records.
type ItemCommercialRepository interface {
	Upsert(ctx context.Context, c *ItemCommercial) error
	Get(ctx context.Context, auctionExtID, localID string) (*ItemCommercial, error)
	ListForAuction(ctx context.Context, auctionExtID string) ([]ItemCommercial, error)
}

// ItemConfigRepository persists ItemConfig records.
type ItemConfigRepository interface {
	Upsert(ctx context.Context, c *ItemConfig) error
	Get(ctx context.Context, auctionExtID, localID string) (*ItemConfig, error)
}

// UIPreferenceRepository persists opaque key/value UI settings.
type UIPreferenceRepository interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
}
