package event

import (
	"encoding/json"
	"time"
)

// Level is the severity of an event.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Kind identifies the shape of an event's payload.
type Kind string

const (
	KindHeartbeat Kind = "HEARTBEAT"
	KindUpdate    Kind = "UPDATE"
	KindSnapshot  Kind = "SNAPSHOT"
	KindAlert     Kind = "ALERT"
	KindSecurity  Kind = "SECURITY"
	KindHTTPError Kind = "HTTP_ERROR"
	KindException Kind = "EXCEPTION"
	KindStart     Kind = "START"
	KindStop      Kind = "STOP"
	KindEnd       Kind = "END"
	KindOutbid    Kind = "OUTBID"
)

// ErrorKind classifies a transport failure for the security policy.
type ErrorKind string

const (
	ErrorKindAuth    ErrorKind = "auth"
	ErrorKindTimeout ErrorKind = "timeout"
	ErrorKindNetwork ErrorKind = "network"
	ErrorKindHTTP    ErrorKind = "http"
	ErrorKindUnknown ErrorKind = "unknown"
)

// Event is an immutable record produced by a collector or the engine and
// carried on the collector_out / engine_out queues. At most
// one of the typed payload pointers is set, selected by Kind; kinds
// with no payload contract (HEARTBEAT, START, STOP) leave all nil.
type Event struct {
	ID        string    `json:"id" db:"id"`
	Level     Level     `json:"level" db:"level"`
	Kind      Kind      `json:"kind" db:"kind"`
	Message   string    `json:"message" db:"message"`
	AuctionID *string   `json:"auction_id,omitempty" db:"auction_id"`
	ItemID    *string   `json:"item_id,omitempty" db:"item_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Snapshot  *SnapshotPayload  `json:"snapshot,omitempty" db:"-"`
	Update    *UpdatePayload    `json:"update,omitempty" db:"-"`
	HTTPError *HTTPErrorPayload `json:"http_error,omitempty" db:"-"`
	End       *EndPayload       `json:"end,omitempty" db:"-"`
}

// SnapshotItem describes one item discovered during capture.
type SnapshotItem struct {
	LocalID        string   `json:"local_id"`
	Text           string   `json:"text"`
	Quantity       *float64 `json:"quantity,omitempty"`
	ReferenceTotal *float64 `json:"reference_total,omitempty"`
	ReferenceUnit  *float64 `json:"reference_unit,omitempty"`
	Budget         *float64 `json:"budget,omitempty"`
}

// SnapshotPayload is carried by SNAPSHOT events: the full set of items
// the collector found for an auction at capture time.
type SnapshotPayload struct {
	AuctionExtID string         `json:"auction_ext_id"`
	MarginString string         `json:"margin_string"`
	URL          string         `json:"url"`
	Items        []SnapshotItem `json:"items"`
}

// UpdatePayload is carried by UPDATE events: one item's best-offer poll
// result.
type UpdatePayload struct {
	AuctionExtID     string          `json:"auction_ext_id"`
	LocalID          string          `json:"local_id"`
	Description      string          `json:"description"`
	BestOfferText    string          `json:"best_offer_text"`
	BestOfferValue   *float64        `json:"best_offer_value,omitempty"`
	OfferToBeatText  string          `json:"offer_to_beat_text"`
	OfferToBeatValue *float64        `json:"offer_to_beat_value,omitempty"`
	BudgetText       string          `json:"budget_text"`
	BudgetValue      *float64        `json:"budget_value,omitempty"`
	PortalMessage    string          `json:"portal_message"`
	LastOfferTime    string          `json:"last_offer_time"`
	BestProviderID   string          `json:"best_provider_id"`
	RawOffers        json.RawMessage `json:"raw_offers,omitempty"`
	TransportStatus  int             `json:"transport_status"`
	Changed          bool            `json:"changed"`
	PortalRaw        json.RawMessage `json:"portal_raw,omitempty"`

	// Engine-derived, set only on the UPDATE the engine emits downstream
	// (never on the one a collector publishes upstream).
	MarginPct          *float64 `json:"margin_pct,omitempty"`
	OperatorIsBest     bool     `json:"operator_is_best,omitempty"`
	OperatorIsBestAuto bool     `json:"operator_is_best_auto,omitempty"`
	Outbid             bool     `json:"outbid,omitempty"`
	AlertStyle         string   `json:"alert_style,omitempty"`
	Sound              string   `json:"sound,omitempty"`
	Highlight          bool     `json:"highlight,omitempty"`
	Hide               bool     `json:"hide,omitempty"`
	DecisionMessage    string   `json:"decision_message,omitempty"`
}

// HTTPErrorPayload is carried by HTTP_ERROR events.
type HTTPErrorPayload struct {
	AuctionExtID    string    `json:"auction_ext_id"`
	LocalID         string    `json:"local_id,omitempty"`
	TransportStatus int       `json:"transport_status"`
	ErrorKind       ErrorKind `json:"error_kind"`
	Message         string    `json:"message"`
}

// EndPayload is carried by END events: the collector has stopped
// watching an auction or item, with the reason it stopped.
type EndPayload struct {
	AuctionExtID string `json:"auction_ext_id"`
	LocalID      string `json:"local_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
}
