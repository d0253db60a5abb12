// Package portalwire parses the portal's best-offer XHR response: the
// `"d"` string field of its JSON envelope, itself a `@@`-delimited
// 4-part record. Parsing is defensive by design — malformed or partial
// input yields zero-value fields rather than an error, since the
// portal is known to return truncated strings under load.
package portalwire

import (
	"encoding/json"
	"strings"

	"github.com/jholdgaard/subastamon/internal/money"
)

// Offer is one element of the offers array, the subset of fields the
// monitor cares about.
type Offer struct {
	DisplayAmount string `json:"monto_a_mostrar"`
	Amount        string `json:"monto"`
	Time          string `json:"hora"`
	ProviderID    string `json:"id_proveedor"`
}

// Result is the normalized record produced from one raw "d" string.
type Result struct {
	Offers          []Offer
	BestOffer       *Offer
	BudgetText      string
	OfferToBeatText string
	PortalMessage   string
}

// BestOfferValue returns the parsed numeric value of the best offer's
// display amount, if any offer exists and it parses.
func (r Result) BestOfferValue() (float64, bool) {
	if r.BestOffer == nil {
		return 0, false
	}
	return money.ParseARS(r.BestOffer.DisplayAmount)
}

// Parse splits raw on "@@" into up to four parts and decodes each:
// part 0 as a JSON array of offers (empty/invalid input tolerated as
// no offers), parts 1-3 as budget_text / offer_to_beat_text /
// portal_message, each defaulting to "" when absent.
func Parse(raw string) Result {
	parts := strings.SplitN(raw, "@@", 4)

	var res Result
	if len(parts) > 0 {
		res.Offers = parseOffers(parts[0])
		if len(res.Offers) > 0 {
			best := res.Offers[0]
			res.BestOffer = &best
		}
	}
	if len(parts) > 1 {
		res.BudgetText = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		res.OfferToBeatText = strings.TrimSpace(parts[2])
	}
	if len(parts) > 3 {
		res.PortalMessage = strings.TrimSpace(parts[3])
	}
	return res
}

func parseOffers(raw string) []Offer {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	var offers []Offer
	if err := json.Unmarshal([]byte(s), &offers); err != nil {
		return nil
	}
	return offers
}
