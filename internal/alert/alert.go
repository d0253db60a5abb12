// Package alert decides, per item per tick, the row style, sound cue,
// and highlight/hide flags the operator surface should apply. It holds
// no UI state and plays no sound itself; it only returns decisions.
package alert

import (
	"strconv"
	"strings"
)

// Style is the logical row style; the UI maps it to an actual color.
type Style string

const (
	StyleNormal  Style = "NORMAL"
	StyleTracked Style = "TRACKED"
	StyleWarning Style = "WARNING"
	StyleDanger  Style = "DANGER"
	StyleSuccess Style = "SUCCESS"
	StyleMyOffer Style = "MY_OFFER"
	StyleOutbid  Style = "OUTBID"
)

// Sound is a logical sound-cue identifier.
type Sound string

const (
	SoundNone    Sound = "NONE"
	SoundAlert   Sound = "ALERT"
	SoundSuccess Sound = "SUCCESS"
	SoundError   Sound = "ERROR"
)

// Decision is the result of evaluating the engine once for one item.
type Decision struct {
	Style     Style
	Sound     Sound
	Highlight bool
	Hide      bool
	Message   string
}

// Input bundles the per-item facts the engine decides from.
type Input struct {
	Tracked            bool
	OfferIsMine        bool
	OfferIsMineAuto    bool
	Outbid             bool
	MarginPct          *float64
	MinMarginPct       float64
	HideBelowThreshold bool
	Changed            bool
	HTTPStatus         int
	Message            string
}

const successMarginSlackPct = 5.0

// Decide evaluates the decision cascade in priority order: transport
// errors, explicit end-of-auction messages, a just-outbid tick (color
// still reflects margin so the operator can judge whether to re-offer),
// an auto-detected or manually-marked own offer, margin-bucket styling,
// and finally a tracked/changed fallback.
func Decide(in Input) Decision {
	if in.HTTPStatus != 200 {
		sound := SoundNone
		if in.Tracked {
			sound = SoundError
		}
		msg := strings.TrimSpace("HTTP " + strconv.Itoa(in.HTTPStatus) + " - " + in.Message)
		return Decision{Style: StyleDanger, Sound: sound, Highlight: in.Tracked, Message: msg}
	}

	if strings.Contains(strings.ToLower(in.Message), "finalizada") {
		return Decision{Style: StyleWarning, Message: "auction ended"}
	}

	if in.Outbid {
		style := StyleNormal
		if in.Tracked {
			style = StyleTracked
		}
		if in.MarginPct != nil {
			switch {
			case *in.MarginPct >= in.MinMarginPct+successMarginSlackPct:
				style = StyleSuccess
			case *in.MarginPct >= in.MinMarginPct:
				style = StyleWarning
			default:
				style = StyleDanger
			}
		}
		return Decision{Style: style, Sound: SoundAlert, Highlight: true, Message: "your offer was outbid"}
	}

	if in.OfferIsMine && in.OfferIsMineAuto {
		sound := SoundNone
		if in.Changed && in.Tracked {
			sound = SoundSuccess
		}
		return Decision{Style: StyleMyOffer, Sound: sound, Highlight: in.Changed && in.Tracked, Message: "best offer is yours"}
	}

	if in.OfferIsMine {
		sound := SoundNone
		if in.Changed && in.Tracked {
			sound = SoundSuccess
		}
		return Decision{Style: StyleSuccess, Sound: sound, Highlight: in.Changed && in.Tracked, Message: "offer marked as mine"}
	}

	if in.MarginPct != nil {
		m := *in.MarginPct
		switch {
		case m >= in.MinMarginPct+successMarginSlackPct:
			sound := SoundNone
			if in.Changed && in.Tracked {
				sound = SoundAlert
			}
			return Decision{Style: StyleSuccess, Sound: sound, Highlight: in.Changed && in.Tracked, Message: "margin comfortable"}
		case m >= in.MinMarginPct:
			return Decision{Style: StyleWarning, Highlight: in.Changed && in.Tracked, Message: "margin tight"}
		default:
			sound := SoundNone
			if in.Tracked {
				sound = SoundError
			}
			return Decision{Style: StyleDanger, Sound: sound, Highlight: in.Tracked, Hide: in.HideBelowThreshold, Message: "margin insufficient"}
		}
	}

	if in.Tracked && in.Changed {
		return Decision{Style: StyleWarning, Sound: SoundAlert, Highlight: true, Message: "change detected on tracked item"}
	}

	if in.Tracked {
		return Decision{Style: StyleTracked, Message: "tracked, no margin data yet"}
	}

	return Decision{Style: StyleNormal}
}
