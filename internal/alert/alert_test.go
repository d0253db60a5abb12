package alert_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jholdgaard/subastamon/internal/alert"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		in        alert.Input
		wantStyle alert.Style
		wantSound alert.Sound
		wantHide  bool
	}{
		{
			name:      "http error tracked item sounds error",
			in:        alert.Input{HTTPStatus: 500, Tracked: true, Message: "bad gateway"},
			wantStyle: alert.StyleDanger,
			wantSound: alert.SoundError,
		},
		{
			name:      "auction ended message",
			in:        alert.Input{HTTPStatus: 200, Message: "Subasta Finalizada"},
			wantStyle: alert.StyleWarning,
			wantSound: alert.SoundNone,
		},
		{
			name:      "outbid with comfortable margin still alerts on sound",
			in:        alert.Input{HTTPStatus: 200, Outbid: true, MarginPct: floatPtr(20), MinMarginPct: 10},
			wantStyle: alert.StyleSuccess,
			wantSound: alert.SoundAlert,
		},
		{
			name:      "auto-detected own offer with change plays success",
			in:        alert.Input{HTTPStatus: 200, OfferIsMine: true, OfferIsMineAuto: true, Changed: true, Tracked: true},
			wantStyle: alert.StyleMyOffer,
			wantSound: alert.SoundSuccess,
		},
		{
			name:      "manually marked own offer",
			in:        alert.Input{HTTPStatus: 200, OfferIsMine: true},
			wantStyle: alert.StyleSuccess,
			wantSound: alert.SoundNone,
		},
		{
			name:      "margin comfortably above minimum",
			in:        alert.Input{HTTPStatus: 200, MarginPct: floatPtr(16), MinMarginPct: 10},
			wantStyle: alert.StyleSuccess,
		},
		{
			name:      "margin just at minimum is a warning",
			in:        alert.Input{HTTPStatus: 200, MarginPct: floatPtr(10), MinMarginPct: 10},
			wantStyle: alert.StyleWarning,
		},
		{
			name:      "margin below minimum hides when configured",
			in:        alert.Input{HTTPStatus: 200, MarginPct: floatPtr(4), MinMarginPct: 10, HideBelowThreshold: true, Tracked: true},
			wantStyle: alert.StyleDanger,
			wantSound: alert.SoundError,
			wantHide:  true,
		},
		{
			name:      "tracked change with no margin data",
			in:        alert.Input{HTTPStatus: 200, Tracked: true, Changed: true},
			wantStyle: alert.StyleWarning,
			wantSound: alert.SoundAlert,
		},
		{
			name:      "tracked with no data and no change",
			in:        alert.Input{HTTPStatus: 200, Tracked: true},
			wantStyle: alert.StyleTracked,
		},
		{
			name:      "default normal",
			in:        alert.Input{HTTPStatus: 200},
			wantStyle: alert.StyleNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := alert.Decide(tt.in)
			assert.Equal(t, tt.wantStyle, got.Style, "style")
			if tt.wantSound != "" {
				assert.Equal(t, tt.wantSound, got.Sound, "sound")
			}
			assert.Equal(t, tt.wantHide, got.Hide, "hide")
		})
	}
}

func floatPtr(f float64) *float64 { return &f }
