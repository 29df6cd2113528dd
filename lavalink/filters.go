package lavalink

import (
	"github.com/disgoorg/json"
)

// Filters is the full filter payload of a player update. Nil members are
// omitted and leave the node-side filter untouched; the node treats a
// missing filter as disabled.
type Filters struct {
	Volume        *Volume                    `json:"volume,omitempty"`
	Equalizer     *Equalizer                 `json:"equalizer,omitempty"`
	Karaoke       *Karaoke                   `json:"karaoke,omitempty"`
	Timescale     *Timescale                 `json:"timescale,omitempty"`
	Tremolo       *Tremolo                   `json:"tremolo,omitempty"`
	Vibrato       *Vibrato                   `json:"vibrato,omitempty"`
	Rotation      *Rotation                  `json:"rotation,omitempty"`
	Distortion    *Distortion                `json:"distortion,omitempty"`
	ChannelMix    *ChannelMix                `json:"channelMix,omitempty"`
	LowPass       *LowPass                   `json:"lowPass,omitempty"`
	PluginFilters map[string]json.RawMessage `json:"pluginFilters,omitempty"`
}

// Volume is a filter-level volume multiplier (1.0 is unity gain).
type Volume float64

// Equalizer holds the gain of the node's 15 equalizer bands.
// Band gains range from -0.25 (muted) to 1.0.
type Equalizer [15]float64

// MarshalJSON encodes the equalizer as the band/gain object list the node
// expects rather than a bare array.
func (e Equalizer) MarshalJSON() ([]byte, error) {
	bands := make([]EqBand, 0, len(e))
	for band, gain := range e {
		bands = append(bands, EqBand{
			Band: band,
			Gain: gain,
		})
	}
	return json.Marshal(bands)
}

func (e *Equalizer) UnmarshalJSON(data []byte) error {
	var bands []EqBand
	if err := json.Unmarshal(data, &bands); err != nil {
		return err
	}
	for _, band := range bands {
		if band.Band >= 0 && band.Band < len(e) {
			e[band.Band] = band.Gain
		}
	}
	return nil
}

// EqBand is a single equalizer band.
type EqBand struct {
	Band int     `json:"band"`
	Gain float64 `json:"gain"`
}

type Karaoke struct {
	Level       float64 `json:"level"`
	MonoLevel   float64 `json:"monoLevel"`
	FilterBand  float64 `json:"filterBand"`
	FilterWidth float64 `json:"filterWidth"`
}

type Timescale struct {
	Speed float64 `json:"speed"`
	Pitch float64 `json:"pitch"`
	Rate  float64 `json:"rate"`
}

type Tremolo struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

type Vibrato struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

type Rotation struct {
	RotationHz float64 `json:"rotationHz"`
}

type Distortion struct {
	SinOffset float64 `json:"sinOffset"`
	SinScale  float64 `json:"sinScale"`
	CosOffset float64 `json:"cosOffset"`
	CosScale  float64 `json:"cosScale"`
	TanOffset float64 `json:"tanOffset"`
	TanScale  float64 `json:"tanScale"`
	Offset    float64 `json:"offset"`
	Scale     float64 `json:"scale"`
}

type ChannelMix struct {
	LeftToLeft   float64 `json:"leftToLeft"`
	LeftToRight  float64 `json:"leftToRight"`
	RightToLeft  float64 `json:"rightToLeft"`
	RightToRight float64 `json:"rightToRight"`
}

type LowPass struct {
	Smoothing float64 `json:"smoothing"`
}
