package lavaflow

import (
	"context"
	"sync"

	"github.com/lavaflow/lavaflow/lavalink"
)

// FilterPreset names a built-in effect toggle tracked by the facade.
type FilterPreset string

const (
	PresetCustomEqualizer FilterPreset = "customEqualizer"
	PresetNightcore       FilterPreset = "nightcore"
	PresetVaporwave       FilterPreset = "vaporwave"
	PresetKaraoke         FilterPreset = "karaoke"
	PresetRotation        FilterPreset = "rotation"
	PresetTremolo         FilterPreset = "tremolo"
	PresetVibrato         FilterPreset = "vibrato"
	PresetLowPass         FilterPreset = "lowPass"
)

// Filters accumulates effect parameters for one player and pushes them to
// the node as a single player update per change. Setters with a nil value
// clear the field and its preset flag. With updates suspended, setters
// only accumulate; Apply flushes the accumulated state in one call.
type Filters struct {
	player *Player

	mu      sync.Mutex
	filters lavalink.Filters
	status  map[FilterPreset]bool
	suspend bool
}

func newFilters(player *Player) *Filters {
	return &Filters{
		player: player,
		status: map[FilterPreset]bool{},
	}
}

// Current returns a copy of the accumulated filter payload.
func (f *Filters) Current() lavalink.Filters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters
}

// Enabled reports whether the preset flag is set.
func (f *Filters) Enabled(preset FilterPreset) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[preset]
}

// SuspendUpdates stops setters from issuing player updates until Apply is
// called.
func (f *Filters) SuspendUpdates(suspend bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suspend = suspend
}

// Apply pushes the accumulated filter state to the node in one call.
func (f *Filters) Apply(ctx context.Context) error {
	f.mu.Lock()
	filters := f.filters
	f.mu.Unlock()
	return f.push(ctx, filters)
}

func (f *Filters) push(ctx context.Context, filters lavalink.Filters) error {
	old := f.player.Snapshot()
	if err := f.player.update(ctx, lavalink.WithFilters(filters)); err != nil {
		return err
	}
	f.player.emitStateUpdate(old, StateChange{Type: ChangeFilter})
	return nil
}

// set mutates the accumulated state and pushes it unless suspended.
func (f *Filters) set(ctx context.Context, mutate func(filters *lavalink.Filters)) error {
	f.mu.Lock()
	mutate(&f.filters)
	filters := f.filters
	suspended := f.suspend
	f.mu.Unlock()

	if suspended {
		return nil
	}
	return f.push(ctx, filters)
}

func (f *Filters) setStatus(preset FilterPreset, enabled bool) {
	f.mu.Lock()
	f.status[preset] = enabled
	f.mu.Unlock()
}

func (f *Filters) SetVolume(ctx context.Context, volume *lavalink.Volume) error {
	if volume != nil && (*volume < 0 || *volume > 5) {
		return newError(ErrInvalidFilter, "filter volume %v out of range [0, 5]", *volume)
	}
	return f.set(ctx, func(filters *lavalink.Filters) {
		filters.Volume = volume
	})
}

func (f *Filters) SetEqualizer(ctx context.Context, equalizer *lavalink.Equalizer) error {
	if equalizer != nil {
		for band, gain := range equalizer {
			if gain < -0.25 || gain > 1.0 {
				return newError(ErrInvalidFilter, "equalizer band %d gain %v out of range [-0.25, 1.0]", band, gain)
			}
		}
	}
	f.setStatus(PresetCustomEqualizer, equalizer != nil)
	return f.set(ctx, func(filters *lavalink.Filters) {
		filters.Equalizer = equalizer
	})
}

func (f *Filters) SetKaraoke(ctx context.Context, karaoke *lavalink.Karaoke) error {
	f.setStatus(PresetKaraoke, karaoke != nil)
	return f.set(ctx, func(filters *lavalink.Filters) {
		filters.Karaoke = karaoke
	})
}

func (f *Filters) SetTimescale(ctx context.Context, timescale *lavalink.Timescale) error {
	return f.set(ctx, func(filters *lavalink.Filters) {
		filters.Timescale = timescale
	})
}

func (f *Filters) SetTremolo(ctx context.Context, tremolo *lavalink.Tremolo) error {
	f.setStatus(PresetTremolo, tremolo != nil)
	return f.set(ctx, func(filters *lavalink.Filters) {
		filters.Tremolo = tremolo
	})
}

func (f *Filters) SetVibrato(ctx context.Context, vibrato *lavalink.Vibrato) error {
	f.setStatus(PresetVibrato, vibrato != nil)
	return f.set(ctx, func(filters *lavalink.Filters) {
		filters.Vibrato = vibrato
	})
}

func (f *Filters) SetRotation(ctx context.Context, rotation *lavalink.Rotation) error {
	f.setStatus(PresetRotation, rotation != nil)
	return f.set(ctx, func(filters *lavalink.Filters) {
		filters.Rotation = rotation
	})
}

func (f *Filters) SetDistortion(ctx context.Context, distortion *lavalink.Distortion) error {
	return f.set(ctx, func(filters *lavalink.Filters) {
		filters.Distortion = distortion
	})
}

func (f *Filters) SetChannelMix(ctx context.Context, channelMix *lavalink.ChannelMix) error {
	return f.set(ctx, func(filters *lavalink.Filters) {
		filters.ChannelMix = channelMix
	})
}

func (f *Filters) SetLowPass(ctx context.Context, lowPass *lavalink.LowPass) error {
	f.setStatus(PresetLowPass, lowPass != nil)
	return f.set(ctx, func(filters *lavalink.Filters) {
		filters.LowPass = lowPass
	})
}

// SetNightcore speeds up and pitches up playback through the timescale
// filter. Disabling clears the timescale.
func (f *Filters) SetNightcore(ctx context.Context, enabled bool) error {
	f.setStatus(PresetNightcore, enabled)
	if enabled {
		f.setStatus(PresetVaporwave, false)
	}
	var timescale *lavalink.Timescale
	if enabled {
		timescale = &lavalink.Timescale{Speed: 1.125, Pitch: 1.125, Rate: 1}
	}
	return f.set(ctx, func(filters *lavalink.Filters) {
		filters.Timescale = timescale
	})
}

// SetVaporwave slows down and pitches down playback through the timescale
// filter. Disabling clears the timescale.
func (f *Filters) SetVaporwave(ctx context.Context, enabled bool) error {
	f.setStatus(PresetVaporwave, enabled)
	if enabled {
		f.setStatus(PresetNightcore, false)
	}
	var timescale *lavalink.Timescale
	if enabled {
		timescale = &lavalink.Timescale{Speed: 0.85, Pitch: 0.85, Rate: 1}
	}
	return f.set(ctx, func(filters *lavalink.Filters) {
		filters.Timescale = timescale
	})
}

// Clear resets every filter and preset flag and issues one player update.
func (f *Filters) Clear(ctx context.Context) error {
	f.mu.Lock()
	f.filters = lavalink.Filters{}
	f.status = map[FilterPreset]bool{}
	f.mu.Unlock()
	return f.push(ctx, lavalink.Filters{})
}
