package lavaflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/lavaflow/lavaflow/lavalink"
)

// eventTimeout bounds the queue and REST work done while handling one
// node-pushed event.
const eventTimeout = 10 * time.Second

// handleNodeEvent routes an `op: event` frame to the owning player and
// runs the playback follow-up. Unknown guilds only emit the raw event.
func (m *Manager) handleNodeEvent(node *Node, event lavalink.Event) {
	player := m.ExistingPlayer(event.GuildID())
	if player == nil {
		m.logger.Debug("event for unknown player",
			slog.String("type", string(event.Type())),
			slog.String("guild_id", event.GuildID().String()),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch e := event.(type) {
	case lavalink.TrackStartEvent:
		player.handleTrackStart(ctx)
	case lavalink.TrackEndEvent:
		player.handleTrackEnd(ctx, e.Reason)
	case lavalink.TrackStuckEvent:
		player.handleTrackStuck(ctx, e.Threshold)
	case lavalink.TrackExceptionEvent:
		player.handleTrackException(ctx, e.Exception)
	case lavalink.WebSocketClosedEvent:
		m.Events.SocketClosed.Emit(SocketClosedEvent{
			Player:   player,
			Code:     e.Code,
			Reason:   e.Reason,
			ByRemote: e.ByRemote,
		})
	case lavalink.SegmentsLoadedEvent:
		m.Events.SegmentsLoaded.Emit(SegmentsLoadedEvent{Player: player, Segments: e.Segments})
	case lavalink.SegmentSkippedEvent:
		m.Events.SegmentSkipped.Emit(SegmentSkippedEvent{Player: player, Segment: e.Segment})
	case lavalink.ChaptersLoadedEvent:
		m.Events.ChaptersLoaded.Emit(ChaptersLoadedEvent{Player: player, Chapters: e.Chapters})
	case lavalink.ChapterStartedEvent:
		m.Events.ChapterStarted.Emit(ChapterStartedEvent{Player: player, Chapter: e.Chapter})
	}
}

func (p *Player) handleTrackStart(ctx context.Context) {
	p.mu.Lock()
	p.playing = true
	p.position = 0
	p.mu.Unlock()

	current, err := p.queue.Current(ctx)
	if err != nil || current == nil {
		return
	}
	p.manager.Events.TrackStart.Emit(TrackStartEvent{Player: p, Track: *current})
}

func (p *Player) handleTrackStuck(ctx context.Context, threshold lavalink.Duration) {
	current, _ := p.queue.Current(ctx)
	p.manager.Events.TrackStuck.Emit(TrackStuckEvent{Player: p, Track: current, Threshold: threshold})
}

func (p *Player) handleTrackException(ctx context.Context, exception lavalink.Exception) {
	current, _ := p.queue.Current(ctx)
	p.manager.Events.TrackError.Emit(TrackErrorEvent{Player: p, Track: current, Exception: exception})
}

// consumeSkipFlag reads and clears the skip flag set by Previous.
func (p *Player) consumeSkipFlag() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, set := p.data[DataKeySkipFlag]
	delete(p.data, DataKeySkipFlag)
	return set
}

// handleTrackEnd runs the advance decision tree for one track end frame.
// Branch order matters; a stop only counts as queue end when the rotation
// left nothing to play.
func (p *Player) handleTrackEnd(ctx context.Context, reason lavalink.TrackEndReason) {
	current, err := p.queue.Current(ctx)
	if err != nil {
		p.logger.Warn("failed to read current track on track end", slog.Any("err", err))
		return
	}
	skip := p.consumeSkipFlag()
	playNext := *p.manager.options.PlayNextOnEnd

	p.mu.Lock()
	trackRepeat := p.trackRepeat
	queueRepeat := p.queueRepeat || p.dynamicRepeat
	p.mu.Unlock()

	switch {
	case reason == lavalink.TrackEndReasonLoadFailed || reason == lavalink.TrackEndReasonCleanup:
		if current != nil && !skip {
			p.pushPrevious(ctx, *current)
		}
		next := p.advance(ctx)
		if next == nil {
			p.queueEnd(ctx, current)
			return
		}
		p.emitTrackEnd(current, reason)
		if playNext {
			p.playNext(ctx)
		}

	case reason == lavalink.TrackEndReasonReplaced:
		p.emitTrackEnd(current, reason)
		if current != nil && !skip {
			p.pushPrevious(ctx, *current)
		}

	case current != nil && trackRepeat:
		if err := p.queue.EnqueueFront(ctx, *current); err != nil {
			p.logger.Warn("failed to rotate track repeat", slog.Any("err", err))
		}
		p.rotateAndMaybePlay(ctx, current, reason, skip, playNext)

	case current != nil && queueRepeat:
		size, _ := p.queue.Size(ctx)
		if err := p.queue.Add(ctx, []Track{*current}, &size); err != nil {
			p.logger.Warn("failed to rotate queue repeat", slog.Any("err", err))
		}
		p.rotateAndMaybePlay(ctx, current, reason, skip, playNext)

	default:
		size, err := p.queue.Size(ctx)
		if err != nil {
			p.logger.Warn("failed to read queue size on track end", slog.Any("err", err))
			return
		}
		if current != nil && !skip {
			p.pushPrevious(ctx, *current)
		}
		if size > 0 {
			p.advance(ctx)
			p.emitTrackEnd(current, reason)
			if playNext {
				p.playNext(ctx)
			}
			return
		}
		p.queueEnd(ctx, current)
	}
}

// rotateAndMaybePlay is the shared tail of the repeat branches: move the
// outgoing track to previous, shift the next one in, emit trackEnd, then
// either start playback or report queue end for a stop with nothing next.
func (p *Player) rotateAndMaybePlay(ctx context.Context, current *Track, reason lavalink.TrackEndReason, skip bool, playNext bool) {
	if current != nil && !skip {
		p.pushPrevious(ctx, *current)
	}
	next := p.advance(ctx)
	p.emitTrackEnd(current, reason)
	if reason == lavalink.TrackEndReasonStopped && next == nil {
		p.queueEnd(ctx, current)
		return
	}
	if playNext {
		p.playNext(ctx)
	}
}

func (p *Player) pushPrevious(ctx context.Context, track Track) {
	if err := p.queue.AddPrevious(ctx, track); err != nil {
		p.logger.Warn("failed to push previous track", slog.Any("err", err))
	}
}

// advance shifts the first upcoming track into current and returns it.
func (p *Player) advance(ctx context.Context) *Track {
	next, err := p.queue.Dequeue(ctx)
	if err != nil {
		p.logger.Warn("failed to dequeue next track", slog.Any("err", err))
		return nil
	}
	if err := p.queue.SetCurrent(ctx, next); err != nil {
		p.logger.Warn("failed to set current track", slog.Any("err", err))
		return nil
	}
	return next
}

func (p *Player) emitTrackEnd(track *Track, reason lavalink.TrackEndReason) {
	p.manager.Events.TrackEnd.Emit(TrackEndEvent{Player: p, Track: track, Reason: reason})
}

func (p *Player) playNext(ctx context.Context) {
	if err := p.Play(ctx, nil, PlayOptions{}); err != nil {
		p.logger.Warn("failed to start next track", slog.Any("err", err))
	}
}

// queueEnd handles queue exhaustion: with autoplay on, the recommender
// gets a bounded number of attempts to refill the queue; otherwise, or
// when every attempt fails, playback stops and QueueEnd is emitted.
func (p *Player) queueEnd(ctx context.Context, finished *Track) {
	if err := p.queue.SetCurrent(ctx, nil); err != nil {
		p.logger.Warn("failed to clear current track", slog.Any("err", err))
	}

	p.mu.Lock()
	autoplay := p.autoplay
	tries := p.autoplayTries
	p.mu.Unlock()

	if autoplay && finished != nil {
		for attempt := 0; attempt < tries; attempt++ {
			track, err := p.manager.recommend(ctx, p, *finished)
			if err != nil {
				p.logger.Debug("autoplay attempt failed", slog.Int("attempt", attempt+1), slog.Any("err", err))
				continue
			}
			if track == nil {
				continue
			}
			if err := p.queue.AddAutoplay(ctx, *track); err != nil {
				p.logger.Warn("failed to add autoplay track", slog.Any("err", err))
				continue
			}
			p.playNext(ctx)
			return
		}
	}

	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
	p.manager.Events.QueueEnd.Emit(QueueEndEvent{Player: p, Track: finished})
}
