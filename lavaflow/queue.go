package lavaflow

import (
	"context"
	"math/rand"
	"sync"

	"github.com/disgoorg/snowflake/v2"

	"github.com/lavaflow/lavaflow/lavalink"
)

// QueueAction tags a queue mutation that changed ordering. Each such
// mutation produces exactly one QueueChange state update on the player.
type QueueAction string

const (
	QueueActionAdd         QueueAction = "add"
	QueueActionRemove      QueueAction = "remove"
	QueueActionClear       QueueAction = "clear"
	QueueActionShuffle     QueueAction = "shuffle"
	QueueActionRoundRobin  QueueAction = "roundRobin"
	QueueActionUserBlock   QueueAction = "userBlock"
	QueueActionAutoplayAdd QueueAction = "autoPlayAdd"
)

// Queue is the ordered track store of one player. A queue belongs to
// exactly one guild for its lifetime. Implementations backed by external
// stores may suspend on every call; the context bounds that work.
type Queue interface {
	GuildID() snowflake.ID

	Current(ctx context.Context) (*Track, error)
	SetCurrent(ctx context.Context, track *Track) error

	Previous(ctx context.Context) ([]Track, error)
	AddPrevious(ctx context.Context, tracks ...Track) error
	SetPrevious(ctx context.Context, tracks []Track) error
	PopPrevious(ctx context.Context) (*Track, error)
	ClearPrevious(ctx context.Context) error

	// Size is the number of upcoming tracks; TotalSize adds the current
	// track when set. Duration sums current plus upcoming.
	Size(ctx context.Context) (int, error)
	TotalSize(ctx context.Context) (int, error)
	Duration(ctx context.Context) (lavalink.Duration, error)

	// Add appends tracks. When no current track is set and offset is nil,
	// the first track becomes current. A non-nil offset splices the
	// tracks into the upcoming list at that index.
	Add(ctx context.Context, tracks []Track, offset *int) error
	// AddAutoplay appends a recommender-provided track, tagged so state
	// update consumers can tell it apart from user adds.
	AddAutoplay(ctx context.Context, track Track) error
	// Remove deletes the half-open range [start, end) from upcoming and
	// returns the removed tracks.
	Remove(ctx context.Context, start, end int) ([]Track, error)
	Clear(ctx context.Context) error
	// Dequeue removes and returns the first upcoming track.
	Dequeue(ctx context.Context) (*Track, error)
	EnqueueFront(ctx context.Context, tracks ...Track) error

	Tracks(ctx context.Context) ([]Track, error)
	Slice(ctx context.Context, start, end int) ([]Track, error)
	// ModifyAt deletes deleteCount tracks at start and inserts items in
	// their place, returning the deleted tracks.
	ModifyAt(ctx context.Context, start, deleteCount int, items ...Track) ([]Track, error)

	Shuffle(ctx context.Context) error
	UserBlockShuffle(ctx context.Context) error
	RoundRobinShuffle(ctx context.Context) error

	MapAsync(ctx context.Context, fn func(ctx context.Context, track Track) (Track, error)) ([]Track, error)
	FilterAsync(ctx context.Context, fn func(ctx context.Context, track Track) (bool, error)) ([]Track, error)
	FindAsync(ctx context.Context, fn func(ctx context.Context, track Track) (bool, error)) (*Track, error)
	SomeAsync(ctx context.Context, fn func(ctx context.Context, track Track) (bool, error)) (bool, error)
	EveryAsync(ctx context.Context, fn func(ctx context.Context, track Track) (bool, error)) (bool, error)

	// OnChange registers the single mutation observer; the player uses it
	// to emit QueueChange state updates.
	OnChange(fn func(action QueueAction))

	// Close releases backend resources. The queue is unusable afterwards.
	Close(ctx context.Context) error
}

// NewQueue builds a queue for the given backend kind.
func NewQueue(kind StateStorageKind, guildID snowflake.ID, options ManagerOptions) (Queue, error) {
	switch kind {
	case StateStorageMemory, "":
		return NewMemoryQueue(guildID, options.MaxPreviousTracks), nil
	case StateStorageJSON:
		return NewFileQueue(guildID, options.StateDir, options.MaxPreviousTracks)
	case StateStorageRedis:
		return NewRedisQueue(guildID, RedisQueueOptions{
			Addr:              options.RedisAddr,
			Password:          options.RedisPassword,
			DB:                options.RedisDB,
			Prefix:            options.RedisPrefix,
			MaxPreviousTracks: options.MaxPreviousTracks,
		})
	default:
		return nil, newError(ErrInvalidConfig, "unknown state storage %q", kind)
	}
}

// MemoryQueue is the in-process queue backend.
type MemoryQueue struct {
	guildID snowflake.ID

	mu       sync.Mutex
	current  *Track
	upcoming []Track
	previous []Track

	maxPrevious int
	onChange    func(QueueAction)
	rand        *rand.Rand
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an empty in-process queue for the guild.
func NewMemoryQueue(guildID snowflake.ID, maxPrevious int) *MemoryQueue {
	if maxPrevious <= 0 {
		maxPrevious = 20
	}
	return &MemoryQueue{
		guildID:     guildID,
		maxPrevious: maxPrevious,
	}
}

func (q *MemoryQueue) GuildID() snowflake.ID {
	return q.guildID
}

func (q *MemoryQueue) OnChange(fn func(action QueueAction)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = fn
}

// setRand overrides the shuffle source for deterministic tests.
func (q *MemoryQueue) setRand(r *rand.Rand) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rand = r
}

func (q *MemoryQueue) intn(n int) int {
	if q.rand != nil {
		return q.rand.Intn(n)
	}
	return rand.Intn(n)
}

func (q *MemoryQueue) notify(action QueueAction) {
	if q.onChange != nil {
		q.onChange(action)
	}
}

func (q *MemoryQueue) Current(context.Context) (*Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return nil, nil
	}
	track := *q.current
	return &track, nil
}

func (q *MemoryQueue) SetCurrent(_ context.Context, track *Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = track
	return nil
}

func (q *MemoryQueue) Previous(context.Context) ([]Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	previous := make([]Track, len(q.previous))
	copy(previous, q.previous)
	return previous, nil
}

func (q *MemoryQueue) AddPrevious(_ context.Context, tracks ...Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(tracks) - 1; i >= 0; i-- {
		q.pushPrevious(tracks[i])
	}
	return nil
}

// pushPrevious inserts at index 0, dropping identifier duplicates and
// trimming to the configured bound. Caller holds the lock.
func (q *MemoryQueue) pushPrevious(track Track) {
	for _, previous := range q.previous {
		if previous.Identifier != "" && previous.Identifier == track.Identifier {
			return
		}
	}
	q.previous = append([]Track{track}, q.previous...)
	if len(q.previous) > q.maxPrevious {
		q.previous = q.previous[:q.maxPrevious]
	}
}

func (q *MemoryQueue) SetPrevious(_ context.Context, tracks []Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.previous = make([]Track, len(tracks))
	copy(q.previous, tracks)
	if len(q.previous) > q.maxPrevious {
		q.previous = q.previous[:q.maxPrevious]
	}
	return nil
}

func (q *MemoryQueue) PopPrevious(context.Context) (*Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.previous) == 0 {
		return nil, nil
	}
	track := q.previous[0]
	q.previous = q.previous[1:]
	return &track, nil
}

func (q *MemoryQueue) ClearPrevious(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.previous = nil
	return nil
}

func (q *MemoryQueue) Size(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.upcoming), nil
}

func (q *MemoryQueue) TotalSize(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := len(q.upcoming)
	if q.current != nil {
		total++
	}
	return total, nil
}

func (q *MemoryQueue) Duration(context.Context) (lavalink.Duration, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var total lavalink.Duration
	if q.current != nil {
		total += q.current.Duration
	}
	for _, track := range q.upcoming {
		total += track.Duration
	}
	return total, nil
}

func (q *MemoryQueue) Add(_ context.Context, tracks []Track, offset *int) error {
	if len(tracks) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if offset != nil {
		if *offset < 0 || *offset > len(q.upcoming) {
			return newError(ErrInvalidArgument, "add offset %d out of range [0, %d]", *offset, len(q.upcoming))
		}
		q.upcoming = splice(q.upcoming, *offset, 0, tracks...)
		q.notify(QueueActionAdd)
		return nil
	}

	if q.current == nil {
		first := tracks[0]
		q.current = &first
		tracks = tracks[1:]
	}
	q.upcoming = append(q.upcoming, tracks...)
	q.notify(QueueActionAdd)
	return nil
}

func (q *MemoryQueue) AddAutoplay(_ context.Context, track Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		q.current = &track
	} else {
		q.upcoming = append(q.upcoming, track)
	}
	q.notify(QueueActionAutoplayAdd)
	return nil
}

func (q *MemoryQueue) Remove(_ context.Context, start, end int) ([]Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if start < 0 || start >= end || start >= len(q.upcoming) {
		return nil, newError(ErrOutOfRange, "remove range [%d, %d) invalid for queue of size %d", start, end, len(q.upcoming))
	}
	if end > len(q.upcoming) {
		end = len(q.upcoming)
	}
	removed := make([]Track, end-start)
	copy(removed, q.upcoming[start:end])
	q.upcoming = append(q.upcoming[:start], q.upcoming[end:]...)
	q.notify(QueueActionRemove)
	return removed, nil
}

func (q *MemoryQueue) Clear(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.upcoming = nil
	q.notify(QueueActionClear)
	return nil
}

func (q *MemoryQueue) Dequeue(context.Context) (*Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.upcoming) == 0 {
		return nil, nil
	}
	track := q.upcoming[0]
	q.upcoming = q.upcoming[1:]
	return &track, nil
}

func (q *MemoryQueue) EnqueueFront(_ context.Context, tracks ...Track) error {
	if len(tracks) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.upcoming = append(append([]Track{}, tracks...), q.upcoming...)
	q.notify(QueueActionAdd)
	return nil
}

func (q *MemoryQueue) Tracks(context.Context) ([]Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tracks := make([]Track, len(q.upcoming))
	copy(tracks, q.upcoming)
	return tracks, nil
}

func (q *MemoryQueue) Slice(_ context.Context, start, end int) ([]Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if start < 0 || start > end || start > len(q.upcoming) {
		return nil, newError(ErrOutOfRange, "slice range [%d, %d) invalid for queue of size %d", start, end, len(q.upcoming))
	}
	if end > len(q.upcoming) {
		end = len(q.upcoming)
	}
	tracks := make([]Track, end-start)
	copy(tracks, q.upcoming[start:end])
	return tracks, nil
}

func (q *MemoryQueue) ModifyAt(_ context.Context, start, deleteCount int, items ...Track) ([]Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if start < 0 || start > len(q.upcoming) || deleteCount < 0 {
		return nil, newError(ErrOutOfRange, "modify at %d (delete %d) invalid for queue of size %d", start, deleteCount, len(q.upcoming))
	}
	if start+deleteCount > len(q.upcoming) {
		deleteCount = len(q.upcoming) - start
	}
	deleted := make([]Track, deleteCount)
	copy(deleted, q.upcoming[start:start+deleteCount])
	q.upcoming = splice(q.upcoming, start, deleteCount, items...)
	q.notify(QueueActionRemove)
	return deleted, nil
}

// Shuffle permutes the upcoming tracks with a Fisher-Yates shuffle.
func (q *MemoryQueue) Shuffle(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuffleTracks(q.upcoming)
	q.notify(QueueActionShuffle)
	return nil
}

func (q *MemoryQueue) shuffleTracks(tracks []Track) {
	for i := len(tracks) - 1; i > 0; i-- {
		j := q.intn(i + 1)
		tracks[i], tracks[j] = tracks[j], tracks[i]
	}
}

// UserBlockShuffle reorders the upcoming tracks so that requesters take
// turns: tracks are grouped by requester preserving per-group order, then
// emitted one per group round-robin.
func (q *MemoryQueue) UserBlockShuffle(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.upcoming = q.roundRobin(q.upcoming, false)
	q.notify(QueueActionUserBlock)
	return nil
}

// RoundRobinShuffle is UserBlockShuffle with each requester's block
// shuffled before interleaving.
func (q *MemoryQueue) RoundRobinShuffle(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.upcoming = q.roundRobin(q.upcoming, true)
	q.notify(QueueActionRoundRobin)
	return nil
}

func (q *MemoryQueue) roundRobin(tracks []Track, shuffleGroups bool) []Track {
	if len(tracks) < 2 {
		return tracks
	}

	var order []snowflake.ID
	groups := map[snowflake.ID][]Track{}
	for _, track := range tracks {
		id := track.RequesterID()
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], track)
	}
	if shuffleGroups {
		for _, id := range order {
			q.shuffleTracks(groups[id])
		}
	}

	result := make([]Track, 0, len(tracks))
	for len(result) < len(tracks) {
		for _, id := range order {
			group := groups[id]
			if len(group) == 0 {
				continue
			}
			result = append(result, group[0])
			groups[id] = group[1:]
		}
	}
	return result
}

func (q *MemoryQueue) MapAsync(ctx context.Context, fn func(ctx context.Context, track Track) (Track, error)) ([]Track, error) {
	tracks, err := q.Tracks(ctx)
	if err != nil {
		return nil, err
	}
	mapped := make([]Track, 0, len(tracks))
	for _, track := range tracks {
		result, err := fn(ctx, track)
		if err != nil {
			return nil, err
		}
		mapped = append(mapped, result)
	}
	return mapped, nil
}

func (q *MemoryQueue) FilterAsync(ctx context.Context, fn func(ctx context.Context, track Track) (bool, error)) ([]Track, error) {
	tracks, err := q.Tracks(ctx)
	if err != nil {
		return nil, err
	}
	var filtered []Track
	for _, track := range tracks {
		keep, err := fn(ctx, track)
		if err != nil {
			return nil, err
		}
		if keep {
			filtered = append(filtered, track)
		}
	}
	return filtered, nil
}

func (q *MemoryQueue) FindAsync(ctx context.Context, fn func(ctx context.Context, track Track) (bool, error)) (*Track, error) {
	tracks, err := q.Tracks(ctx)
	if err != nil {
		return nil, err
	}
	for _, track := range tracks {
		found, err := fn(ctx, track)
		if err != nil {
			return nil, err
		}
		if found {
			return &track, nil
		}
	}
	return nil, nil
}

func (q *MemoryQueue) SomeAsync(ctx context.Context, fn func(ctx context.Context, track Track) (bool, error)) (bool, error) {
	track, err := q.FindAsync(ctx, fn)
	if err != nil {
		return false, err
	}
	return track != nil, nil
}

func (q *MemoryQueue) EveryAsync(ctx context.Context, fn func(ctx context.Context, track Track) (bool, error)) (bool, error) {
	tracks, err := q.Tracks(ctx)
	if err != nil {
		return false, err
	}
	for _, track := range tracks {
		ok, err := fn(ctx, track)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (q *MemoryQueue) Close(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = nil
	q.upcoming = nil
	q.previous = nil
	return nil
}

// splice removes deleteCount elements at start and inserts items there,
// mirroring the splice semantics queue consumers expect.
func splice(tracks []Track, start, deleteCount int, items ...Track) []Track {
	result := make([]Track, 0, len(tracks)-deleteCount+len(items))
	result = append(result, tracks[:start]...)
	result = append(result, items...)
	result = append(result, tracks[start+deleteCount:]...)
	return result
}
