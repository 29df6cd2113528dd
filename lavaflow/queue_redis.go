package lavaflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lavaflow/lavaflow/lavalink"
)

// RedisQueueOptions configures the redis queue backend.
type RedisQueueOptions struct {
	Addr              string
	Password          string
	DB                int
	Prefix            string
	MaxPreviousTracks int

	// Client overrides Addr/Password/DB with a caller-owned client, which
	// is then not closed by the queue.
	Client *redis.Client
}

// RedisQueue stores the queue in redis lists so state survives restarts
// and can be shared across processes. Keys follow
// "<prefix>:queue:<guildId>:{current|previous|tracks}".
type RedisQueue struct {
	guildID    snowflake.ID
	client     *redis.Client
	ownsClient bool

	keyCurrent  string
	keyPrevious string
	keyTracks   string

	maxPrevious int

	mu       sync.Mutex
	onChange func(QueueAction)
	rand     *rand.Rand
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue creates a redis-backed queue for the guild.
func NewRedisQueue(guildID snowflake.ID, options RedisQueueOptions) (*RedisQueue, error) {
	if options.Prefix == "" {
		options.Prefix = "lavaflow"
	}
	if options.MaxPreviousTracks <= 0 {
		options.MaxPreviousTracks = 20
	}

	client := options.Client
	ownsClient := false
	if client == nil {
		if options.Addr == "" {
			return nil, newError(ErrInvalidConfig, "redis address is required for the redis queue backend")
		}
		client = redis.NewClient(&redis.Options{
			Addr:     options.Addr,
			Password: options.Password,
			DB:       options.DB,
		})
		ownsClient = true
	}

	base := fmt.Sprintf("%s:queue:%s", options.Prefix, guildID)
	return &RedisQueue{
		guildID:     guildID,
		client:      client,
		ownsClient:  ownsClient,
		keyCurrent:  base + ":current",
		keyPrevious: base + ":previous",
		keyTracks:   base + ":tracks",
		maxPrevious: options.MaxPreviousTracks,
	}, nil
}

func (q *RedisQueue) GuildID() snowflake.ID {
	return q.guildID
}

func (q *RedisQueue) OnChange(fn func(action QueueAction)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = fn
}

func (q *RedisQueue) notify(action QueueAction) {
	q.mu.Lock()
	fn := q.onChange
	q.mu.Unlock()
	if fn != nil {
		fn(action)
	}
}

func (q *RedisQueue) intn(n int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.rand != nil {
		return q.rand.Intn(n)
	}
	return rand.Intn(n)
}

func (q *RedisQueue) readList(ctx context.Context, key string) ([]Track, error) {
	values, err := q.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, wrapError(ErrRESTRequestFailed, err, "failed to read %s", key)
	}
	tracks := make([]Track, 0, len(values))
	for _, value := range values {
		var track Track
		if err := json.Unmarshal([]byte(value), &track); err != nil {
			return nil, wrapError(ErrInvalidState, err, "corrupt track in %s", key)
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

func (q *RedisQueue) writeList(ctx context.Context, key string, tracks []Track) error {
	pipe := q.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(tracks) > 0 {
		values := make([]any, 0, len(tracks))
		for _, track := range tracks {
			data, err := json.Marshal(track)
			if err != nil {
				return err
			}
			values = append(values, string(data))
		}
		pipe.RPush(ctx, key, values...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return wrapError(ErrRESTRequestFailed, err, "failed to write %s", key)
	}
	return nil
}

func (q *RedisQueue) Current(ctx context.Context) (*Track, error) {
	value, err := q.client.Get(ctx, q.keyCurrent).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError(ErrRESTRequestFailed, err, "failed to read current track")
	}
	var track Track
	if err := json.Unmarshal([]byte(value), &track); err != nil {
		return nil, wrapError(ErrInvalidState, err, "corrupt current track")
	}
	return &track, nil
}

func (q *RedisQueue) SetCurrent(ctx context.Context, track *Track) error {
	if track == nil {
		if err := q.client.Del(ctx, q.keyCurrent).Err(); err != nil {
			return wrapError(ErrRESTRequestFailed, err, "failed to clear current track")
		}
		return nil
	}
	data, err := json.Marshal(track)
	if err != nil {
		return err
	}
	if err := q.client.Set(ctx, q.keyCurrent, string(data), 0).Err(); err != nil {
		return wrapError(ErrRESTRequestFailed, err, "failed to set current track")
	}
	return nil
}

func (q *RedisQueue) Previous(ctx context.Context) ([]Track, error) {
	return q.readList(ctx, q.keyPrevious)
}

// AddPrevious pushes to the head of the previous stack. Unlike the
// in-process backend, no identifier dedup is applied here.
func (q *RedisQueue) AddPrevious(ctx context.Context, tracks ...Track) error {
	if len(tracks) == 0 {
		return nil
	}
	values := make([]any, 0, len(tracks))
	// LPush prepends in argument order, so pushing [a, b] yields [b, a];
	// reverse to keep the first argument on top.
	for i := len(tracks) - 1; i >= 0; i-- {
		data, err := json.Marshal(tracks[i])
		if err != nil {
			return err
		}
		values = append(values, string(data))
	}
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.keyPrevious, values...)
	pipe.LTrim(ctx, q.keyPrevious, 0, int64(q.maxPrevious-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return wrapError(ErrRESTRequestFailed, err, "failed to push previous track")
	}
	return nil
}

func (q *RedisQueue) SetPrevious(ctx context.Context, tracks []Track) error {
	if len(tracks) > q.maxPrevious {
		tracks = tracks[:q.maxPrevious]
	}
	return q.writeList(ctx, q.keyPrevious, tracks)
}

func (q *RedisQueue) PopPrevious(ctx context.Context) (*Track, error) {
	value, err := q.client.LPop(ctx, q.keyPrevious).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError(ErrRESTRequestFailed, err, "failed to pop previous track")
	}
	var track Track
	if err := json.Unmarshal([]byte(value), &track); err != nil {
		return nil, wrapError(ErrInvalidState, err, "corrupt previous track")
	}
	return &track, nil
}

func (q *RedisQueue) ClearPrevious(ctx context.Context) error {
	if err := q.client.Del(ctx, q.keyPrevious).Err(); err != nil {
		return wrapError(ErrRESTRequestFailed, err, "failed to clear previous tracks")
	}
	return nil
}

func (q *RedisQueue) Size(ctx context.Context) (int, error) {
	size, err := q.client.LLen(ctx, q.keyTracks).Result()
	if err != nil {
		return 0, wrapError(ErrRESTRequestFailed, err, "failed to read queue size")
	}
	return int(size), nil
}

func (q *RedisQueue) TotalSize(ctx context.Context) (int, error) {
	size, err := q.Size(ctx)
	if err != nil {
		return 0, err
	}
	current, err := q.Current(ctx)
	if err != nil {
		return 0, err
	}
	if current != nil {
		size++
	}
	return size, nil
}

func (q *RedisQueue) Duration(ctx context.Context) (lavalink.Duration, error) {
	var total lavalink.Duration
	current, err := q.Current(ctx)
	if err != nil {
		return 0, err
	}
	if current != nil {
		total += current.Duration
	}
	tracks, err := q.readList(ctx, q.keyTracks)
	if err != nil {
		return 0, err
	}
	for _, track := range tracks {
		total += track.Duration
	}
	return total, nil
}

func (q *RedisQueue) Add(ctx context.Context, tracks []Track, offset *int) error {
	if len(tracks) == 0 {
		return nil
	}

	if offset != nil {
		upcoming, err := q.readList(ctx, q.keyTracks)
		if err != nil {
			return err
		}
		if *offset < 0 || *offset > len(upcoming) {
			return newError(ErrInvalidArgument, "add offset %d out of range [0, %d]", *offset, len(upcoming))
		}
		if err := q.writeList(ctx, q.keyTracks, splice(upcoming, *offset, 0, tracks...)); err != nil {
			return err
		}
		q.notify(QueueActionAdd)
		return nil
	}

	current, err := q.Current(ctx)
	if err != nil {
		return err
	}
	if current == nil {
		if err := q.SetCurrent(ctx, &tracks[0]); err != nil {
			return err
		}
		tracks = tracks[1:]
	}
	if len(tracks) > 0 {
		values := make([]any, 0, len(tracks))
		for _, track := range tracks {
			data, err := json.Marshal(track)
			if err != nil {
				return err
			}
			values = append(values, string(data))
		}
		if err := q.client.RPush(ctx, q.keyTracks, values...).Err(); err != nil {
			return wrapError(ErrRESTRequestFailed, err, "failed to append tracks")
		}
	}
	q.notify(QueueActionAdd)
	return nil
}

func (q *RedisQueue) AddAutoplay(ctx context.Context, track Track) error {
	current, err := q.Current(ctx)
	if err != nil {
		return err
	}
	if current == nil {
		if err := q.SetCurrent(ctx, &track); err != nil {
			return err
		}
	} else {
		data, err := json.Marshal(track)
		if err != nil {
			return err
		}
		if err := q.client.RPush(ctx, q.keyTracks, string(data)).Err(); err != nil {
			return wrapError(ErrRESTRequestFailed, err, "failed to append autoplay track")
		}
	}
	q.notify(QueueActionAutoplayAdd)
	return nil
}

func (q *RedisQueue) Remove(ctx context.Context, start, end int) ([]Track, error) {
	upcoming, err := q.readList(ctx, q.keyTracks)
	if err != nil {
		return nil, err
	}
	if start < 0 || start >= end || start >= len(upcoming) {
		return nil, newError(ErrOutOfRange, "remove range [%d, %d) invalid for queue of size %d", start, end, len(upcoming))
	}
	if end > len(upcoming) {
		end = len(upcoming)
	}
	removed := make([]Track, end-start)
	copy(removed, upcoming[start:end])
	if err := q.writeList(ctx, q.keyTracks, append(upcoming[:start:start], upcoming[end:]...)); err != nil {
		return nil, err
	}
	q.notify(QueueActionRemove)
	return removed, nil
}

func (q *RedisQueue) Clear(ctx context.Context) error {
	if err := q.client.Del(ctx, q.keyTracks).Err(); err != nil {
		return wrapError(ErrRESTRequestFailed, err, "failed to clear queue")
	}
	q.notify(QueueActionClear)
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Track, error) {
	value, err := q.client.LPop(ctx, q.keyTracks).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError(ErrRESTRequestFailed, err, "failed to dequeue track")
	}
	var track Track
	if err := json.Unmarshal([]byte(value), &track); err != nil {
		return nil, wrapError(ErrInvalidState, err, "corrupt queued track")
	}
	return &track, nil
}

func (q *RedisQueue) EnqueueFront(ctx context.Context, tracks ...Track) error {
	if len(tracks) == 0 {
		return nil
	}
	values := make([]any, 0, len(tracks))
	for i := len(tracks) - 1; i >= 0; i-- {
		data, err := json.Marshal(tracks[i])
		if err != nil {
			return err
		}
		values = append(values, string(data))
	}
	if err := q.client.LPush(ctx, q.keyTracks, values...).Err(); err != nil {
		return wrapError(ErrRESTRequestFailed, err, "failed to enqueue tracks")
	}
	q.notify(QueueActionAdd)
	return nil
}

func (q *RedisQueue) Tracks(ctx context.Context) ([]Track, error) {
	return q.readList(ctx, q.keyTracks)
}

func (q *RedisQueue) Slice(ctx context.Context, start, end int) ([]Track, error) {
	upcoming, err := q.readList(ctx, q.keyTracks)
	if err != nil {
		return nil, err
	}
	if start < 0 || start > end || start > len(upcoming) {
		return nil, newError(ErrOutOfRange, "slice range [%d, %d) invalid for queue of size %d", start, end, len(upcoming))
	}
	if end > len(upcoming) {
		end = len(upcoming)
	}
	return upcoming[start:end], nil
}

func (q *RedisQueue) ModifyAt(ctx context.Context, start, deleteCount int, items ...Track) ([]Track, error) {
	upcoming, err := q.readList(ctx, q.keyTracks)
	if err != nil {
		return nil, err
	}
	if start < 0 || start > len(upcoming) || deleteCount < 0 {
		return nil, newError(ErrOutOfRange, "modify at %d (delete %d) invalid for queue of size %d", start, deleteCount, len(upcoming))
	}
	if start+deleteCount > len(upcoming) {
		deleteCount = len(upcoming) - start
	}
	deleted := make([]Track, deleteCount)
	copy(deleted, upcoming[start:start+deleteCount])
	if err := q.writeList(ctx, q.keyTracks, splice(upcoming, start, deleteCount, items...)); err != nil {
		return nil, err
	}
	q.notify(QueueActionRemove)
	return deleted, nil
}

func (q *RedisQueue) shuffleTracks(tracks []Track) {
	for i := len(tracks) - 1; i > 0; i-- {
		j := q.intn(i + 1)
		tracks[i], tracks[j] = tracks[j], tracks[i]
	}
}

func (q *RedisQueue) Shuffle(ctx context.Context) error {
	upcoming, err := q.readList(ctx, q.keyTracks)
	if err != nil {
		return err
	}
	q.shuffleTracks(upcoming)
	if err := q.writeList(ctx, q.keyTracks, upcoming); err != nil {
		return err
	}
	q.notify(QueueActionShuffle)
	return nil
}

func (q *RedisQueue) UserBlockShuffle(ctx context.Context) error {
	upcoming, err := q.readList(ctx, q.keyTracks)
	if err != nil {
		return err
	}
	if err := q.writeList(ctx, q.keyTracks, roundRobinTracks(upcoming, nil)); err != nil {
		return err
	}
	q.notify(QueueActionUserBlock)
	return nil
}

func (q *RedisQueue) RoundRobinShuffle(ctx context.Context) error {
	upcoming, err := q.readList(ctx, q.keyTracks)
	if err != nil {
		return err
	}
	if err := q.writeList(ctx, q.keyTracks, roundRobinTracks(upcoming, q.shuffleTracks)); err != nil {
		return err
	}
	q.notify(QueueActionRoundRobin)
	return nil
}

func (q *RedisQueue) MapAsync(ctx context.Context, fn func(ctx context.Context, track Track) (Track, error)) ([]Track, error) {
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

func (q *RedisQueue) FilterAsync(ctx context.Context, fn func(ctx context.Context, track Track) (bool, error)) ([]Track, error) {
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

func (q *RedisQueue) FindAsync(ctx context.Context, fn func(ctx context.Context, track Track) (bool, error)) (*Track, error) {
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

func (q *RedisQueue) SomeAsync(ctx context.Context, fn func(ctx context.Context, track Track) (bool, error)) (bool, error) {
	track, err := q.FindAsync(ctx, fn)
	if err != nil {
		return false, err
	}
	return track != nil, nil
}

func (q *RedisQueue) EveryAsync(ctx context.Context, fn func(ctx context.Context, track Track) (bool, error)) (bool, error) {
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

func (q *RedisQueue) Close(ctx context.Context) error {
	err := q.client.Del(ctx, q.keyCurrent, q.keyPrevious, q.keyTracks).Err()
	if q.ownsClient {
		if closeErr := q.client.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		return wrapError(ErrRESTRequestFailed, err, "failed to close redis queue")
	}
	return nil
}

// roundRobinTracks groups tracks by requester preserving per-group order
// and interleaves one track per group. A non-nil shuffleGroup shuffles
// each group before interleaving.
func roundRobinTracks(tracks []Track, shuffleGroup func([]Track)) []Track {
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
	if shuffleGroup != nil {
		for _, id := range order {
			shuffleGroup(groups[id])
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
