package lavaflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
)

// queueFile is the on-disk shape of a persisted queue. Opaque pluginInfo
// and customData survive the round trip byte-identical.
type queueFile struct {
	Current  *Track  `json:"current"`
	Upcoming []Track `json:"upcoming"`
	Previous []Track `json:"previous"`
}

// FileQueue persists every mutation to one JSON file per guild under
// <stateDir>/queues. Reads are served from memory.
type FileQueue struct {
	*MemoryQueue
	path string
}

var _ Queue = (*FileQueue)(nil)

// NewFileQueue creates a JSON-file backed queue, loading any previously
// persisted state for the guild.
func NewFileQueue(guildID snowflake.ID, stateDir string, maxPrevious int) (*FileQueue, error) {
	dir := filepath.Join(stateDir, "queues")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapError(ErrInvalidConfig, err, "failed to create queue directory")
	}

	queue := &FileQueue{
		MemoryQueue: NewMemoryQueue(guildID, maxPrevious),
		path:        filepath.Join(dir, fmt.Sprintf("%s.json", guildID)),
	}
	if err := queue.load(); err != nil {
		return nil, err
	}
	return queue, nil
}

func (q *FileQueue) load() error {
	data, err := os.ReadFile(q.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return wrapError(ErrInvalidConfig, err, "failed to read queue file")
	}

	var file queueFile
	if err := json.Unmarshal(data, &file); err != nil {
		return wrapError(ErrInvalidConfig, err, "failed to decode queue file")
	}
	q.MemoryQueue.current = file.Current
	q.MemoryQueue.upcoming = file.Upcoming
	q.MemoryQueue.previous = file.Previous
	return nil
}

// save writes the full queue state with a temp-file rename so a crash never
// leaves a partial file behind.
func (q *FileQueue) save(ctx context.Context) error {
	current, err := q.MemoryQueue.Current(ctx)
	if err != nil {
		return err
	}
	upcoming, err := q.MemoryQueue.Tracks(ctx)
	if err != nil {
		return err
	}
	previous, err := q.MemoryQueue.Previous(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(queueFile{
		Current:  current,
		Upcoming: upcoming,
		Previous: previous,
	})
	if err != nil {
		return err
	}
	return writeFileAtomic(q.path, data)
}

func (q *FileQueue) SetCurrent(ctx context.Context, track *Track) error {
	if err := q.MemoryQueue.SetCurrent(ctx, track); err != nil {
		return err
	}
	return q.save(ctx)
}

func (q *FileQueue) AddPrevious(ctx context.Context, tracks ...Track) error {
	if err := q.MemoryQueue.AddPrevious(ctx, tracks...); err != nil {
		return err
	}
	return q.save(ctx)
}

func (q *FileQueue) SetPrevious(ctx context.Context, tracks []Track) error {
	if err := q.MemoryQueue.SetPrevious(ctx, tracks); err != nil {
		return err
	}
	return q.save(ctx)
}

func (q *FileQueue) PopPrevious(ctx context.Context) (*Track, error) {
	track, err := q.MemoryQueue.PopPrevious(ctx)
	if err != nil {
		return nil, err
	}
	return track, q.save(ctx)
}

func (q *FileQueue) ClearPrevious(ctx context.Context) error {
	if err := q.MemoryQueue.ClearPrevious(ctx); err != nil {
		return err
	}
	return q.save(ctx)
}

func (q *FileQueue) Add(ctx context.Context, tracks []Track, offset *int) error {
	if err := q.MemoryQueue.Add(ctx, tracks, offset); err != nil {
		return err
	}
	return q.save(ctx)
}

func (q *FileQueue) AddAutoplay(ctx context.Context, track Track) error {
	if err := q.MemoryQueue.AddAutoplay(ctx, track); err != nil {
		return err
	}
	return q.save(ctx)
}

func (q *FileQueue) Remove(ctx context.Context, start, end int) ([]Track, error) {
	removed, err := q.MemoryQueue.Remove(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return removed, q.save(ctx)
}

func (q *FileQueue) Clear(ctx context.Context) error {
	if err := q.MemoryQueue.Clear(ctx); err != nil {
		return err
	}
	return q.save(ctx)
}

func (q *FileQueue) Dequeue(ctx context.Context) (*Track, error) {
	track, err := q.MemoryQueue.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return track, q.save(ctx)
}

func (q *FileQueue) EnqueueFront(ctx context.Context, tracks ...Track) error {
	if err := q.MemoryQueue.EnqueueFront(ctx, tracks...); err != nil {
		return err
	}
	return q.save(ctx)
}

func (q *FileQueue) ModifyAt(ctx context.Context, start, deleteCount int, items ...Track) ([]Track, error) {
	deleted, err := q.MemoryQueue.ModifyAt(ctx, start, deleteCount, items...)
	if err != nil {
		return nil, err
	}
	return deleted, q.save(ctx)
}

func (q *FileQueue) Shuffle(ctx context.Context) error {
	if err := q.MemoryQueue.Shuffle(ctx); err != nil {
		return err
	}
	return q.save(ctx)
}

func (q *FileQueue) UserBlockShuffle(ctx context.Context) error {
	if err := q.MemoryQueue.UserBlockShuffle(ctx); err != nil {
		return err
	}
	return q.save(ctx)
}

func (q *FileQueue) RoundRobinShuffle(ctx context.Context) error {
	if err := q.MemoryQueue.RoundRobinShuffle(ctx); err != nil {
		return err
	}
	return q.save(ctx)
}

// Close removes the backing file; queue files only outlive their player
// through the manager's shutdown persistence, not through this path.
func (q *FileQueue) Close(ctx context.Context) error {
	if err := q.MemoryQueue.Close(ctx); err != nil {
		return err
	}
	if err := os.Remove(q.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
