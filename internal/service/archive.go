package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrArchiveAhead means the bucket already holds ids the store has not assigned yet,
// typically because the store was recreated. Archiving stops rather than overwrite those objects.
var ErrArchiveAhead = errors.New("archive checkpoint is ahead of the store")

// ArchiveUploader is the object storage used for cold copies of the measurements table.
type ArchiveUploader interface {
	UploadDataFile(ctx context.Context, key string, data []byte) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// ArchiveService copies readings that have not been archived yet to object storage,
// one JSON array per batch. It only reads from the store.
type ArchiveService struct {
	repos    ReadingStore
	uploader ArchiveUploader
	prefix   string
	batch    int
	log      zerolog.Logger

	mu     sync.Mutex
	loaded bool
	lastID int64
}

func NewArchiveService(repos ReadingStore, uploader ArchiveUploader, prefix string, batch int, logger zerolog.Logger) *ArchiveService {
	if batch <= 0 {
		batch = 1000
	}
	return &ArchiveService{
		repos:    repos,
		uploader: uploader,
		prefix:   prefix,
		batch:    batch,
		log:      logger.With().Str("component", "archive").Logger(),
	}
}

// ArchiveKey names the object holding readings fromID..toID inclusive.
func ArchiveKey(prefix string, fromID, toID int64) string {
	return fmt.Sprintf("%s%020d-%020d.json", prefix, fromID, toID)
}

func parseArchiveKey(prefix, key string) (int64, bool) {
	name, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return 0, false
	}
	name, ok = strings.CutSuffix(name, ".json")
	if !ok {
		return 0, false
	}
	_, to, ok := strings.Cut(name, "-")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Run uploads every reading newer than the checkpoint and returns how many were archived.
// A failed upload leaves the checkpoint where it was.
func (a *ArchiveService) Run(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.loaded {
		keys, err := a.uploader.ListKeys(ctx, a.prefix)
		if err != nil {
			return 0, fmt.Errorf("list archive: %w", err)
		}
		for _, key := range keys {
			if id, ok := parseArchiveKey(a.prefix, key); ok && id > a.lastID {
				a.lastID = id
			}
		}
		a.loaded = true
		a.log.Info().Int64("checkpoint", a.lastID).Msg("archive checkpoint recovered")
	}

	newest, err := a.repos.Recent(ctx, 1)
	if err != nil {
		return 0, err
	}
	var newestID int64
	if len(newest) > 0 {
		newestID = newest[0].ID
	}
	if a.lastID > newestID {
		a.log.Warn().
			Int64("checkpoint", a.lastID).
			Int64("newest_id", newestID).
			Msg("archive checkpoint exceeds newest stored id, not archiving")
		return 0, fmt.Errorf("%w: checkpoint %d, newest id %d", ErrArchiveAhead, a.lastID, newestID)
	}

	total := 0
	for {
		readings, err := a.repos.Since(ctx, a.lastID, a.batch)
		if err != nil {
			return total, err
		}
		if len(readings) == 0 {
			return total, nil
		}

		data, err := json.Marshal(readings)
		if err != nil {
			return total, fmt.Errorf("marshal archive batch: %w", err)
		}
		from, to := readings[0].ID, readings[len(readings)-1].ID
		key := ArchiveKey(a.prefix, from, to)
		if err := a.uploader.UploadDataFile(ctx, key, data); err != nil {
			return total, fmt.Errorf("upload %s: %w", key, err)
		}

		a.lastID = to
		total += len(readings)
		a.log.Info().Str("key", key).Int("count", len(readings)).Msg("archived readings")

		if len(readings) < a.batch {
			return total, nil
		}
	}
}
