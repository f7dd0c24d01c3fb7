package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/guildgate/guildgate/pkg/models"
)

// Store is the persistent per-guild record store. Each guild's record is a
// single JSON object; Update runs the caller's function inside that guild's
// critical section so concurrent counter updates for the same guild
// serialize without a global lock across guilds.
type Store struct {
	mu     sync.RWMutex
	guilds map[string]*guildEntry

	file     string
	autoSave time.Duration

	saveMu       sync.Mutex
	lastChecksum string

	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeMu sync.Mutex
	closed  bool
}

type guildEntry struct {
	mu  sync.Mutex
	rec *models.GuildRecord
}

// Options configures a Store.
type Options struct {
	AutoSaveInterval time.Duration
	Logger           zerolog.Logger
}

// Open loads (or creates) the store file at path.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}
	if opts.AutoSaveInterval <= 0 {
		opts.AutoSaveInterval = 10 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		guilds:   make(map[string]*guildEntry),
		file:     path,
		autoSave: opts.AutoSaveInterval,
		log:      opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			cancel()
			return nil, fmt.Errorf("load store: %w", err)
		}
	} else if !os.IsNotExist(err) {
		cancel()
		return nil, fmt.Errorf("stat store file: %w", err)
	} else if err := s.writeAtomic([]byte("{}\n")); err != nil {
		cancel()
		return nil, fmt.Errorf("create store file: %w", err)
	}

	s.wg.Add(1)
	go s.autoSaveLoop()

	return s, nil
}

// Update runs fn inside guildID's critical section. The record is created on
// first access. Mutations are kept in memory and flushed by the autosave
// loop, Flush, or Close. An error from fn aborts nothing already applied to
// the record; callers mutate only after all checks pass.
func (s *Store) Update(guildID string, fn func(*models.GuildRecord) error) error {
	if s.isClosed() {
		return fmt.Errorf("store is closed")
	}
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.rec)
}

// View runs fn with read access to guildID's record. The record must not be
// retained or mutated by fn.
func (s *Store) View(guildID string, fn func(*models.GuildRecord)) {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.rec)
}

// GuildIDs returns all known guild IDs, sorted.
func (s *Store) GuildIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.guilds))
	for id := range s.guilds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Flush forces an immediate save to disk.
func (s *Store) Flush() error {
	if s.isClosed() {
		return fmt.Errorf("store is closed")
	}
	return s.save()
}

// Close stops the autosave loop and performs a final save.
func (s *Store) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.cancel()
	s.wg.Wait()
	return s.save()
}

func (s *Store) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

func (s *Store) entry(guildID string) *guildEntry {
	s.mu.RLock()
	e := s.guilds[guildID]
	s.mu.RUnlock()
	if e != nil {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e = s.guilds[guildID]; e != nil {
		return e
	}
	e = &guildEntry{rec: &models.GuildRecord{}}
	s.guilds[guildID] = e
	return e
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		return fmt.Errorf("read store file: %w", err)
	}

	var raw map[string]*models.GuildRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid store JSON: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range raw {
		if rec == nil {
			rec = &models.GuildRecord{}
		}
		s.guilds[id] = &guildEntry{rec: rec}
	}
	s.lastChecksum = checksum(data)
	return nil
}

// save snapshots every guild record and writes the file if the content
// changed. saveMu serializes Flush callers against the autosave loop; both
// the checksum compare-and-set and the temp-file write happen under it.
func (s *Store) save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	snapshot := make(map[string]json.RawMessage, len(s.guilds))
	for id, e := range s.guilds {
		e.mu.Lock()
		b, err := json.Marshal(e.rec)
		e.mu.Unlock()
		if err != nil {
			s.mu.RUnlock()
			return fmt.Errorf("marshal guild %s: %w", id, err)
		}
		snapshot[id] = b
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	sum := checksum(data)
	if sum == s.lastChecksum {
		return nil
	}

	if err := s.writeAtomic(data); err != nil {
		return err
	}
	s.lastChecksum = sum
	return nil
}

// writeAtomic writes via a temp file and rename so a crash never leaves a
// truncated store on disk.
func (s *Store) writeAtomic(data []byte) error {
	tmp := s.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp store file: %w", err)
	}

	f, err := os.OpenFile(tmp, os.O_RDWR, 0o644)
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("open temp store file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp store file: %w", err)
	}
	f.Close()

	if err := os.Rename(tmp, s.file); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp store file: %w", err)
	}
	return nil
}

func (s *Store) autoSaveLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.autoSave)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.save(); err != nil {
				s.log.Error().Err(err).Msg("store autosave failed")
			}
		}
	}
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
