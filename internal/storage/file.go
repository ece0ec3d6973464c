package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"searchwatch/pkg/logx"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// fileStore keeps the total in a small JSON file next to its side files.
//
// Files:
//   - <path>                       ({"totalResults": N}, replaced atomically)
//   - <prefix>.cycles.jsonl         (append-only JSON Lines)
//   - <prefix>.dedup.snapshot.json  (periodic snapshot)
//   - <prefix>.dedup.journal.jsonl  (append-only journal)
//
// The dedup journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	statePath  string
	cyclesPath string
	cyclesFile *os.File

	dedupSnapshotPath string
	dedupJournalFile  *os.File
	dedup             map[string]int64 // unix milli

	dedupWrites int
	closed      bool
}

type dedupRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	cyclesPath := prefix + ".cycles.jsonl"
	snapPath := prefix + ".dedup.snapshot.json"
	journalPath := prefix + ".dedup.journal.jsonl"

	cf, err := os.OpenFile(cyclesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	dedup := map[string]int64{}
	_ = loadDedupSnapshot(snapPath, dedup)
	_ = replayDedupJournal(journalPath, dedup)
	pruneExpiredDedup(dedup)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = cf.Close()
		return nil, err
	}

	return &fileStore{
		log:               log,
		statePath:         path,
		cyclesPath:        cyclesPath,
		cyclesFile:        cf,
		dedupSnapshotPath: snapPath,
		dedupJournalFile:  jf,
		dedup:             dedup,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	var err1, err2 error
	if s.cyclesFile != nil {
		err1 = s.cyclesFile.Close()
		s.cyclesFile = nil
	}
	if s.dedupJournalFile != nil {
		err2 = s.dedupJournalFile.Close()
		s.dedupJournalFile = nil
	}
	return errors.Join(err1, err2)
}

func (s *fileStore) LoadTotal(ctx context.Context) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	b, err := os.ReadFile(s.statePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.log.Info("state file missing, initializing", logx.String("path", s.statePath))
		return 0, s.writeStateLocked(0)
	case err != nil:
		return 0, fmt.Errorf("read state: %w", err)
	}

	v, perr := decodeState(b)
	if perr != nil {
		s.log.Warn("state file corrupt, resetting to defaults", logx.String("path", s.statePath), logx.Err(perr))
		return 0, s.writeStateLocked(0)
	}
	return v, nil
}

func (s *fileStore) SaveTotal(ctx context.Context, v int64) error {
	_ = ctx
	if v < 0 {
		return ErrNegativeTotal
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.writeStateLocked(v)
}

func decodeState(b []byte) (int64, error) {
	var st State
	if err := json.Unmarshal(bytes.TrimSpace(b), &st); err != nil {
		return 0, err
	}
	if err := validate.Struct(st); err != nil {
		return 0, err
	}
	return *st.TotalResults, nil
}

func encodeState(v int64) ([]byte, error) {
	b, err := json.MarshalIndent(State{TotalResults: &v}, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// writeStateLocked writes a temp file in the same directory, fsyncs it and
// renames it over the state path.
func (s *fileStore) writeStateLocked(v int64) error {
	b, err := encodeState(v)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.statePath)
	f, err := os.CreateTemp(dir, "."+filepath.Base(s.statePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	tmp := f.Name()
	cleanup := func() { _ = os.Remove(tmp) }

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		cleanup()
		return fmt.Errorf("write state: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		cleanup()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmp, s.statePath); err != nil {
		cleanup()
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

func (s *fileStore) AppendCycle(ctx context.Context, r CycleRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cyclesFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.cyclesFile).Encode(r)
}

func (s *fileStore) ListCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	f, err := os.Open(s.cyclesPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []CycleRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r CycleRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		all = append(all, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]CycleRecord, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *fileStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupJournalFile == nil {
		return ErrClosed
	}
	s.dedup[key] = ms

	if err := json.NewEncoder(s.dedupJournalFile).Encode(dedupRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.dedupWrites++
	if s.dedupWrites%1000 == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *fileStore) compactLocked() error {
	pruneExpiredDedup(s.dedup)

	tmp := s.dedupSnapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.dedup); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.dedupSnapshotPath); err != nil {
		return err
	}
	if err := s.dedupJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.dedupJournalFile.Seek(0, 2)
	return err
}

func loadDedupSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayDedupJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r dedupRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Key == "" {
			continue
		}
		out[r.Key] = r.Until
	}
	return sc.Err()
}

func pruneExpiredDedup(m map[string]int64) {
	now := time.Now().UnixMilli()
	for k, v := range m {
		if v < now {
			delete(m, k)
		}
	}
}
