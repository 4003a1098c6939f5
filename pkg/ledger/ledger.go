// Package ledger persists TrialResults in BadgerDB.
//
// The ledger is append-only: a (experiment, snapshot, seed) row, once
// written, is never replaced. Re-running an interrupted experiment therefore
// re-appends nothing it already recorded, and the final reports are built
// from the ledger rather than from whatever the last process held in memory.
//
// Key Structure:
//   - Trials: 0x01 + experiment + 0x00 + snapshot(u32 BE) + seed(u64 BE, sign-flipped) -> JSON(TrialResult)
//   - Fingerprints: 0x02 + experiment -> blake2b-256 digest of the run parameters
//
// Example:
//
//	l, err := ledger.Open(ledger.Options{Dir: layout.LedgerDir()}, logger)
//	if err != nil {
//		return err
//	}
//	defer l.Close()
//
//	if err := l.CheckFingerprint("wiki", ledger.Fingerprint("split", "uss-updated", "2")); err != nil {
//		return err // parameters changed since the last run
//	}
//	inserted, err := l.Append(result)
package ledger

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/orneryd/mdpredict/pkg/eval"
)

// Key prefixes.
const (
	prefixTrial       = byte(0x01)
	prefixFingerprint = byte(0x02)
)

var (
	ErrClosed          = errors.New("ledger: closed")
	ErrInvalidResult   = errors.New("ledger: invalid trial result")
	ErrConfigMismatch  = errors.New("ledger: run parameters differ from the recorded run")
	errNoExperimentKey = errors.New("ledger: experiment name must not contain NUL")
)

// Options configures the ledger.
type Options struct {
	// Dir is the badger directory. Ignored when InMemory is set.
	Dir string
	// InMemory keeps everything in RAM; nothing survives Close.
	InMemory bool
	// SyncWrites fsyncs every append.
	SyncWrites bool
}

// Ledger is an append-only TrialResult store. Safe for concurrent use.
type Ledger struct {
	db     *badger.DB
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the ledger.
func Open(opts Options, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("ledger")

	badgerOpts := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(badgerLogger{logger.Sugar()}).
		// The ledger holds a few thousand small rows; keep badger's
		// footprint small.
		WithMemTableSize(8 << 20).
		WithValueLogFileSize(16 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithBlockCacheSize(8 << 20).
		WithIndexCacheSize(4 << 20)
	if opts.InMemory {
		badgerOpts.Dir, badgerOpts.ValueDir = "", ""
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %q: %w", opts.Dir, err)
	}
	return &Ledger{db: db, logger: logger}, nil
}

// OpenInMemory opens a throwaway ledger.
func OpenInMemory(logger *zap.Logger) (*Ledger, error) {
	return Open(Options{InMemory: true}, logger)
}

// Close closes the underlying database. Further calls return ErrClosed.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

func (l *Ledger) checkOpen() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	return nil
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func experimentPrefix(experiment string) ([]byte, error) {
	if bytes.IndexByte([]byte(experiment), 0) >= 0 {
		return nil, errNoExperimentKey
	}
	key := make([]byte, 0, len(experiment)+2)
	key = append(key, prefixTrial)
	key = append(key, experiment...)
	return append(key, 0x00), nil
}

// trialKey orders rows by snapshot, then seed. Flipping the sign bit keeps
// negative seeds ahead of positive ones in byte order.
func trialKey(experiment string, snapshot int, seed int64) ([]byte, error) {
	key, err := experimentPrefix(experiment)
	if err != nil {
		return nil, err
	}
	key = binary.BigEndian.AppendUint32(key, uint32(snapshot))
	return binary.BigEndian.AppendUint64(key, uint64(seed)^(1<<63)), nil
}

func fingerprintKey(experiment string) []byte {
	return append([]byte{prefixFingerprint}, experiment...)
}

// ============================================================================
// Trials
// ============================================================================

// Append records res unless a row with the same (experiment, snapshot,
// seed) exists. It reports whether the row was inserted.
func (l *Ledger) Append(res eval.TrialResult) (bool, error) {
	if res.Experiment == "" || res.Snapshot < 0 {
		return false, fmt.Errorf("%w: experiment %q snapshot %d", ErrInvalidResult, res.Experiment, res.Snapshot)
	}
	if err := l.checkOpen(); err != nil {
		return false, err
	}
	key, err := trialKey(res.Experiment, res.Snapshot, res.Seed)
	if err != nil {
		return false, err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return false, fmt.Errorf("ledger: encode trial: %w", err)
	}

	inserted := false
	err = l.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		inserted = true
		return txn.Set(key, data)
	})
	if err != nil {
		return false, err
	}
	if !inserted {
		l.logger.Debug("trial already recorded",
			zap.String("experiment", res.Experiment),
			zap.Int("snapshot", res.Snapshot),
			zap.Int64("seed", res.Seed))
	}
	return inserted, nil
}

// Get returns the recorded row, if any.
func (l *Ledger) Get(experiment string, snapshot int, seed int64) (eval.TrialResult, bool, error) {
	var res eval.TrialResult
	if err := l.checkOpen(); err != nil {
		return res, false, err
	}
	key, err := trialKey(experiment, snapshot, seed)
	if err != nil {
		return res, false, err
	}

	found := false
	err = l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &res)
		})
	})
	return res, found, err
}

// Results returns every row of experiment ordered by snapshot, then seed.
func (l *Ledger) Results(experiment string) ([]eval.TrialResult, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	prefix, err := experimentPrefix(experiment)
	if err != nil {
		return nil, err
	}

	var out []eval.TrialResult
	err = l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var res eval.TrialResult
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &res)
			}); err != nil {
				return fmt.Errorf("ledger: decode %x: %w", it.Item().Key(), err)
			}
			out = append(out, res)
		}
		return nil
	})
	return out, err
}

// ============================================================================
// Fingerprints
// ============================================================================

// Fingerprint hashes the parameters identifying a run.
func Fingerprint(parts ...string) []byte {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return h.Sum(nil)
}

// CheckFingerprint records fp for experiment on first use and afterwards
// returns ErrConfigMismatch if fp differs from the recorded value.
func (l *Ledger) CheckFingerprint(experiment string, fp []byte) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	key := fingerprintKey(experiment)
	return l.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set(key, fp)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if !bytes.Equal(val, fp) {
				return fmt.Errorf("%w: experiment %q", ErrConfigMismatch, experiment)
			}
			return nil
		})
	})
}

// badgerLogger routes badger's internal logging through zap. Badger is
// chatty at info level, so info goes to debug.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.s.Errorf(f, v...) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.s.Warnf(f, v...) }
func (b badgerLogger) Infof(f string, v ...interface{})    { b.s.Debugf(f, v...) }
func (b badgerLogger) Debugf(f string, v ...interface{})   { b.s.Debugf(f, v...) }
