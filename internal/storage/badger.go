// Package storage provides the Badger-backed activation store.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/keymesh-go/internal/core/domain"
	"github.com/yndnr/keymesh-go/internal/core/service"
)

// Key layout. Codes and bindings share one keyspace, split by prefix,
// so a redemption can touch both records inside a single transaction.
const (
	codeKeyPrefix   = "code/"
	deviceKeyPrefix = "device/"
)

// maxTxnRetries bounds the retry loop on transaction conflicts.
// Conflicts are expected when several devices race for the same code;
// each retry re-reads committed state, so one racer finishes per round.
const maxTxnRetries = 10

// ErrClosed is returned for operations on a closed store.
var ErrClosed = errors.New("storage: store closed")

// BadgerStore implements service.Store using Badger v3.
//
// Conflict detection stays enabled: RedeemAndBind is a read-modify-write
// transaction and relies on Badger aborting racing commits.
type BadgerStore struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger

	closed atomic.Bool

	lastGCTime       atomic.Int64
	gcBytesReclaimed atomic.Uint64

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsTotalSize    prometheus.Gauge
	metricsLastGCTime   prometheus.Gauge
	metricsTxnConflicts prometheus.Counter

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBadgerStore opens the activation store at cfg.Dir.
func NewBadgerStore(cfg Config, logger *slog.Logger) (*BadgerStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{logger: logger}
	opts.BlockCacheSize = cfg.CacheSize
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	opts.SyncWrites = cfg.SyncWrites
	opts.DetectConflicts = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	store := &BadgerStore{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go store.gcLoop()

	logger.Info("badger store started",
		"dir", cfg.Dir,
		"sync_writes", cfg.SyncWrites,
		"gc_interval", cfg.GCInterval)

	return store, nil
}

// ==================== Code operations ====================

// InsertCode stores a new activation code. Fails with ErrCodeConflict
// when the code string is already present.
func (s *BadgerStore) InsertCode(ctx context.Context, code *domain.ActivationCode) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := code.Validate(); err != nil {
		return err
	}

	key := codeKey(code.Code)
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return domain.ErrCodeConflict
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, key, code)
	})
	return wrapStorageErr(err)
}

// GetCode retrieves a code by its code string.
func (s *BadgerStore) GetCode(ctx context.Context, codeStr string) (*domain.ActivationCode, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var code domain.ActivationCode
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, codeKey(codeStr), &code, domain.ErrCodeNotFound)
	})
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	return &code, nil
}

// CodeStats scans the code keyspace and returns per-kind counts.
func (s *BadgerStore) CodeStats(ctx context.Context) (map[domain.LicenseKind]service.CodeKindStats, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	stats := make(map[domain.LicenseKind]service.CodeKindStats)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(codeKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var code domain.ActivationCode
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &code)
			}); err != nil {
				return err
			}
			entry := stats[code.Kind]
			entry.Issued++
			if code.Redeemed {
				entry.Redeemed++
			}
			stats[code.Kind] = entry
		}
		return nil
	})
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	return stats, nil
}

// ==================== Device operations ====================

// GetBinding retrieves the binding for a device.
func (s *BadgerStore) GetBinding(ctx context.Context, deviceID string) (*domain.DeviceBinding, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var binding domain.DeviceBinding
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, deviceKey(deviceID), &binding, domain.ErrDeviceNotFound)
	})
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	return &binding, nil
}

// Bind stores a binding with replace-or-insert semantics. An active
// unexpired binding for the same device is a conflict; inactive or
// expired bindings are superseded in place.
func (s *BadgerStore) Bind(ctx context.Context, binding *domain.DeviceBinding) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := binding.Validate(); err != nil {
		return err
	}

	err := s.runUpdate(func(txn *badger.Txn) error {
		var existing domain.DeviceBinding
		err := getJSON(txn, deviceKey(binding.DeviceID), &existing, domain.ErrDeviceNotFound)
		switch {
		case err == nil:
			if existing.Active && !existing.Expired(binding.ActivatedAtTime()) {
				return domain.ErrDeviceAlreadyActive
			}
		case !domain.IsDomainError(err, domain.ErrDeviceNotFound.Code):
			return err
		}
		return setJSON(txn, deviceKey(binding.DeviceID), binding)
	})
	return wrapStorageErr(err)
}

// TouchBinding updates the binding's last-seen timestamp.
func (s *BadgerStore) TouchBinding(ctx context.Context, deviceID string, now time.Time) error {
	if s.closed.Load() {
		return ErrClosed
	}

	err := s.runUpdate(func(txn *badger.Txn) error {
		var binding domain.DeviceBinding
		if err := getJSON(txn, deviceKey(deviceID), &binding, domain.ErrDeviceNotFound); err != nil {
			return err
		}
		binding.Touch(now)
		return setJSON(txn, deviceKey(deviceID), &binding)
	})
	return wrapStorageErr(err)
}

// DeactivateBinding flips the binding inactive. Idempotent.
func (s *BadgerStore) DeactivateBinding(ctx context.Context, deviceID string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	err := s.runUpdate(func(txn *badger.Txn) error {
		var binding domain.DeviceBinding
		if err := getJSON(txn, deviceKey(deviceID), &binding, domain.ErrDeviceNotFound); err != nil {
			return err
		}
		binding.Deactivate()
		return setJSON(txn, deviceKey(deviceID), &binding)
	})
	return wrapStorageErr(err)
}

// DeviceStats scans the device keyspace and returns binding counts.
func (s *BadgerStore) DeviceStats(ctx context.Context) (service.DeviceStats, error) {
	if s.closed.Load() {
		return service.DeviceStats{}, ErrClosed
	}

	var stats service.DeviceStats
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(deviceKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var binding domain.DeviceBinding
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &binding)
			}); err != nil {
				return err
			}
			stats.Total++
			if binding.Active {
				stats.Active++
			}
		}
		return nil
	})
	if err != nil {
		return service.DeviceStats{}, wrapStorageErr(err)
	}
	return stats, nil
}

// ==================== Redemption ====================

// RedeemAndBind consumes one quota slot on the code and writes the
// device binding in a single transaction. Either both records commit
// or neither does. Rejection reasons follow the priority order: not
// found, validity window elapsed, quota exhausted, device already
// active.
func (s *BadgerStore) RedeemAndBind(ctx context.Context, codeStr, deviceID string, now time.Time) (*domain.ActivationCode, *domain.DeviceBinding, error) {
	if s.closed.Load() {
		return nil, nil, ErrClosed
	}

	var (
		code    domain.ActivationCode
		binding *domain.DeviceBinding
	)
	err := s.runUpdate(func(txn *badger.Txn) error {
		code = domain.ActivationCode{}
		binding = nil

		if err := getJSON(txn, codeKey(codeStr), &code, domain.ErrCodeNotFound); err != nil {
			return err
		}
		if code.WindowElapsed(now) {
			return domain.ErrCodeExpired
		}
		if code.Exhausted() {
			return domain.ErrCodeExhausted
		}

		var existing domain.DeviceBinding
		err := getJSON(txn, deviceKey(deviceID), &existing, domain.ErrDeviceNotFound)
		switch {
		case err == nil:
			if existing.Active && !existing.Expired(now) {
				return domain.ErrDeviceAlreadyActive
			}
		case !domain.IsDomainError(err, domain.ErrDeviceNotFound.Code):
			return err
		}

		code.Consume(deviceID, now)
		binding = domain.NewDeviceBinding(deviceID, &code, now)

		if err := setJSON(txn, codeKey(codeStr), &code); err != nil {
			return err
		}
		return setJSON(txn, deviceKey(deviceID), binding)
	})
	if err != nil {
		return nil, nil, wrapStorageErr(err)
	}
	return &code, binding, nil
}

// runUpdate runs fn in a read-write transaction, retrying a bounded
// number of times when Badger reports a commit conflict.
func (s *BadgerStore) runUpdate(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if s.metricsTxnConflicts != nil {
			s.metricsTxnConflicts.Inc()
		}
	}
	return err
}

// ==================== Backup ====================

// Backup streams a full backup of the store to w and returns the
// version timestamp of the backup.
func (s *BadgerStore) Backup(ctx context.Context, w io.Writer) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	since, err := s.db.Backup(w, 0)
	if err != nil {
		return 0, fmt.Errorf("badger: backup: %w", err)
	}
	s.logger.Info("backup written", "version", since)
	return since, nil
}

// Restore loads a backup stream into the store. Existing keys are
// overwritten by the backup's contents.
func (s *BadgerStore) Restore(ctx context.Context, r io.Reader) error {
	if s.closed.Load() {
		return ErrClosed
	}

	if err := s.db.Load(r, 16); err != nil {
		return fmt.Errorf("badger: restore: %w", err)
	}
	s.logger.Info("backup restored")
	return nil
}

// ==================== Maintenance ====================

// GC runs value log garbage collection until nothing more is reclaimed.
func (s *BadgerStore) GC(ctx context.Context) error {
	started := time.Now()

	cycles := 0
	for {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return fmt.Errorf("badger: gc: %w", err)
		}
		cycles++
	}

	s.lastGCTime.Store(time.Now().UnixMilli())
	if cycles > 0 {
		s.logger.Info("gc completed",
			"cycles", cycles,
			"elapsed", time.Since(started))
	}
	return nil
}

// Close stops background loops and closes the database.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.logger.Info("shutting down badger store")

	close(s.stopCh)
	<-s.doneCh

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("badger: close db: %w", err)
	}

	s.logger.Info("badger store shutdown complete")
	return nil
}

// RegisterMetrics registers store metrics with the given registry and
// starts the periodic updater. Call once during initialization.
func (s *BadgerStore) RegisterMetrics(registry *prometheus.Registry) *BadgerStore {
	s.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "keymesh",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})

	s.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "keymesh",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})

	s.metricsTotalSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "keymesh",
		Subsystem: "badger",
		Name:      "total_size_bytes",
		Help:      "Badger total storage size in bytes (LSM + value log)",
	})

	s.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "keymesh",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last value log GC run",
	})

	s.metricsTxnConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "keymesh",
		Subsystem: "badger",
		Name:      "txn_conflicts_total",
		Help:      "Total transaction commit conflicts observed",
	})

	registry.MustRegister(
		s.metricsLSMSize,
		s.metricsValueLogSize,
		s.metricsTotalSize,
		s.metricsLastGCTime,
		s.metricsTxnConflicts,
	)

	go s.metricsUpdateLoop()

	return s
}

// metricsUpdateLoop periodically refreshes the size gauges.
func (s *BadgerStore) metricsUpdateLoop() {
	if s.metricsLSMSize == nil {
		return
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lsm, vlog := s.db.Size()
			s.metricsLSMSize.Set(float64(lsm))
			s.metricsValueLogSize.Set(float64(vlog))
			s.metricsTotalSize.Set(float64(lsm + vlog))
			if last := s.lastGCTime.Load(); last > 0 {
				s.metricsLastGCTime.Set(float64(last) / 1000.0)
			}

		case <-s.stopCh:
			return
		}
	}
}

// gcLoop runs periodic value log garbage collection.
func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)

	interval, err := time.ParseDuration(s.cfg.GCInterval)
	if err != nil || interval <= 0 {
		if err != nil {
			s.logger.Error("invalid gc_interval, using default 10m", "error", err)
		}
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if err := s.GC(ctx); err != nil {
				s.logger.Error("auto gc failed", "error", err)
			}
			cancel()

		case <-s.stopCh:
			return
		}
	}
}

// ==================== Helpers ====================

func codeKey(code string) []byte {
	return []byte(codeKeyPrefix + code)
}

func deviceKey(deviceID string) []byte {
	return []byte(deviceKeyPrefix + deviceID)
}

// getJSON reads and unmarshals the value at key into out, mapping a
// missing key to notFound.
func getJSON(txn *badger.Txn, key []byte, out any, notFound error) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return notFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// wrapStorageErr leaves domain errors intact and wraps everything else
// as a storage failure.
func wrapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	var derr *domain.DomainError
	if errors.As(err, &derr) {
		return err
	}
	if errors.Is(err, ErrClosed) {
		return err
	}
	return domain.ErrStorageError.WithCause(err)
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
