package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ericfisherdev/tubefeed/internal/domain/model"
	"github.com/ericfisherdev/tubefeed/internal/domain/port/driven"
)

// Sentinel errors returned by KeyPool.
var (
	// ErrNoCredentialsConfigured indicates the pool holds no API keys.
	ErrNoCredentialsConfigured = errors.New("no api keys configured")

	// ErrAllCredentialsExhausted indicates every key is exhausted and none
	// qualifies for the daily reset yet.
	ErrAllCredentialsExhausted = errors.New("all api keys are exhausted")

	// ErrKeyRecordMissing indicates the rotation index points at a slot with no
	// stored record, which only happens if the store was edited externally.
	ErrKeyRecordMissing = errors.New("api key record missing from rotation store")
)

// DefaultKeyNamespace is the key prefix used in the shared store.
const DefaultKeyNamespace = "youtube-api"

// storedKey is the JSON layout of a key record in the shared store.
type storedKey struct {
	Key         string `json:"key"`
	QuotaUsed   int64  `json:"quotaUsed"`
	LastUsed    int64  `json:"lastUsed"` // Unix milliseconds.
	IsExhausted bool   `json:"isExhausted"`
}

// KeyPool arbitrates a set of API keys that each carry a daily quota. Its state
// (one record per key, a rotation index and the key count) lives in a shared
// KVStore so that every instance of the service rotates through the same keys.
//
// Operations are sequences of independent store reads and writes with no
// distributed lock. Two instances can pick the same key just before it runs
// out, or both advance the rotation index. Either way a key that is really over
// quota is rejected by the API on its next use, MarkExhausted is applied, and
// the pool settles within one cycle.
type KeyPool struct {
	store      driven.KVStore
	secrets    []string
	dailyQuota int64
	namespace  string
	now        func() time.Time
}

// KeyPoolOption configures a KeyPool.
type KeyPoolOption func(*KeyPool)

// WithClock overrides the clock used for lastUsed stamps and the day boundary.
func WithClock(now func() time.Time) KeyPoolOption {
	return func(p *KeyPool) { p.now = now }
}

// WithNamespace overrides the key prefix used in the shared store.
func WithNamespace(namespace string) KeyPoolOption {
	return func(p *KeyPool) {
		if namespace != "" {
			p.namespace = namespace
		}
	}
}

// NewKeyPool creates a KeyPool over store for the configured secrets. Each key
// is considered exhausted once its charged quota reaches dailyQuota.
func NewKeyPool(store driven.KVStore, secrets []string, dailyQuota int64, opts ...KeyPoolOption) *KeyPool {
	p := &KeyPool{
		store:      store,
		secrets:    secrets,
		dailyQuota: dailyQuota,
		namespace:  DefaultKeyNamespace,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init writes the initial pool state if the store holds none. It is safe to
// call from every instance on startup. An existing pool is left untouched:
// secrets added to the configuration later are not merged, and picking them
// up requires clearing the pool state from the store.
func (p *KeyPool) Init(ctx context.Context) error {
	raw, found, err := p.store.Get(ctx, p.countKey())
	if err != nil {
		return fmt.Errorf("read key count: %w", err)
	}
	if found {
		if stored, convErr := strconv.Atoi(raw); convErr == nil && stored != len(p.secrets) {
			slog.Warn("configured api keys differ from stored pool, keeping stored pool",
				"configured", len(p.secrets),
				"stored", stored,
			)
		}
		return nil
	}

	if len(p.secrets) == 0 {
		slog.Warn("no api keys configured, key pool left empty")
		return nil
	}

	now := p.now()
	pairs := make(map[string]string, len(p.secrets)+2)
	for i, secret := range p.secrets {
		encoded, err := encodeKeyRecord(model.KeyRecord{Index: i, Secret: secret, LastUsed: now})
		if err != nil {
			return err
		}
		pairs[p.recordKey(i)] = encoded
	}
	pairs[p.indexKey()] = "0"
	pairs[p.countKey()] = strconv.Itoa(len(p.secrets))

	if err := p.store.MultiSet(ctx, pairs); err != nil {
		return fmt.Errorf("write initial key pool: %w", err)
	}

	slog.Info("key pool initialized", "keys", len(p.secrets))
	return nil
}

// Acquire returns the secret of a usable key. The key at the rotation index is
// preferred; if it is exhausted the pool scans forward, moves the rotation
// index to the first available key and returns it.
func (p *KeyPool) Acquire(ctx context.Context) (string, error) {
	count, err := p.keyCount(ctx)
	if err != nil {
		return "", err
	}
	if count == 0 {
		return "", ErrNoCredentialsConfigured
	}

	if err := p.resetIfDrained(ctx, count); err != nil {
		return "", err
	}

	idx, err := p.currentIndex(ctx, count)
	if err != nil {
		return "", err
	}

	rec, err := p.loadRecord(ctx, idx)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", fmt.Errorf("%w: index %d", ErrKeyRecordMissing, idx)
	}
	if !rec.IsExhausted {
		return rec.Secret, nil
	}

	next, err := p.rotateFrom(ctx, idx, count)
	if err != nil {
		return "", err
	}
	return next.Secret, nil
}

// Charge adds cost to the quota used by the current key. When the key reaches
// its daily ceiling it is marked exhausted and the rotation index moves to the
// next available key. Running out of keys is not an error here; the next
// Acquire reports it. Only store failures are returned.
func (p *KeyPool) Charge(ctx context.Context, cost int64) error {
	count, idx, rec, err := p.currentRecord(ctx)
	if err != nil || rec == nil {
		return err
	}

	rec.QuotaUsed += cost
	rec.LastUsed = p.now()
	if rec.QuotaUsed >= p.dailyQuota {
		rec.IsExhausted = true
		slog.Warn("api key quota reached",
			"key", model.MaskSecret(rec.Secret),
			"quota_used", rec.QuotaUsed,
			"daily_quota", p.dailyQuota,
		)
	}

	if err := p.saveRecord(ctx, *rec); err != nil {
		return err
	}

	if rec.IsExhausted {
		return p.rotateAfterExhaustion(ctx, idx, count)
	}
	return nil
}

// MarkExhausted flags the current key as exhausted because the API itself
// rejected it for quota, regardless of the locally tracked usage, and moves
// the rotation index to the next available key.
func (p *KeyPool) MarkExhausted(ctx context.Context) error {
	count, idx, rec, err := p.currentRecord(ctx)
	if err != nil || rec == nil {
		return err
	}

	slog.Warn("marking api key exhausted after api rejection", "key", model.MaskSecret(rec.Secret))
	rec.IsExhausted = true
	rec.LastUsed = p.now()

	if err := p.saveRecord(ctx, *rec); err != nil {
		return err
	}
	return p.rotateAfterExhaustion(ctx, idx, count)
}

// Status counts available and exhausted keys. It is read-only.
func (p *KeyPool) Status(ctx context.Context) (model.PoolStatus, error) {
	count, err := p.keyCount(ctx)
	if err != nil {
		return model.PoolStatus{}, err
	}

	var available int
	for i := 0; i < count; i++ {
		rec, err := p.loadRecord(ctx, i)
		if err != nil {
			return model.PoolStatus{}, err
		}
		if rec != nil && !rec.IsExhausted {
			available++
		}
	}

	return model.PoolStatus{
		Total:     count,
		Available: available,
		Exhausted: count - available,
	}, nil
}

// Snapshot returns every stored key record and the current rotation index.
// Records carry the raw secret; callers must mask it before display.
func (p *KeyPool) Snapshot(ctx context.Context) ([]model.KeyRecord, int, error) {
	count, err := p.keyCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	if count == 0 {
		return []model.KeyRecord{}, 0, nil
	}

	idx, err := p.currentIndex(ctx, count)
	if err != nil {
		return nil, 0, err
	}

	records := make([]model.KeyRecord, 0, count)
	for i := 0; i < count; i++ {
		rec, err := p.loadRecord(ctx, i)
		if err != nil {
			return nil, 0, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, idx, nil
}

// resetIfDrained clears exhaustion on keys last used before today's local
// midnight, but only once every key is exhausted. A key exhausted today stays
// exhausted even when the sweep runs.
func (p *KeyPool) resetIfDrained(ctx context.Context, count int) error {
	midnight := startOfDay(p.now())

	records := make([]model.KeyRecord, 0, count)
	for i := 0; i < count; i++ {
		rec, err := p.loadRecord(ctx, i)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		if !rec.IsExhausted {
			return nil
		}
		records = append(records, *rec)
	}

	pairs := make(map[string]string)
	for _, rec := range records {
		if !rec.LastUsed.Before(midnight) {
			continue
		}
		rec.IsExhausted = false
		rec.QuotaUsed = 0
		encoded, err := encodeKeyRecord(rec)
		if err != nil {
			return err
		}
		pairs[p.recordKey(rec.Index)] = encoded
	}
	if len(pairs) == 0 {
		return nil
	}

	if err := p.store.MultiSet(ctx, pairs); err != nil {
		return fmt.Errorf("reset exhausted keys: %w", err)
	}
	slog.Info("reset exhausted api keys", "reset", len(pairs), "total", count)
	return nil
}

// rotateFrom scans forward from idx (exclusive), wrapping around, for the
// first key that is not exhausted and makes it the current key.
func (p *KeyPool) rotateFrom(ctx context.Context, idx, count int) (*model.KeyRecord, error) {
	for i := 1; i <= count; i++ {
		next := (idx + i) % count
		rec, err := p.loadRecord(ctx, next)
		if err != nil {
			return nil, err
		}
		if rec == nil || rec.IsExhausted {
			continue
		}

		if err := p.store.Set(ctx, p.indexKey(), strconv.Itoa(next)); err != nil {
			return nil, fmt.Errorf("update rotation index: %w", err)
		}
		if next != idx {
			slog.Info("switched to next api key", "key", model.MaskSecret(rec.Secret), "index", next)
		}
		return rec, nil
	}

	return nil, ErrAllCredentialsExhausted
}

func (p *KeyPool) rotateAfterExhaustion(ctx context.Context, idx, count int) error {
	_, err := p.rotateFrom(ctx, idx, count)
	if errors.Is(err, ErrAllCredentialsExhausted) {
		slog.Warn("no available api key left after exhaustion")
		return nil
	}
	return err
}

// currentRecord loads the record at the rotation index. A nil record with a nil
// error means there is nothing to update (empty pool or missing slot).
func (p *KeyPool) currentRecord(ctx context.Context) (int, int, *model.KeyRecord, error) {
	count, err := p.keyCount(ctx)
	if err != nil {
		return 0, 0, nil, err
	}
	if count == 0 {
		slog.Debug("key pool empty, nothing to update")
		return 0, 0, nil, nil
	}

	idx, err := p.currentIndex(ctx, count)
	if err != nil {
		return 0, 0, nil, err
	}

	rec, err := p.loadRecord(ctx, idx)
	if err != nil {
		return 0, 0, nil, err
	}
	if rec == nil {
		slog.Error("api key record not found", "index", idx)
	}
	return count, idx, rec, nil
}

func (p *KeyPool) keyCount(ctx context.Context) (int, error) {
	raw, found, err := p.store.Get(ctx, p.countKey())
	if err != nil {
		return 0, fmt.Errorf("read key count: %w", err)
	}
	if !found {
		return 0, nil
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse key count %q: %w", raw, err)
	}
	return count, nil
}

// currentIndex reads the rotation index. An absent index is 0; an index outside
// [0, count) is folded back into range.
func (p *KeyPool) currentIndex(ctx context.Context, count int) (int, error) {
	raw, found, err := p.store.Get(ctx, p.indexKey())
	if err != nil {
		return 0, fmt.Errorf("read rotation index: %w", err)
	}
	if !found {
		return 0, nil
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse rotation index %q: %w", raw, err)
	}
	if idx < 0 || idx >= count {
		slog.Warn("rotation index out of range", "index", idx, "count", count)
		idx = ((idx % count) + count) % count
	}
	return idx, nil
}

func (p *KeyPool) loadRecord(ctx context.Context, idx int) (*model.KeyRecord, error) {
	raw, found, err := p.store.Get(ctx, p.recordKey(idx))
	if err != nil {
		return nil, fmt.Errorf("read api key %d: %w", idx, err)
	}
	if !found {
		return nil, nil
	}

	var sk storedKey
	if err := json.Unmarshal([]byte(raw), &sk); err != nil {
		return nil, fmt.Errorf("decode api key %d: %w", idx, err)
	}
	return &model.KeyRecord{
		Index:       idx,
		Secret:      sk.Key,
		QuotaUsed:   sk.QuotaUsed,
		LastUsed:    time.UnixMilli(sk.LastUsed),
		IsExhausted: sk.IsExhausted,
	}, nil
}

func (p *KeyPool) saveRecord(ctx context.Context, rec model.KeyRecord) error {
	encoded, err := encodeKeyRecord(rec)
	if err != nil {
		return err
	}
	if err := p.store.Set(ctx, p.recordKey(rec.Index), encoded); err != nil {
		return fmt.Errorf("write api key %d: %w", rec.Index, err)
	}
	return nil
}

func encodeKeyRecord(rec model.KeyRecord) (string, error) {
	data, err := json.Marshal(storedKey{
		Key:         rec.Secret,
		QuotaUsed:   rec.QuotaUsed,
		LastUsed:    rec.LastUsed.UnixMilli(),
		IsExhausted: rec.IsExhausted,
	})
	if err != nil {
		return "", fmt.Errorf("encode api key %d: %w", rec.Index, err)
	}
	return string(data), nil
}

func (p *KeyPool) recordKey(idx int) string {
	return p.namespace + ":key:" + strconv.Itoa(idx)
}

func (p *KeyPool) indexKey() string { return p.namespace + ":current-key-index" }

func (p *KeyPool) countKey() string { return p.namespace + ":key-count" }

// startOfDay returns local midnight of t's day in t's location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
