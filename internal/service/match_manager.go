package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/benbeisheim/unionchess-backend/internal/model"
	"github.com/benbeisheim/unionchess-backend/internal/rules"
	"github.com/benbeisheim/unionchess-backend/internal/store"
	"github.com/benbeisheim/unionchess-backend/internal/ws"
)

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrMatchExists    = errors.New("match already exists")
	ErrInvalidRequest = errors.New("invalid request")
)

// Conn is the push side of a subscriber's connection.
type Conn interface {
	WriteJSON(v interface{}) error
}

// Archiver receives every match once it is decided.
type Archiver interface {
	Write(row store.ArchivedMatch) error
}

type subscriber struct {
	party   string
	conn    Conn
	compact bool
	mu      sync.Mutex // serializes writes to conn
}

type entry struct {
	match *model.Match

	// saveMu orders saves so the store never ends up with an older record
	// than one already written.
	saveMu sync.Mutex

	mu         sync.Mutex
	subs       map[*subscriber]struct{}
	finishedAt time.Time
	finished   bool
}

type ManagerConfig struct {
	Store   store.Store
	Archive Archiver
	Logger  *zap.Logger
	// SweepInterval is how often running clocks are checked for timeouts.
	SweepInterval     time.Duration
	SaveTimeout       time.Duration
	FinishedRetention time.Duration
	Now               func() time.Time
}

// MatchManager owns the live matches.
type MatchManager struct {
	matches map[string]*entry
	mu      sync.RWMutex

	store     store.Store
	archive   Archiver
	logger    *zap.Logger
	interval  time.Duration
	saveWait  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewMatchManager(cfg ManagerConfig) *MatchManager {
	mm := &MatchManager{
		matches:   make(map[string]*entry),
		store:     cfg.Store,
		archive:   cfg.Archive,
		logger:    cfg.Logger,
		interval:  cfg.SweepInterval,
		saveWait:  cfg.SaveTimeout,
		retention: cfg.FinishedRetention,
		now:       cfg.Now,
	}
	if mm.store == nil {
		mm.store = store.NewMemoryStore()
	}
	if mm.logger == nil {
		mm.logger = zap.NewNop()
	}
	if mm.interval <= 0 {
		mm.interval = 250 * time.Millisecond
	}
	if mm.saveWait <= 0 {
		mm.saveWait = 2 * time.Second
	}
	if mm.retention <= 0 {
		mm.retention = 10 * time.Minute
	}
	if mm.now == nil {
		mm.now = time.Now
	}
	return mm
}

func (mm *MatchManager) CreateMatch(ctx context.Context, key string, settings model.Settings) (*model.Match, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	match := model.NewMatch(key, settings, mm.now)

	mm.mu.Lock()
	if _, exists := mm.matches[key]; exists {
		mm.mu.Unlock()
		return nil, ErrMatchExists
	}
	e := &entry{match: match, subs: make(map[*subscriber]struct{})}
	mm.matches[key] = e
	mm.mu.Unlock()

	mm.save(ctx, e)
	mm.logger.Info("match created",
		zap.String("match", key),
		zap.Stringer("chain_rule", settings.Options.Chain),
		zap.Bool("timed", settings.Timer != nil),
	)
	return match, nil
}

// lookup returns the live entry for key, restoring it from the store on a
// cache miss.
func (mm *MatchManager) lookup(ctx context.Context, key string) (*entry, error) {
	mm.mu.RLock()
	e, ok := mm.matches[key]
	mm.mu.RUnlock()
	if ok {
		return e, nil
	}

	rec, err := mm.store.LoadMatch(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load match %s: %w", key, err)
	}
	match, err := model.Restore(rec, mm.now)
	if err != nil {
		return nil, err
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	if e, ok := mm.matches[key]; ok {
		return e, nil
	}
	e = &entry{match: match, subs: make(map[*subscriber]struct{})}
	if match.Result().Decided() {
		e.finishedAt = mm.now()
		e.finished = true
	}
	mm.matches[key] = e
	mm.logger.Debug("match restored from store", zap.String("match", key), zap.Int("actions", match.Len()))
	return e, nil
}

func (mm *MatchManager) GetMatch(ctx context.Context, key string) (*model.Match, error) {
	e, err := mm.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.match, nil
}

// Submit commits an action and pushes the new state to every subscriber.
// A submission that finds the clock run out ends the match on time and
// still reports ErrTimeExpired to the caller.
func (mm *MatchManager) Submit(ctx context.Context, key, party string, base int, action rules.Action) (int, error) {
	e, err := mm.lookup(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := e.match.Submit(party, base, action)
	if errors.Is(err, model.ErrTimeExpired) {
		mm.logger.Info("submission after time expired", zap.String("match", key), zap.String("party", party))
		mm.committed(ctx, e, false)
		return n, err
	}
	if err != nil {
		return n, err
	}
	mm.committed(ctx, e, false)
	return n, nil
}

func (mm *MatchManager) Rollback(ctx context.Context, key, party string) (int, error) {
	e, err := mm.lookup(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := e.match.Rollback(party)
	if err != nil {
		return n, err
	}
	mm.logger.Debug("turn rolled back", zap.String("match", key), zap.Int("actions", n))
	mm.committed(ctx, e, true)
	return n, nil
}

func (mm *MatchManager) ClaimSide(ctx context.Context, key string, color rules.Color, party string, profile model.Profile) error {
	e, err := mm.lookup(ctx, key)
	if err != nil {
		return err
	}
	if err := e.match.ClaimSide(color, party, profile); err != nil {
		return err
	}
	mm.committed(ctx, e, false)
	return nil
}

func (mm *MatchManager) DelegateFrontendAI(ctx context.Context, key string, color rules.Color, party string, ai model.AIMeta) error {
	e, err := mm.lookup(ctx, key)
	if err != nil {
		return err
	}
	if err := e.match.DelegateFrontendAI(color, party, ai); err != nil {
		return err
	}
	mm.committed(ctx, e, false)
	return nil
}

// ReleaseSide hands color back so any party may claim it.
func (mm *MatchManager) ReleaseSide(ctx context.Context, key string, color rules.Color, party string) error {
	e, err := mm.lookup(ctx, key)
	if err != nil {
		return err
	}
	if err := e.match.ReleaseSide(color, party); err != nil {
		return err
	}
	mm.logger.Debug("side released", zap.String("match", key), zap.Stringer("color", color), zap.String("party", party))
	mm.committed(ctx, e, false)
	return nil
}

// committed persists a changed match, pushes it out and archives it once
// decided.
func (mm *MatchManager) committed(ctx context.Context, e *entry, rollback bool) {
	mm.save(ctx, e)
	mm.broadcast(e, rollback)
	mm.finishIfDecided(e)
}

// save writes the match's current record. The record is read under the
// entry's save lock, so saves reach the store in commit order.
func (mm *MatchManager) save(ctx context.Context, e *entry) {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mm.saveWait)
	defer cancel()
	if err := mm.store.SaveMatch(ctx, e.match.Record()); err != nil {
		mm.logger.Error("failed to save match", zap.String("match", e.match.Key), zap.Error(err))
	}
}

func (mm *MatchManager) finishIfDecided(e *entry) {
	result := e.match.Result()
	if !result.Decided() {
		return
	}
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return
	}
	e.finished = true
	e.finishedAt = mm.now()
	finishedAt := e.finishedAt
	e.mu.Unlock()

	mm.logger.Info("match finished",
		zap.String("match", e.match.Key),
		zap.String("status", string(result.Status)),
		zap.String("reason", string(result.Reason)),
		zap.Int("actions", e.match.Len()),
	)
	if mm.archive == nil {
		return
	}
	snap := e.match.Snapshot("")
	row, err := store.NewArchivedMatch(e.match.Record(), result, snap.Position, finishedAt)
	if err == nil {
		err = mm.archive.Write(row)
	}
	if err != nil {
		mm.logger.Error("failed to archive match", zap.String("match", e.match.Key), zap.Error(err))
	}
}

// Subscribe registers conn for pushes and sends it the current state.
// The returned function removes the subscription.
func (mm *MatchManager) Subscribe(ctx context.Context, key, party string, conn Conn, compact bool) (func(), error) {
	e, err := mm.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	sub := &subscriber{party: party, conn: conn, compact: compact}
	e.mu.Lock()
	e.subs[sub] = struct{}{}
	count := len(e.subs)
	e.mu.Unlock()
	mm.logger.Debug("subscriber registered", zap.String("match", key), zap.String("party", party), zap.Int("subscribers", count))

	if err := mm.push(e, sub, false); err != nil {
		mm.drop(e, sub)
		return nil, err
	}
	return func() { mm.drop(e, sub) }, nil
}

// SendState sends conn the state party sees. With rollback set the receiver
// replaces its local history instead of reconciling against it.
func (mm *MatchManager) SendState(ctx context.Context, key, party string, conn Conn, compact, rollback bool) error {
	e, err := mm.lookup(ctx, key)
	if err != nil {
		return err
	}
	return mm.push(e, &subscriber{party: party, conn: conn, compact: compact}, rollback)
}

func (mm *MatchManager) drop(e *entry, sub *subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.subs[sub]; ok {
		delete(e.subs, sub)
		mm.logger.Debug("subscriber removed", zap.String("match", e.match.Key), zap.String("party", sub.party))
	}
}

func (mm *MatchManager) broadcast(e *entry, rollback bool) {
	e.mu.Lock()
	subs := make([]*subscriber, 0, len(e.subs))
	for sub := range e.subs {
		subs = append(subs, sub)
	}
	e.mu.Unlock()

	for _, sub := range subs {
		if err := mm.push(e, sub, rollback); err != nil {
			mm.logger.Warn("failed to push state", zap.String("match", e.match.Key), zap.String("party", sub.party), zap.Error(err))
			mm.drop(e, sub)
		}
	}
}

// push writes the state as sub sees it. The snapshot is taken under the
// subscriber's write lock so a subscriber never receives an older state
// after a newer one.
func (mm *MatchManager) push(e *entry, sub *subscriber, rollback bool) error {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	snap := e.match.Snapshot(sub.party)
	var payload interface{} = ws.NewMatchState(snap, rollback)
	if sub.compact {
		payload = ws.NewCompactMatchState(snap, rollback)
	}
	msg, err := ws.Encode(ws.MessageTypeMatchState, payload)
	if err != nil {
		return err
	}
	return sub.conn.WriteJSON(msg)
}

// Sweep ends every match whose side to move ran out of time by now and evicts
// finished matches nobody watches any more.
func (mm *MatchManager) Sweep(ctx context.Context, now time.Time) {
	mm.mu.RLock()
	entries := make([]*entry, 0, len(mm.matches))
	for _, e := range mm.matches {
		entries = append(entries, e)
	}
	mm.mu.RUnlock()

	for _, e := range entries {
		if e.match.Tick(now) {
			mm.logger.Info("match timed out", zap.String("match", e.match.Key))
			mm.committed(ctx, e, false)
			continue
		}
		e.mu.Lock()
		idle := e.finished && len(e.subs) == 0 && now.Sub(e.finishedAt) >= mm.retention
		e.mu.Unlock()
		if idle {
			mm.mu.Lock()
			delete(mm.matches, e.match.Key)
			mm.mu.Unlock()
			mm.logger.Debug("finished match evicted", zap.String("match", e.match.Key))
		}
	}
}

// Run sweeps on a ticker until ctx is cancelled.
func (mm *MatchManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(mm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			mm.Sweep(ctx, mm.now())
		}
	}
}

// Live is the number of matches held in memory.
func (mm *MatchManager) Live() int {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return len(mm.matches)
}
