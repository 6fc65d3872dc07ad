// Package syncer keeps a station's local view of attendance rosters
// consistent with the server of record under intermittent connectivity.
//
// Reads are stale-while-revalidate against a tagged cache. Writes are
// optimistic: the local record and cache are updated immediately and the
// full-record persist runs asynchronously. Every record carries an explicit
// sync state (synced, pending, failed) and a generation counter; only the
// response for a record's latest generation may transition its state, so
// out-of-order responses can never override a newer edit.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"rotcunit/internal/cache"
	"rotcunit/internal/metrics"
	"rotcunit/internal/model"
)

// SyncState describes how a local record relates to the server of record.
type SyncState string

const (
	StateSynced  SyncState = "synced"
	StatePending SyncState = "pending"
	StateFailed  SyncState = "failed"
)

// NamespaceAttendance is the cache namespace for per-day rosters.
const NamespaceAttendance = "attendance_by_day"

// ErrUnknownRecord is returned when a mutation names a person not on the
// loaded roster.
var ErrUnknownRecord = errors.New("record not on loaded roster")

// TrackedRecord is an attendance record plus its local sync bookkeeping.
type TrackedRecord struct {
	model.AttendanceRecord
	State      SyncState `json:"state"`
	Generation uint64    `json:"generation"`
}

// API is the slice of the server client the engine needs.
type API interface {
	Records(ctx context.Context, dayID string, personType model.PersonType) ([]model.AttendanceRecord, error)
	Mark(ctx context.Context, rec model.AttendanceRecord) error
}

// Mutation is one field change for one person on one day. Nil fields are
// left untouched.
type Mutation struct {
	DayID      string
	PersonID   string
	PersonType model.PersonType
	Status     *model.Status
	TimeIn     *string
	TimeOut    *string
	Remarks    *string
}

// Engine is the per-station sync engine.
type Engine struct {
	api            API
	store          cache.Store
	log            *zap.SugaredLogger
	window         time.Duration
	persistTimeout time.Duration

	mu      sync.Mutex
	rosters map[string][]*TrackedRecord

	// cacheMu serializes snapshot-then-put pairs so a persist's trailing
	// cache write cannot publish an older snapshot over a newer Apply's.
	cacheMu sync.Mutex

	wg  sync.WaitGroup
	now func() time.Time
}

// New creates an engine. window is the roster freshness window.
func New(api API, store cache.Store, log *zap.SugaredLogger, window time.Duration) *Engine {
	if window <= 0 {
		window = 30 * time.Second
	}
	return &Engine{
		api:            api,
		store:          store,
		log:            log,
		window:         window,
		persistTimeout: 15 * time.Second,
		rosters:        make(map[string][]*TrackedRecord),
		now:            time.Now,
	}
}

func rosterKey(dayID string, personType model.PersonType) string {
	return dayID + "_" + string(personType)
}

// Fetch returns the roster for (dayID, personType). A cached copy is served
// immediately; the network is consulted only when the cache is missing or
// older than the freshness window. Network failures are logged and the
// last-known-good roster keeps serving. Records with local edits still in
// flight (pending or failed) are never overwritten by fetched data.
func (e *Engine) Fetch(ctx context.Context, dayID string, personType model.PersonType) []TrackedRecord {
	key := rosterKey(dayID, personType)

	entry, err := e.store.Get(ctx, NamespaceAttendance, key)
	if err != nil {
		e.log.Warnw("cache read failed", "key", key, "err", err)
		entry = nil
	}
	if entry != nil {
		var cached []TrackedRecord
		if err := entry.Decode(&cached); err == nil {
			e.load(key, cached)
		}
		if entry.FreshWithin(e.window, e.now()) {
			return e.Snapshot(dayID, personType)
		}
	}

	fetched, err := e.api.Records(ctx, dayID, personType)
	if err != nil {
		e.log.Warnw("roster fetch failed, serving last known good", "day", dayID, "type", personType, "err", err)
		return e.Snapshot(dayID, personType)
	}

	tracked := make([]TrackedRecord, len(fetched))
	for i, rec := range fetched {
		tracked[i] = TrackedRecord{AttendanceRecord: rec, State: StateSynced}
	}
	e.load(key, tracked)
	e.writeCache(ctx, dayID, personType)
	return e.Snapshot(dayID, personType)
}

// Snapshot returns a copy of the locally tracked roster.
func (e *Engine) Snapshot(dayID string, personType model.PersonType) []TrackedRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	roster := e.rosters[rosterKey(dayID, personType)]
	out := make([]TrackedRecord, len(roster))
	for i, r := range roster {
		out[i] = *r
	}
	return out
}

// Apply performs an optimistic mutation: the local record and the cache are
// updated before the persist call is issued. The persist runs in the
// background; its outcome only lands if no newer mutation superseded it.
func (e *Engine) Apply(ctx context.Context, mut Mutation) (TrackedRecord, error) {
	key := rosterKey(mut.DayID, mut.PersonType)

	e.mu.Lock()
	rec := e.find(key, mut.PersonID)
	if rec == nil {
		e.mu.Unlock()
		return TrackedRecord{}, ErrUnknownRecord
	}
	if mut.Status != nil {
		rec.Status = *mut.Status
	}
	if mut.TimeIn != nil {
		rec.TimeIn = *mut.TimeIn
	}
	if mut.TimeOut != nil {
		rec.TimeOut = *mut.TimeOut
	}
	if mut.Remarks != nil {
		rec.Remarks = *mut.Remarks
	}
	rec.UpdatedAt = e.now()
	rec.Generation++
	rec.State = StatePending
	gen := rec.Generation
	payload := rec.AttendanceRecord
	snapshot := *rec
	e.updateGauges()
	e.mu.Unlock()

	e.writeCache(ctx, mut.DayID, mut.PersonType)

	e.wg.Add(1)
	go e.persist(payload, gen)

	return snapshot, nil
}

// Wait blocks until all in-flight persists complete. Used on shutdown and
// in tests.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// persist pushes the full record state and settles the record's sync state,
// unless a newer generation superseded this write.
func (e *Engine) persist(rec model.AttendanceRecord, gen uint64) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), e.persistTimeout)
	defer cancel()

	start := e.now()
	err := e.api.Mark(ctx, rec)
	metrics.MarkLatency.Observe(e.now().Sub(start).Seconds())

	key := rosterKey(rec.TrainingDayID, rec.PersonType)

	e.mu.Lock()
	cur := e.find(key, rec.PersonID)
	if cur == nil || cur.Generation != gen {
		// A newer mutation owns this record now; this outcome is stale.
		e.mu.Unlock()
		return
	}
	if err != nil {
		cur.State = StateFailed
	} else {
		cur.State = StateSynced
	}
	e.updateGauges()
	e.mu.Unlock()

	if err != nil {
		e.log.Warnw("mark persist failed, record flagged unsynced",
			"day", rec.TrainingDayID, "person", rec.PersonID, "err", err)
		return
	}

	// Derived views cache under the person-type tag; the just-rewritten
	// attendance entry for this day is tagged per-day and stays.
	bg, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := e.store.InvalidateTag(bg, string(rec.PersonType)); err != nil {
		e.log.Warnw("cross-module invalidation failed", "tag", rec.PersonType, "err", err)
	}
	e.writeCache(bg, rec.TrainingDayID, rec.PersonType)
}

// Retry re-issues the persist for a record stuck in the failed state.
func (e *Engine) Retry(ctx context.Context, dayID, personID string, personType model.PersonType) error {
	key := rosterKey(dayID, personType)

	e.mu.Lock()
	rec := e.find(key, personID)
	if rec == nil {
		e.mu.Unlock()
		return ErrUnknownRecord
	}
	if rec.State != StateFailed {
		e.mu.Unlock()
		return nil
	}
	rec.State = StatePending
	gen := rec.Generation
	payload := rec.AttendanceRecord
	e.updateGauges()
	e.mu.Unlock()

	e.wg.Add(1)
	go e.persist(payload, gen)
	return nil
}

// load merges incoming records into local state. Records with unsettled
// local edits keep their local values.
func (e *Engine) load(key string, incoming []TrackedRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing := make(map[string]*TrackedRecord)
	for _, r := range e.rosters[key] {
		existing[r.PersonID] = r
	}

	roster := make([]*TrackedRecord, 0, len(incoming))
	for _, in := range incoming {
		if cur, ok := existing[in.PersonID]; ok && cur.State != StateSynced {
			roster = append(roster, cur)
			continue
		}
		cp := in
		roster = append(roster, &cp)
	}
	e.rosters[key] = roster
	e.updateGauges()
}

// writeCache mirrors the local roster into the cache with a fresh timestamp.
// Attendance entries are tagged per day only, so person-type invalidation
// never clears the roster that was just optimistically updated. The snapshot
// and the put run under cacheMu: concurrent writers may land in either
// order, but whichever puts last also snapshotted last, so the cache always
// ends up holding the newest local state.
func (e *Engine) writeCache(ctx context.Context, dayID string, personType model.PersonType) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	snapshot := e.Snapshot(dayID, personType)
	key := rosterKey(dayID, personType)
	if err := e.store.Put(ctx, NamespaceAttendance, key, snapshot, "attendance:"+dayID); err != nil {
		e.log.Warnw("cache write failed", "key", key, "err", err)
	}
}

// find locates a record by person. Caller holds mu.
func (e *Engine) find(key, personID string) *TrackedRecord {
	for _, r := range e.rosters[key] {
		if r.PersonID == personID {
			return r
		}
	}
	return nil
}

// updateGauges recounts records per sync state. Caller holds mu.
func (e *Engine) updateGauges() {
	counts := map[SyncState]int{StateSynced: 0, StatePending: 0, StateFailed: 0}
	for _, roster := range e.rosters {
		for _, r := range roster {
			counts[r.State]++
		}
	}
	for state, n := range counts {
		metrics.RecordsByState.WithLabelValues(string(state)).Set(float64(n))
	}
}
