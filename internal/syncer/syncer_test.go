package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rotcunit/internal/cache"
	"rotcunit/internal/model"
)

type fakeAPI struct {
	mu           sync.Mutex
	records      []model.AttendanceRecord
	recordsErr   error
	recordsCalls int

	marks    []model.AttendanceRecord
	markErr  error
	markGate chan chan error
}

func (f *fakeAPI) Records(ctx context.Context, dayID string, personType model.PersonType) ([]model.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordsCalls++
	if f.recordsErr != nil {
		return nil, f.recordsErr
	}
	out := make([]model.AttendanceRecord, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeAPI) Mark(ctx context.Context, rec model.AttendanceRecord) error {
	f.mu.Lock()
	gate := f.markGate
	f.marks = append(f.marks, rec)
	err := f.markErr
	f.mu.Unlock()

	if gate != nil {
		done := make(chan error)
		gate <- done
		return <-done
	}
	return err
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recordsCalls
}

func testRecords() []model.AttendanceRecord {
	return []model.AttendanceRecord{
		{TrainingDayID: "d1", PersonID: "c1", PersonType: model.PersonCadet, Status: model.StatusUnmarked},
		{TrainingDayID: "d1", PersonID: "c2", PersonType: model.PersonCadet, Status: model.StatusUnmarked},
	}
}

func newEngine(api API, store cache.Store, window time.Duration) *Engine {
	return New(api, store, zap.NewNop().Sugar(), window)
}

func TestFetchPopulatesCache(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{records: testRecords()}
	store := cache.NewMemory()
	e := newEngine(api, store, 10*time.Second)

	roster := e.Fetch(ctx, "d1", model.PersonCadet)
	require.Len(t, roster, 2)
	require.Equal(t, StateSynced, roster[0].State)
	require.Equal(t, 1, api.calls())

	entry, err := store.Get(ctx, NamespaceAttendance, "d1_cadet")
	require.NoError(t, err)
	require.NotNil(t, entry)
}

func TestFetchFreshCacheSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{records: testRecords()}
	store := cache.NewMemory()
	window := 100 * time.Millisecond
	e := newEngine(api, store, window)

	e.Fetch(ctx, "d1", model.PersonCadet)
	require.Equal(t, 1, api.calls())

	// Half a window later the cached roster is still fresh.
	time.Sleep(window / 2)
	roster := e.Fetch(ctx, "d1", model.PersonCadet)
	require.Len(t, roster, 2)
	require.Equal(t, 1, api.calls(), "fresh cache must not hit the network")

	// Two windows after the write it is stale and must revalidate.
	time.Sleep(2 * window)
	e.Fetch(ctx, "d1", model.PersonCadet)
	require.Equal(t, 2, api.calls())
}

func TestFetchNetworkFailureServesLastKnownGood(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{records: testRecords()}
	store := cache.NewMemory()
	e := newEngine(api, store, time.Nanosecond)

	e.Fetch(ctx, "d1", model.PersonCadet)

	api.mu.Lock()
	api.recordsErr = errors.New("network down")
	api.mu.Unlock()

	roster := e.Fetch(ctx, "d1", model.PersonCadet)
	require.Len(t, roster, 2, "previous roster keeps serving through outages")
}

func TestApplyOptimisticThenSynced(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{records: testRecords(), markGate: make(chan chan error, 1)}
	store := cache.NewMemory()
	e := newEngine(api, store, 10*time.Second)
	e.Fetch(ctx, "d1", model.PersonCadet)

	// Derived views cached under the person-type tag.
	require.NoError(t, store.Put(ctx, "grading", "cadets_list", 1, "cadet"))
	require.NoError(t, store.Put(ctx, "admin", "cadets_list", 2, "cadet"))

	status := model.StatusPresent
	rec, err := e.Apply(ctx, Mutation{
		DayID: "d1", PersonID: "c1", PersonType: model.PersonCadet, Status: &status,
	})
	require.NoError(t, err)
	require.Equal(t, StatePending, rec.State)
	require.Equal(t, model.StatusPresent, rec.Status)

	// The optimistic value is already in the cache before the persist lands.
	entry, err := store.Get(ctx, NamespaceAttendance, "d1_cadet")
	require.NoError(t, err)
	var cached []TrackedRecord
	require.NoError(t, entry.Decode(&cached))
	require.Equal(t, model.StatusPresent, cached[0].Status)
	require.Equal(t, StatePending, cached[0].State)

	done := <-api.markGate
	done <- nil
	e.Wait()

	snap := e.Snapshot("d1", model.PersonCadet)
	require.Equal(t, StateSynced, snap[0].State)

	// Cross-module invalidation: tagged views cleared, the day's roster kept.
	gone, _ := store.Get(ctx, "grading", "cadets_list")
	require.Nil(t, gone)
	gone, _ = store.Get(ctx, "admin", "cadets_list")
	require.Nil(t, gone)
	kept, _ := store.Get(ctx, NamespaceAttendance, "d1_cadet")
	require.NotNil(t, kept)
}

func TestApplyFailureFlagsRecord(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{records: testRecords(), markErr: errors.New("boom")}
	store := cache.NewMemory()
	e := newEngine(api, store, 10*time.Second)
	e.Fetch(ctx, "d1", model.PersonCadet)

	status := model.StatusLate
	_, err := e.Apply(ctx, Mutation{
		DayID: "d1", PersonID: "c1", PersonType: model.PersonCadet, Status: &status,
	})
	require.NoError(t, err)
	e.Wait()

	snap := e.Snapshot("d1", model.PersonCadet)
	require.Equal(t, StateFailed, snap[0].State)
	require.Equal(t, model.StatusLate, snap[0].Status, "optimistic value stays visible, flagged unsynced")

	// Retry after the server recovers.
	api.mu.Lock()
	api.markErr = nil
	api.mu.Unlock()
	require.NoError(t, e.Retry(ctx, "d1", "c1", model.PersonCadet))
	e.Wait()

	snap = e.Snapshot("d1", model.PersonCadet)
	require.Equal(t, StateSynced, snap[0].State)
}

func TestStaleResponseNeverOverridesNewerEdit(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{records: testRecords(), markGate: make(chan chan error, 2)}
	store := cache.NewMemory()
	e := newEngine(api, store, 10*time.Second)
	e.Fetch(ctx, "d1", model.PersonCadet)

	late := model.StatusLate
	present := model.StatusPresent

	_, err := e.Apply(ctx, Mutation{DayID: "d1", PersonID: "c1", PersonType: model.PersonCadet, Status: &late})
	require.NoError(t, err)
	first := <-api.markGate

	_, err = e.Apply(ctx, Mutation{DayID: "d1", PersonID: "c1", PersonType: model.PersonCadet, Status: &present})
	require.NoError(t, err)
	second := <-api.markGate

	// Second round trip completes before the first.
	second <- nil
	first <- nil
	e.Wait()

	snap := e.Snapshot("d1", model.PersonCadet)
	require.Equal(t, model.StatusPresent, snap[0].Status)
	require.Equal(t, StateSynced, snap[0].State, "stale first response must not touch the newer generation")
}

func TestConcurrentWritesLeaveNewestStateCached(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{records: testRecords()}
	store := cache.NewMemory()
	e := newEngine(api, store, 10*time.Second)
	e.Fetch(ctx, "d1", model.PersonCadet)

	// Persist completions race later Applies for the cache entry; the
	// serialized snapshot-then-put must leave the newest generation cached.
	statuses := []model.Status{model.StatusPresent, model.StatusLate, model.StatusAbsent, model.StatusExcused}
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				status := statuses[(g+i)%len(statuses)]
				if _, err := e.Apply(ctx, Mutation{
					DayID: "d1", PersonID: "c1", PersonType: model.PersonCadet, Status: &status,
				}); err != nil {
					t.Error(err)
				}
			}
		}(g)
	}
	wg.Wait()
	e.Wait()

	entry, err := store.Get(ctx, NamespaceAttendance, "d1_cadet")
	require.NoError(t, err)
	require.NotNil(t, entry)
	var cached []TrackedRecord
	require.NoError(t, entry.Decode(&cached))

	snap := e.Snapshot("d1", model.PersonCadet)
	require.Equal(t, snap[0].Generation, cached[0].Generation, "cache must hold the final generation, never an older snapshot")
	require.Equal(t, snap[0].Status, cached[0].Status)
}

func TestApplyUnknownPerson(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{records: testRecords()}
	e := newEngine(api, cache.NewMemory(), 10*time.Second)
	e.Fetch(ctx, "d1", model.PersonCadet)

	status := model.StatusPresent
	_, err := e.Apply(ctx, Mutation{DayID: "d1", PersonID: "ghost", PersonType: model.PersonCadet, Status: &status})
	require.ErrorIs(t, err, ErrUnknownRecord)
}

func TestRefetchKeepsUnsettledEdits(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{records: testRecords(), markErr: errors.New("offline")}
	store := cache.NewMemory()
	e := newEngine(api, store, time.Nanosecond)
	e.Fetch(ctx, "d1", model.PersonCadet)

	status := model.StatusExcused
	_, err := e.Apply(ctx, Mutation{DayID: "d1", PersonID: "c2", PersonType: model.PersonCadet, Status: &status})
	require.NoError(t, err)
	e.Wait()

	// Server still reports unmarked; the failed local edit must survive the refetch.
	roster := e.Fetch(ctx, "d1", model.PersonCadet)
	var c2 *TrackedRecord
	for i := range roster {
		if roster[i].PersonID == "c2" {
			c2 = &roster[i]
		}
	}
	require.NotNil(t, c2)
	require.Equal(t, model.StatusExcused, c2.Status)
	require.Equal(t, StateFailed, c2.State)
}
