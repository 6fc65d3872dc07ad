package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"rotcunit/internal/apiclient"
	"rotcunit/internal/cache"
	"rotcunit/internal/config"
	"rotcunit/internal/model"
	"rotcunit/internal/queue"
	"rotcunit/internal/scan"
	"rotcunit/internal/store"
	"rotcunit/internal/syncer"
)

// The agent is the scanning-station side of attendance: it consumes decoded
// QR frames from the queue, debounces camera repeats, reconciles each frame
// against the cached roster, and registers marks through the sync engine so
// edits stay visible through connectivity gaps.
func main() {
	cfg := config.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()
	logg := logger.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logg.Info("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPoolSize)

	var cacheStore cache.Store
	if cfg.CacheBackend == "redis" {
		cacheStore = cache.NewRedisStore(redisClient.Client)
	} else {
		cacheStore = cache.NewMemory()
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.ScanQueueKey)
	}

	api := apiclient.New(cfg.APIBaseURL, "")
	if err := api.Register(ctx, cfg.StationID); err != nil {
		logg.Fatalw("station registration failed", "station", cfg.StationID, "err", err)
	}

	a := &agent{
		api:    api,
		engine: syncer.New(api, cacheStore, logg, cfg.RosterFreshFor),
		log:    logg,
	}
	debounce := scan.NewDebouncer(cfg.ScanCooldown)

	frames, err := q.Consume(ctx)
	if err != nil {
		logg.Fatalw("queue consume init failed", "err", err)
	}

	logg.Infow("agent started, waiting for frames", "station", cfg.StationID)
	for frame := range frames {
		if !debounce.Allow(frame.Payload) {
			continue
		}
		a.handleFrame(ctx, frame)
	}

	a.engine.Wait()
	logg.Info("agent stopped")
}

type agent struct {
	api    *apiclient.Client
	engine *syncer.Engine
	log    *zap.SugaredLogger

	days        map[string]struct{}
	daysFetched time.Time
}

// knownDay reports whether dayID names a training day, refreshing the day
// list at most once a minute. Stations occasionally replay frames for
// deleted days; those are dropped here instead of round-tripping. When the
// list cannot be fetched the frame is let through and the server decides.
func (a *agent) knownDay(ctx context.Context, dayID string) bool {
	if _, ok := a.days[dayID]; ok {
		return true
	}
	if !a.daysFetched.IsZero() && time.Since(a.daysFetched) < time.Minute {
		return false
	}
	days, err := a.api.Days(ctx)
	if err != nil {
		a.log.Warnw("day list refresh failed", "err", err)
		return true
	}
	a.days = make(map[string]struct{}, len(days))
	for _, d := range days {
		a.days[d.ID] = struct{}{}
	}
	a.daysFetched = time.Now()
	_, ok := a.days[dayID]
	return ok
}

// handleFrame reconciles one accepted frame. When the payload resolves to a
// person on the loaded roster the mark goes through the sync engine
// (optimistic, generation-tracked). Otherwise the unit roster decides: a
// known person's payload is handed to the server for its own parsing, and
// payloads matching nobody are dropped without a network call.
func (a *agent) handleFrame(ctx context.Context, frame queue.Frame) {
	if !a.knownDay(ctx, frame.DayID) {
		a.log.Warnw("frame names unknown training day, dropping", "day", frame.DayID)
		return
	}

	payload := scan.ParseQR(frame.Payload)
	personID := payload.Raw
	if payload.Parsed && payload.StudentID != "" {
		personID = payload.StudentID
	}

	roster := a.engine.Fetch(ctx, frame.DayID, frame.PersonType)
	onRoster := false
	for _, rec := range roster {
		if rec.PersonID == personID {
			onRoster = true
			break
		}
	}

	if !onRoster {
		if !a.onUnitRoster(ctx, personID, frame.PersonType) {
			a.log.Warnw("payload matches nobody on the unit roster, dropping", "day", frame.DayID)
			return
		}
		a.log.Infow("person not on day roster, passing through", "day", frame.DayID)
		if err := a.api.Scan(ctx, frame.DayID, frame.Payload, model.StatusPresent, frame.PersonType); err != nil {
			a.log.Warnw("scan pass-through failed", "day", frame.DayID, "err", err)
		}
		return
	}

	status := model.StatusPresent
	timeIn := frame.ScannedAt.Format("03:04PM")
	_, err := a.engine.Apply(ctx, syncer.Mutation{
		DayID:      frame.DayID,
		PersonID:   personID,
		PersonType: frame.PersonType,
		Status:     &status,
		TimeIn:     &timeIn,
	})
	if err != nil {
		a.log.Warnw("mark apply failed", "day", frame.DayID, "person", personID, "err", err)
		return
	}
	a.log.Infow("scan registered", "day", frame.DayID, "person", personID)
}

// onUnitRoster checks a scanned id against the enrolled profiles. Fetch
// failures err on the side of passing the frame through.
func (a *agent) onUnitRoster(ctx context.Context, personID string, personType model.PersonType) bool {
	members, err := a.api.Roster(ctx, personType)
	if err != nil {
		a.log.Warnw("unit roster fetch failed", "err", err)
		return true
	}
	for _, m := range members {
		if m.ID == personID {
			return true
		}
	}
	return false
}
