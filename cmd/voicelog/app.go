package main

import (
	"fmt"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"voicelog/internal/calendar"
	"voicelog/internal/client"
	"voicelog/internal/clock"
	"voicelog/internal/config"
	"voicelog/internal/database"
	"voicelog/internal/device"
	"voicelog/internal/logger"
	"voicelog/internal/repository"
	"voicelog/internal/service"
)

// app is the object graph shared by every command.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	clock    clock.Clock
	cal      *calendar.Calendar
	deviceID string

	entryRepo   *repository.EntryRepository
	sessionRepo *repository.SessionRepository
	sessions    *service.SessionService
}

func openApp(cfg *config.Config, logLevel string) (*app, error) {
	if logLevel == "" {
		logLevel = cfg.Log.Level
	}
	log, err := logger.New(logLevel, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	loc, err := cfg.CalendarLocation()
	if err != nil {
		return nil, err
	}
	weekend, err := cfg.WeekendDays()
	if err != nil {
		return nil, err
	}

	db, err := database.New(cfg.StoragePath, log.Logger)
	if err != nil {
		return nil, err
	}

	deviceID, err := device.NewDeviceManager(cfg.DataDir(), log.Logger).GetOrGenerateDeviceID(cfg.Device.ID)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	clk := clock.Real{}
	a := &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		clock:    clk,
		cal:      calendar.New(calendar.WithClock(clk), calendar.WithLocation(loc), calendar.WithWeekend(weekend...)),
		deviceID: deviceID,
	}
	a.entryRepo = repository.NewEntryRepository(db.DB, clk, cfg.Capture.DefaultDurationMinutes, log.Logger.Named("entries"))
	a.sessionRepo = repository.NewSessionRepository(db.DB, clk, log.Logger.Named("sessions"))
	a.sessions = service.NewSessionService(a.sessionRepo, a.entryRepo, a.cal, clk, log.Logger.Named("sessions"))
	return a, nil
}

func (a *app) entryService(notifier service.AppendNotifier, online service.OnlineChecker) *service.EntryService {
	return service.NewEntryService(a.entryRepo, notifier, online, a.cal, a.log.Logger.Named("entries"))
}

func (a *app) apiClient() *client.APIClient {
	c := client.NewAPIClient(a.cfg.Backend.BaseURL, a.cfg.Backend.APIKey, a.cfg.Backend.Timeout, a.log.Logger.Named("client"))
	c.SetDeviceID(a.deviceID)
	return c
}

// lock takes the single-instance lock that keeps two processes from
// draining the same store.
func (a *app) lock() (*flock.Flock, error) {
	lock := flock.New(a.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another voicelog agent holds %s", a.cfg.LockPath())
	}
	return lock, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Error("Failed to close database", zap.Error(err))
	}
	_ = a.log.Sync()
}
