// Package reminder runs the shift reminder engine: on a fixed tick it finds
// sessions still open at the end of a shift, reminds their owners once per
// shift occurrence, and sends admins one aggregated alert.
package reminder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goodtune/attendance/internal/attendance"
	"github.com/goodtune/attendance/internal/clock"
	"github.com/goodtune/attendance/internal/metrics"
	"github.com/goodtune/attendance/internal/notify"
	"github.com/goodtune/attendance/internal/storage"
	"github.com/goodtune/attendance/internal/users"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const (
	defaultInterval  = 15 * time.Minute
	defaultWindow    = 75 * time.Minute
	defaultMarkerTTL = 48 * time.Hour
)

// Reminded is one user reminded during a tick.
type Reminded struct {
	UserID    int64
	Name      string
	Shift     string
	OpenSince time.Time
	Delivered bool
}

// TickResult summarizes one RunOnce.
type TickResult struct {
	Shifts      []string
	Open        int
	Reminded    []Reminded
	AdminAlerts int
}

// Engine is the shift reminder loop.
type Engine struct {
	cfg      Config
	ledger   *attendance.Ledger
	markers  storage.ReminderStore
	users    *users.Directory
	notifier notify.Notifier
	clock    clock.Clock
	sent     *lru.Cache[storage.ReminderKey, struct{}]
	logger   zerolog.Logger

	tickMu   sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewEngine creates a reminder engine. It does nothing until Start or RunOnce.
func NewEngine(cfg Config, ledger *attendance.Ledger, markers storage.ReminderStore, directory *users.Directory, notifier notify.Notifier, clk clock.Clock, logger zerolog.Logger) (*Engine, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.MarkerTTL <= 0 {
		cfg.MarkerTTL = defaultMarkerTTL
	}
	if cfg.DedupCacheSize <= 0 {
		cfg.DedupCacheSize = 1024
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	sent, err := lru.New[storage.ReminderKey, struct{}](cfg.DedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:      cfg,
		ledger:   ledger,
		markers:  markers,
		users:    directory,
		notifier: notifier,
		clock:    clk,
		sent:     sent,
		logger:   logger.With().Str("component", "reminder").Logger(),
		stopChan: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins ticking. The first tick runs immediately.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.run()

	names := make([]string, len(e.cfg.Shifts))
	for i, s := range e.cfg.Shifts {
		names[i] = s.Name
	}
	e.logger.Info().
		Dur("interval", e.cfg.Interval).
		Dur("window", e.cfg.Window).
		Strs("shifts", names).
		Msg("Reminder engine started")
}

// Stop signals the loop to exit and waits for an in-flight tick until ctx is done,
// at which point the tick is cancelled.
func (e *Engine) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.stopChan) })

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		e.logger.Info().Msg("Reminder engine stopped")
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		e.logger.Warn().Msg("Reminder engine stopped before tick completed")
		return ctx.Err()
	}
}

func (e *Engine) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.tick()
	for {
		select {
		case <-ticker.C:
			e.tick()
		case <-e.stopChan:
			return
		}
	}
}

func (e *Engine) tick() {
	select {
	case <-e.stopChan:
		return
	default:
	}

	if _, err := e.RunOnce(e.ctx, e.clock.Now()); err != nil {
		e.logger.Error().Err(err).Msg("Reminder tick failed")
	}
}

// RunOnce evaluates every shift at now and sends due reminders.
// Ticks are serialized; concurrent callers wait.
func (e *Engine) RunOnce(ctx context.Context, now time.Time) (*TickResult, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	zone := e.ledger.Zone()
	now = zone.In(now)
	result := &TickResult{}

	occurrences := Ending(e.cfg.Shifts, zone, now, e.cfg.Window)
	if len(occurrences) == 0 {
		metrics.ReminderTicks.WithLabelValues("idle").Inc()
		e.logger.Debug().Time("now", now).Msg("No shift ending")
		return result, nil
	}

	for _, occ := range occurrences {
		result.Shifts = append(result.Shifts, occ.Shift.Name)
		if err := e.remindShift(ctx, occ, result); err != nil {
			metrics.ReminderTicks.WithLabelValues("error").Inc()
			return result, err
		}
	}

	metrics.OpenSessions.Set(float64(result.Open))
	metrics.ReminderTicks.WithLabelValues("ok").Inc()
	return result, nil
}

func (e *Engine) remindShift(ctx context.Context, occ Occurrence, result *TickResult) error {
	zone := e.ledger.Zone()
	shiftDay := occ.Day(zone)
	endDay := zone.StartOfDay(occ.End)

	var open []storage.DailyRecord
	for _, day := range []time.Time{endDay, zone.AddDays(endDay, -1)} {
		records, err := e.ledger.OpenFor(ctx, day)
		if err != nil {
			return fmt.Errorf("list open sessions for %s: %w", zone.DayKey(day), err)
		}
		open = append(open, records...)
	}
	result.Open += len(open)

	log := e.logger.With().Str("shift", occ.Shift.Name).Str("day", shiftDay).Logger()
	log.Debug().Int("open", len(open)).Msg("Shift ending")

	type candidate struct {
		key    storage.ReminderKey
		record storage.DailyRecord
		since  time.Time
	}

	var pending []candidate
	queued := make(map[int64]bool)
	for _, record := range open {
		since, ok := record.OpenSince()
		if !ok || queued[record.UserID] {
			continue
		}

		key := storage.ReminderKey{UserID: record.UserID, Shift: occ.Shift.Name, Day: shiftDay}
		done, err := e.reminded(ctx, key)
		if err != nil {
			log.Warn().Err(err).Int64("user_id", record.UserID).Msg("Failed to check reminder marker")
			continue
		}
		if !done {
			queued[record.UserID] = true
			pending = append(pending, candidate{key: key, record: record, since: since})
		}
	}
	if len(pending) == 0 {
		return nil
	}

	// One alert per shift occurrence; UserID 0 never names a user.
	alertKey := storage.ReminderKey{Shift: occ.Shift.Name, Day: shiftDay}
	alertSent, err := e.reminded(ctx, alertKey)
	if err != nil {
		return fmt.Errorf("check alert marker: %w", err)
	}

	// Admins are resolved before anything is sent or marked so a failed
	// lookup leaves the whole shift for the next tick.
	var admins []int64
	if !alertSent {
		admins, err = e.users.AdminIDs(ctx)
		if err != nil {
			return fmt.Errorf("load admins: %w", err)
		}
	}

	var newly []Reminded
	for _, c := range pending {
		name := e.users.DisplayName(ctx, c.record.UserID)
		r := Reminded{
			UserID:    c.record.UserID,
			Name:      name,
			Shift:     occ.Shift.Name,
			OpenSince: c.since,
		}

		if err := e.notifier.Send(ctx, c.record.UserID, notify.KindReminder, userReminder(name, c.since, occ.Shift)); err != nil {
			// Unmarked, so the next tick in the window retries the user
			metrics.NotificationFailures.WithLabelValues(string(notify.KindReminder)).Inc()
			log.Warn().Err(err).Int64("recipient", c.record.UserID).Msg("Failed to send checkout reminder")
		} else {
			r.Delivered = true
			metrics.RemindersSent.WithLabelValues(occ.Shift.Name, "user").Inc()
			log.Info().Int64("user_id", c.record.UserID).Time("open_since", c.since).Msg("Sent checkout reminder")
			e.markSent(ctx, c.key, log)
		}
		newly = append(newly, r)
	}

	result.Reminded = append(result.Reminded, newly...)
	if alertSent {
		return nil
	}

	delivered, _ := notify.Broadcast(ctx, e.notifier, log, admins, notify.KindAdminAlert, adminAlert(occ.Shift, newly))
	if delivered > 0 {
		metrics.RemindersSent.WithLabelValues(occ.Shift.Name, "admin").Add(float64(delivered))
	}
	result.AdminAlerts += delivered
	e.markSent(ctx, alertKey, log)
	log.Info().Int("users", len(newly)).Int("admins", delivered).Msg("Sent checkout alert")

	return nil
}

// reminded reports whether key was already handled, checking the in-process
// cache before the persisted marker.
func (e *Engine) reminded(ctx context.Context, key storage.ReminderKey) (bool, error) {
	if e.sent.Contains(key) {
		return true, nil
	}
	sent, err := e.markers.WasSent(ctx, key)
	if err != nil {
		return false, err
	}
	if sent {
		e.sent.Add(key, struct{}{})
	}
	return sent, nil
}

// markSent persists the marker. The cache entry is added even when the write
// fails so this process does not repeat the message.
func (e *Engine) markSent(ctx context.Context, key storage.ReminderKey, log zerolog.Logger) {
	e.sent.Add(key, struct{}{})
	if _, err := e.markers.MarkSent(ctx, key, e.cfg.MarkerTTL); err != nil {
		log.Warn().Err(err).Str("marker", key.String()).Msg("Failed to record reminder marker")
	}
}

func userReminder(name string, since time.Time, shift Shift) string {
	return fmt.Sprintf("⏰ *Checkout Reminder*\n\n"+
		"Hi %s, it looks like you're still checked in from %s.\n\n"+
		"The %s is ending. If you're done with your shift, please don't forget to check out.",
		name, since.Format("15:04:05"), shift.Label())
}

func adminAlert(shift Shift, reminded []Reminded) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ *Checkout Alert*\n\nThe %s has ended, but the following users have not checked out:\n\n", shift.Label())
	for _, r := range reminded {
		fmt.Fprintf(&b, "• %s (checked in at %s)\n", r.Name, r.OpenSince.Format("15:04:05"))
	}
	return b.String()
}
