// internal/scheduler/scheduler.go
//
// Package scheduler runs named research tasks on their cron schedules. The
// handler callback owns the actual turn; the scheduler only decides when.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/user/fathom/internal/tasks"
)

// Handler is called when a scheduled task fires.
type Handler func(sessionKey, query string)

// Scheduler registers enabled tasks from the store as cron entries.
type Scheduler struct {
	store   *tasks.Store
	handler Handler
	cron    *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule reports whether expr parses under the scheduler's cron
// grammar. Task creation uses it to reject bad schedules up front.
func ValidateSchedule(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}

// New creates a Scheduler backed by the given task store. The handler is
// called each time a scheduled task fires.
func New(store *tasks.Store, handler Handler) *Scheduler {
	return &Scheduler{
		store:   store,
		handler: handler,
		cron:    cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers enabled tasks that have a schedule and starts the cron
// ticker. Tasks with invalid schedules are logged and skipped.
func (s *Scheduler) Start() error {
	list, err := s.store.List()
	if err != nil {
		return err
	}

	for _, task := range list {
		if task.Schedule == "" || !task.Enabled {
			continue
		}

		sessionKey := task.SessionKey
		query := task.Query
		name := task.Name

		_, err := s.cron.AddFunc(task.Schedule, func() {
			slog.Info("cron firing task", "name", name, "session", sessionKey)
			s.handler(sessionKey, query)
		})
		if err != nil {
			slog.Error("invalid cron schedule", "name", name, "schedule", task.Schedule, "error", err)
			continue
		}
		slog.Info("scheduled task", "name", name, "schedule", task.Schedule)
	}

	s.cron.Start()
	return nil
}

// Reload stops the ticker, discards all entries, and starts fresh from the
// store. Used after task edits.
func (s *Scheduler) Reload() error {
	s.cron.Stop()
	s.cron = cron.New(cron.WithParser(cronParser))
	return s.Start()
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
