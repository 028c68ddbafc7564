// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lukasdietrich/newsletter/internal/log"
)

// Job is run by the scheduler.
type Job func(ctx context.Context) error

// Scheduler runs a job periodically next to the api server. Runs never overlap.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	name     string
	job      Job
	mu       sync.Mutex
}

// NewScheduler creates a scheduler for a standard cron expression or a descriptor like
// "@every 15m".
func NewScheduler(expr, name string, job Job) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	s := &Scheduler{
		cron:     cron.New(),
		schedule: schedule,
		name:     name,
		job:      job,
	}

	s.cron.Schedule(schedule, cron.FuncJob(s.run))
	return s, nil
}

// Start runs the scheduler until ctx is cancelled. Stopping waits for a running job.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()

	log.Info().
		Str("job", s.name).
		Time("next", s.Next(time.Now())).
		Msg("scheduler started")

	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()

		log.Info().Str("job", s.name).Msg("scheduler stopped")
	}()
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

func (s *Scheduler) run() {
	if !s.mu.TryLock() {
		log.Warn().Str("job", s.name).Msg("previous run still in progress, skipping")
		return
	}

	defer s.mu.Unlock()

	ctx := log.WithCommand(context.Background(), s.name)

	if err := s.job(ctx); err != nil {
		log.ErrorContext(ctx).Err(err).Msg("scheduled job failed")
		return
	}

	log.DebugContext(ctx).Msg("scheduled job finished")
}
