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

package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/lukasdietrich/newsletter/internal/log"
)

const window = time.Minute

// Clock abstracts time for the rate limiter.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// RateLimiter admits at most perMinute sends within any sliding window of 60 seconds.
type RateLimiter struct {
	mu        sync.Mutex
	clock     Clock
	perMinute int
	sends     []time.Time
}

// NewRateLimiter creates a limiter. A perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute int, clock Clock) *RateLimiter {
	if clock == nil {
		clock = SystemClock
	}

	return &RateLimiter{
		clock:     clock,
		perMinute: perMinute,
	}
}

// Wait blocks until the next send is admitted and records it. When the window is full it sleeps
// for the remainder of the oldest send's window. The sleep is not interrupted by cancellation.
func (r *RateLimiter) Wait(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.perMinute <= 0 {
		return
	}

	now := r.clock.Now()
	r.expire(now)

	if len(r.sends) >= r.perMinute {
		wait := window - now.Sub(r.sends[0])

		if wait > 0 {
			log.InfoContext(ctx).
				Dur("wait", wait).
				Int("perMinute", r.perMinute).
				Msg("rate limit reached, waiting")

			r.clock.Sleep(wait)
		}

		now = r.clock.Now()
		r.expire(now)
	}

	r.sends = append(r.sends, now)
}

// expire drops every send older than the window.
func (r *RateLimiter) expire(now time.Time) {
	cutoff := now.Add(-window)

	i := 0
	for i < len(r.sends) && !r.sends[i].After(cutoff) {
		i++
	}

	r.sends = r.sends[i:]
}
