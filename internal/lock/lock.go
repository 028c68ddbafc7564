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

// Package lock guards the data directory against concurrent mutating commands of several
// processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/newsletter/internal/log"
)

func init() {
	viper.SetDefault("storage.lock.filename", ".blogr/newsletter.lock")
	viper.SetDefault("storage.lock.timeout", "5s")
}

// ErrLocked is returned if another process holds the lock until the timeout.
var ErrLocked = errors.New("the data directory is locked by another process")

const retryDelay = 100 * time.Millisecond

// Lock is an exclusive file lock.
type Lock struct {
	file    *flock.Flock
	timeout time.Duration
}

// New creates a lock from the configuration.
//
// `storage.lock.filename` is the lock file. Its folder is created if necessary.
// `storage.lock.timeout` is how long to wait for another process to release the lock.
func New() (*Lock, error) {
	filename := viper.GetString("storage.lock.filename")

	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return nil, err
	}

	return NewWithFile(filename, viper.GetDuration("storage.lock.timeout")), nil
}

// NewWithFile creates a lock on filename.
func NewWithFile(filename string, timeout time.Duration) *Lock {
	return &Lock{
		file:    flock.New(filename),
		timeout: timeout,
	}
}

// Acquire waits until the lock is held or the timeout elapsed.
func (l *Lock) Acquire(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ok, err := l.file.TryLockContext(ctx, retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrLocked, l.file.Path())
		}

		return fmt.Errorf("could not acquire lock %q: %w", l.file.Path(), err)
	}

	if !ok {
		return fmt.Errorf("%w: %s", ErrLocked, l.file.Path())
	}

	log.DebugContext(ctx).Str("filename", l.file.Path()).Msg("lock acquired")
	return nil
}

// Release releases the lock. Releasing an unheld lock does nothing.
func (l *Lock) Release() error {
	if !l.file.Locked() {
		return nil
	}

	return l.file.Unlock()
}

// With runs fn while holding the lock.
func (l *Lock) With(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}

	defer func() {
		if err := l.Release(); err != nil {
			log.WarnContext(ctx).Err(err).Msg("could not release lock")
		}
	}()

	return fn(ctx)
}
