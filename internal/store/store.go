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

// Package store implements the subscriber store. It is the only component allowed to mutate
// subscribers and it maintains the invariant, that a subscriber has an approval time if and only
// if it is not pending.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lukasdietrich/newsletter/internal/database"
	"github.com/lukasdietrich/newsletter/internal/log"
	"github.com/lukasdietrich/newsletter/internal/models"
)

var (
	// ErrDuplicate is returned when adding a subscriber with an email already known to the store.
	ErrDuplicate = errors.New("subscriber already exists")
	// ErrNotFound is returned when a subscriber does not exist.
	ErrNotFound = errors.New("subscriber not found")
)

// Store is the persistent table of subscribers.
type Store struct {
	conn database.Conn
	dao  database.SubscriberDao
	now  func() time.Time
}

// New creates a Store on top of an open connection.
func New(conn database.Conn, dao database.SubscriberDao) *Store {
	return &Store{
		conn: conn,
		dao:  dao,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Add inserts a new subscriber and returns its id. The status defaults to pending and the
// subscription time defaults to now. ErrDuplicate is returned if the email already exists.
func (s *Store) Add(ctx context.Context, subscriber *models.SubscriberEntity) (int64, error) {
	if subscriber.Status == "" {
		subscriber.Status = models.StatusPending
	}

	if subscriber.SubscribedAt.IsZero() {
		subscriber.SubscribedAt = s.now()
	} else {
		subscriber.SubscribedAt = subscriber.SubscribedAt.UTC()
	}

	subscriber.ApprovedAt = s.approvalTime(subscriber.Status, subscriber.ApprovedAt)

	if err := s.dao.Insert(ctx, s.conn, subscriber); err != nil {
		if database.IsErrUnique(err) {
			return 0, fmt.Errorf("%w: %q", ErrDuplicate, subscriber.Email)
		}

		return 0, fmt.Errorf("could not add subscriber %q: %w", subscriber.Email, err)
	}

	log.DebugContext(ctx).
		Int64("id", subscriber.ID).
		Str("email", subscriber.Email).
		Str("status", string(subscriber.Status)).
		Msg("subscriber added")

	return subscriber.ID, nil
}

// Get returns the subscriber with the email or ErrNotFound.
func (s *Store) Get(ctx context.Context, email string) (*models.SubscriberEntity, error) {
	subscriber, err := s.dao.FindByEmail(ctx, s.conn, email)
	if err != nil {
		return nil, wrapNotFound(err, email)
	}

	return subscriber, nil
}

// Exists reports whether a subscriber with the email exists.
func (s *Store) Exists(ctx context.Context, email string) (bool, error) {
	_, err := s.Get(ctx, email)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// List returns all subscribers with the status, or all subscribers if status is nil. The most
// recently subscribed come first, ties are broken by descending id.
func (s *Store) List(ctx context.Context, status *models.SubscriberStatus) ([]models.SubscriberEntity, error) {
	subscribers, err := s.dao.FindAll(ctx, s.conn, status)
	if err != nil {
		return nil, fmt.Errorf("could not list subscribers: %w", err)
	}

	return subscribers, nil
}

// Count returns the number of subscribers with the status, or all subscribers if status is nil.
func (s *Store) Count(ctx context.Context, status *models.SubscriberStatus) (int64, error) {
	count, err := s.dao.Count(ctx, s.conn, status)
	if err != nil {
		return 0, fmt.Errorf("could not count subscribers: %w", err)
	}

	return count, nil
}

// Stats returns the number of subscribers per status.
func (s *Store) Stats(ctx context.Context) (*models.StatusCounts, error) {
	counts, err := s.dao.CountByStatus(ctx, s.conn)
	if err != nil {
		return nil, fmt.Errorf("could not count subscribers: %w", err)
	}

	return counts, nil
}

// UpdateStatus moves a subscriber into a new status. Approving or declining always sets the
// approval time to now, the last transition wins. Moving back to pending clears it.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status models.SubscriberStatus) error {
	if err := s.updateStatus(ctx, s.conn, id, status); err != nil {
		return wrapNotFound(err, fmt.Sprintf("id=%d", id))
	}

	log.InfoContext(ctx).
		Int64("id", id).
		Str("status", string(status)).
		Msg("subscriber status updated")

	return nil
}

// Update changes the status and the notes of the subscriber with the email in one transaction.
// Nil values are left untouched. The updated subscriber is returned.
func (s *Store) Update(
	ctx context.Context,
	email string,
	status *models.SubscriberStatus,
	notes *string,
) (*models.SubscriberEntity, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}

	defer tx.RollbackWith(func() {
		log.WarnContext(ctx).Str("email", email).Msg("subscriber update rolled back")
	})

	subscriber, err := s.dao.FindByEmail(ctx, tx, email)
	if err != nil {
		return nil, wrapNotFound(err, email)
	}

	if status != nil {
		if err := s.updateStatus(ctx, tx, subscriber.ID, *status); err != nil {
			return nil, err
		}
	}

	if notes != nil {
		if err := s.dao.UpdateNotes(ctx, tx, subscriber.ID, notes); err != nil {
			return nil, err
		}
	}

	if subscriber, err = s.dao.FindByID(ctx, tx, subscriber.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return subscriber, nil
}

// Remove permanently deletes the subscriber with the email. It reports whether a subscriber was
// deleted.
func (s *Store) Remove(ctx context.Context, email string) (bool, error) {
	if err := s.dao.DeleteByEmail(ctx, s.conn, email); err != nil {
		if database.IsErrNoRows(err) {
			return false, nil
		}

		return false, fmt.Errorf("could not remove subscriber %q: %w", email, err)
	}

	log.InfoContext(ctx).Str("email", email).Msg("subscriber removed")
	return true, nil
}

func (s *Store) updateStatus(
	ctx context.Context,
	q database.Queryer,
	id int64,
	status models.SubscriberStatus,
) error {
	return s.dao.UpdateStatus(ctx, q, id, status, s.approvalTime(status, nil))
}

func (s *Store) approvalTime(status models.SubscriberStatus, current *time.Time) *time.Time {
	if status == models.StatusPending {
		return nil
	}

	if current != nil {
		t := current.UTC()
		return &t
	}

	now := s.now()
	return &now
}

func wrapNotFound(err error, key string) error {
	if database.IsErrNoRows(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return err
}
