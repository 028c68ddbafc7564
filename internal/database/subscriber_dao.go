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

package database

import (
	"context"
	"time"

	"github.com/lukasdietrich/newsletter/internal/models"
)

type SubscriberDao interface {
	// Insert inserts a new subscriber and sets its id.
	Insert(context.Context, Queryer, *models.SubscriberEntity) error
	// UpdateStatus sets the status and the approval time of a subscriber.
	UpdateStatus(context.Context, Queryer, int64, models.SubscriberStatus, *time.Time) error
	// UpdateNotes replaces the notes of a subscriber.
	UpdateNotes(context.Context, Queryer, int64, *string) error
	// DeleteByEmail deletes the subscriber with a matching email (case-insensitive).
	DeleteByEmail(context.Context, Queryer, string) error
	// FindByID returns a single subscriber.
	FindByID(context.Context, Queryer, int64) (*models.SubscriberEntity, error)
	// FindByEmail returns the subscriber with a matching email (case-insensitive).
	FindByEmail(context.Context, Queryer, string) (*models.SubscriberEntity, error)
	// FindAll returns all subscribers with the status, or every subscriber if status is nil.
	// The most recent subscriber comes first.
	FindAll(context.Context, Queryer, *models.SubscriberStatus) ([]models.SubscriberEntity, error)
	// Count returns the number of subscribers with the status, or all if status is nil.
	Count(context.Context, Queryer, *models.SubscriberStatus) (int64, error)
	// CountByStatus returns the number of subscribers for every status.
	CountByStatus(context.Context, Queryer) (*models.StatusCounts, error)
}

type subscriberDao struct{}

func NewSubscriberDao() SubscriberDao {
	return subscriberDao{}
}

func (subscriberDao) Insert(ctx context.Context, q Queryer, subscriber *models.SubscriberEntity) error {
	const query = `
		insert into "subscribers" (
			"email" ,
			"status" ,
			"subscribed_at" ,
			"approved_at" ,
			"source_email_id" ,
			"notes"
		) values (
			:email ,
			:status ,
			:subscribed_at ,
			:approved_at ,
			:source_email_id ,
			:notes
		) ;
	`

	id, err := insertNamed(ctx, q, query, subscriber)
	if err != nil {
		return err
	}

	subscriber.ID = id
	return nil
}

func (subscriberDao) UpdateStatus(
	ctx context.Context,
	q Queryer,
	id int64,
	status models.SubscriberStatus,
	approvedAt *time.Time,
) error {
	const query = `
		update "subscribers"
		set "status" = $1 ,
		    "approved_at" = $2
		where "id" = $3 ;
	`

	result, err := execPositional(ctx, q, query, status, approvedAt, id)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (subscriberDao) UpdateNotes(ctx context.Context, q Queryer, id int64, notes *string) error {
	const query = `
		update "subscribers"
		set "notes" = $1
		where "id" = $2 ;
	`

	result, err := execPositional(ctx, q, query, notes, id)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (subscriberDao) DeleteByEmail(ctx context.Context, q Queryer, email string) error {
	const query = `
		delete from "subscribers"
		where "email" = $1 ;
	`

	result, err := execPositional(ctx, q, query, email)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (subscriberDao) FindByID(ctx context.Context, q Queryer, id int64) (*models.SubscriberEntity, error) {
	const query = `
		select *
		from "subscribers"
		where "id" = $1 ;
	`

	var subscriber models.SubscriberEntity

	if err := selectOne(ctx, q, &subscriber, query, id); err != nil {
		return nil, err
	}

	return &subscriber, nil
}

func (subscriberDao) FindByEmail(ctx context.Context, q Queryer, email string) (*models.SubscriberEntity, error) {
	const query = `
		select *
		from "subscribers"
		where "email" = $1
		limit 1 ;
	`

	var subscriber models.SubscriberEntity

	if err := selectOne(ctx, q, &subscriber, query, email); err != nil {
		return nil, err
	}

	return &subscriber, nil
}

func (subscriberDao) FindAll(
	ctx context.Context,
	q Queryer,
	status *models.SubscriberStatus,
) ([]models.SubscriberEntity, error) {
	const query = `
		select *
		from "subscribers"
		where $1 is null or "status" = $1
		order by "subscribed_at" desc, "id" desc ;
	`

	var subscriberSlice []models.SubscriberEntity

	if err := selectSlice(ctx, q, &subscriberSlice, query, status); err != nil {
		return nil, err
	}

	return subscriberSlice, nil
}

func (subscriberDao) Count(ctx context.Context, q Queryer, status *models.SubscriberStatus) (int64, error) {
	const query = `
		select count(*)
		from "subscribers"
		where $1 is null or "status" = $1 ;
	`

	var count int64

	if err := selectOne(ctx, q, &count, query, status); err != nil {
		return 0, err
	}

	return count, nil
}

func (subscriberDao) CountByStatus(ctx context.Context, q Queryer) (*models.StatusCounts, error) {
	const query = `
		select
			count(*) as "total" ,
			coalesce(sum("status" = 'pending'), 0) as "pending" ,
			coalesce(sum("status" = 'approved'), 0) as "approved" ,
			coalesce(sum("status" = 'declined'), 0) as "declined"
		from "subscribers" ;
	`

	var counts models.StatusCounts

	if err := selectOne(ctx, q, &counts, query); err != nil {
		return nil, err
	}

	return &counts, nil
}
