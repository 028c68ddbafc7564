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
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lukasdietrich/newsletter/internal/models"
)

func TestSubscriberDaoTestSuite(t *testing.T) {
	suite.Run(t, new(SubscriberDaoTestSuite))
}

type SubscriberDaoTestSuite struct {
	baseDatabaseTestSuite

	subscriberDao SubscriberDao
}

func (s *SubscriberDaoTestSuite) SetupSuite() {
	s.subscriberDao = NewSubscriberDao()
}

func (s *SubscriberDaoTestSuite) insertFixtures() {
	s.requireExec(
		`
			insert into "subscribers"
				( "id", "email", "status", "subscribed_at", "approved_at" )
			values
				( 1, 'old@example.com', 'approved', '2020-01-01 10:00:00+00:00', '2020-01-02 10:00:00+00:00' ) ,
				( 2, 'new@example.com', 'pending', '2020-03-01 10:00:00+00:00', null ) ,
				( 3, 'tie@example.com', 'pending', '2020-03-01 10:00:00+00:00', null ) ,
				( 4, 'no@example.com', 'declined', '2020-02-01 10:00:00+00:00', '2020-02-02 10:00:00+00:00' ) ;
		`)
}

func (s *SubscriberDaoTestSuite) TestInsert() {
	subscriber := models.SubscriberEntity{
		Email:         "john@example.com",
		Status:        models.StatusPending,
		SubscribedAt:  s.mustParseTime("2020-05-01T12:00:00Z"),
		SourceEmailID: models.StringPtr("17"),
	}

	s.Assert().Zero(subscriber.ID)
	s.Assert().NoError(s.subscriberDao.Insert(s.ctx, s.conn, &subscriber))
	s.Assert().NotZero(subscriber.ID)

	s.assertQuery(
		`
			select "id", "email", "status", "source_email_id"
			from "subscribers" ;
		`,
		[]string{"1", "john@example.com", "pending", "17"})
}

func (s *SubscriberDaoTestSuite) TestInsertDuplicateIgnoresCase() {
	s.Require().NoError(s.subscriberDao.Insert(s.ctx, s.conn, newPendingSubscriber("john@example.com")))

	err := s.subscriberDao.Insert(s.ctx, s.conn, newPendingSubscriber("JOHN@example.com"))
	s.Assert().True(IsErrUnique(err))
}

func (s *SubscriberDaoTestSuite) TestInsertViolatingApprovalInvariant() {
	subscriber := newPendingSubscriber("john@example.com")
	subscriber.Status = models.StatusApproved

	err := s.subscriberDao.Insert(s.ctx, s.conn, subscriber)
	s.Assert().True(IsErrCheck(err))
}

func (s *SubscriberDaoTestSuite) TestUpdateStatus() {
	s.insertFixtures()

	approvedAt := s.mustParseTime("2021-01-01T00:00:00Z")
	s.Require().NoError(s.subscriberDao.UpdateStatus(s.ctx, s.conn, 2, models.StatusApproved, &approvedAt))

	actual, err := s.subscriberDao.FindByID(s.ctx, s.conn, 2)
	s.Require().NoError(err)
	s.Assert().Equal(models.StatusApproved, actual.Status)
	s.Require().NotNil(actual.ApprovedAt)
	s.Assert().True(approvedAt.Equal(*actual.ApprovedAt))
}

func (s *SubscriberDaoTestSuite) TestUpdateStatusUnknown() {
	err := s.subscriberDao.UpdateStatus(s.ctx, s.conn, 42, models.StatusPending, nil)
	s.Assert().True(IsErrNoRows(err))
}

func (s *SubscriberDaoTestSuite) TestUpdateNotes() {
	s.insertFixtures()

	s.Require().NoError(s.subscriberDao.UpdateNotes(s.ctx, s.conn, 1, models.StringPtr("vip")))
	s.assertQuery(`select "notes" from "subscribers" where "id" = 1 ;`, []string{"vip"})
}

func (s *SubscriberDaoTestSuite) TestDeleteByEmail() {
	s.insertFixtures()

	s.Assert().NoError(s.subscriberDao.DeleteByEmail(s.ctx, s.conn, "OLD@example.com"))
	s.assertQuery(`select count(*) from "subscribers" ;`, []string{"3"})

	err := s.subscriberDao.DeleteByEmail(s.ctx, s.conn, "old@example.com")
	s.Assert().True(IsErrNoRows(err))
}

func (s *SubscriberDaoTestSuite) TestFindByEmail() {
	s.insertFixtures()

	actual, err := s.subscriberDao.FindByEmail(s.ctx, s.conn, "New@Example.com")
	s.Require().NoError(err)
	s.Assert().Equal(int64(2), actual.ID)
	s.Assert().Nil(actual.ApprovedAt)

	_, err = s.subscriberDao.FindByEmail(s.ctx, s.conn, "unknown@example.com")
	s.Assert().True(IsErrNoRows(err))
}

func (s *SubscriberDaoTestSuite) TestFindAllOrdering() {
	s.insertFixtures()

	actual, err := s.subscriberDao.FindAll(s.ctx, s.conn, nil)
	s.Require().NoError(err)

	var ids []int64
	for _, subscriber := range actual {
		ids = append(ids, subscriber.ID)
	}

	s.Assert().Equal([]int64{3, 2, 4, 1}, ids)
}

func (s *SubscriberDaoTestSuite) TestFindAllFiltered() {
	s.insertFixtures()

	status := models.StatusPending

	actual, err := s.subscriberDao.FindAll(s.ctx, s.conn, &status)
	s.Require().NoError(err)
	s.Require().Len(actual, 2)

	for _, subscriber := range actual {
		s.Assert().Equal(models.StatusPending, subscriber.Status)
	}
}

func (s *SubscriberDaoTestSuite) TestCount() {
	s.insertFixtures()

	declined := models.StatusDeclined

	total, err := s.subscriberDao.Count(s.ctx, s.conn, nil)
	s.Require().NoError(err)
	s.Assert().Equal(int64(4), total)

	count, err := s.subscriberDao.Count(s.ctx, s.conn, &declined)
	s.Require().NoError(err)
	s.Assert().Equal(int64(1), count)
}

func (s *SubscriberDaoTestSuite) TestCountByStatus() {
	counts, err := s.subscriberDao.CountByStatus(s.ctx, s.conn)
	s.Require().NoError(err)
	s.Assert().Equal(&models.StatusCounts{}, counts)

	s.insertFixtures()

	counts, err = s.subscriberDao.CountByStatus(s.ctx, s.conn)
	s.Require().NoError(err)
	s.Assert().Equal(&models.StatusCounts{Total: 4, Pending: 2, Approved: 1, Declined: 1}, counts)
}
