package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"audittrail/internal/audit/chain"
	"audittrail/internal/audit/models"
	"audittrail/internal/audit/service/command"
	"audittrail/internal/audit/service/query"
	"audittrail/internal/audit/store/memory"
)

type JobSuite struct {
	suite.Suite
	store  *memory.InMemoryStore
	engine *chain.Engine
	query  *query.Service
	job    *Job
}

func TestJobSuite(t *testing.T) {
	suite.Run(t, new(JobSuite))
}

func (s *JobSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()
	s.engine = chain.NewEngine(s.store)
	s.query = query.New(s.store, chain.NewVerifier(s.store, s.store))
	s.job = NewJob(s.query, command.New(s.engine), s.store)
}

func (s *JobSuite) appendWithRetention(t models.EventType, until time.Time) *models.Entry {
	e, err := models.NewEntry(models.LogContext{
		EventType:  t,
		EntityType: "Customer",
		EntityID:   "c-1",
		Actor:      models.Actor{UserID: "u-1", UserName: "alice", UserRole: "SALES"},
	}, time.Now())
	s.Require().NoError(err)
	e.RetentionUntil = models.NormalizeTime(until)
	stored, err := s.engine.AppendWithLinkage(context.Background(), e)
	s.Require().NoError(err)
	return stored
}

func (s *JobSuite) TestPurgeRemovesOnlyExpiredAndRecordsItself() {
	ctx := context.Background()
	expired := s.appendWithRetention(models.EventLoginSuccess, time.Now().Add(-time.Hour))
	kept := s.appendWithRetention(models.EventCustomerCreated, time.Now().AddDate(6, 0, 0))

	result, err := s.job.RunOnce(ctx, time.Now())
	s.Require().NoError(err)

	s.Equal(int64(1), result.Eligible)
	s.Equal(int64(1), result.Deleted)

	_, err = s.store.Get(ctx, expired.ID)
	s.Error(err)
	_, err = s.store.Get(ctx, kept.ID)
	s.NoError(err)

	purge, err := s.store.Get(ctx, result.PurgeEntryID)
	s.Require().NoError(err)
	s.Equal(models.EventDataPurge, purge.EventType)
	s.True(purge.Actor().IsSystem())
	s.Equal(models.SourceSystem, purge.Source)
	s.Equal(kept.DataHash, purge.PreviousHash, "purge is appended after the surviving tail")

	report, err := chain.NewVerifier(s.store, s.store).Verify(ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	s.True(report.Valid)
	s.Equal(1, report.Purged)
}

func (s *JobSuite) TestNothingEligibleWritesNothing() {
	s.appendWithRetention(models.EventCustomerCreated, time.Now().AddDate(6, 0, 0))

	result, err := s.job.RunOnce(context.Background(), time.Time{})
	s.Require().NoError(err)
	s.Zero(result.Deleted)

	tail, _ := s.store.Tail(context.Background())
	s.Equal(int64(1), tail.Sequence)
}

func (s *JobSuite) TestFutureCutoffCannotPurgeUnexpired() {
	s.appendWithRetention(models.EventCustomerCreated, time.Now().Add(time.Hour))

	result, err := s.job.RunOnce(context.Background(), time.Now().AddDate(5, 0, 0))
	s.Require().NoError(err)
	s.Zero(result.Eligible)
}

type failingRecorder struct{}

func (failingRecorder) Append(context.Context, models.LogContext) (*models.Entry, error) {
	return nil, errors.New("chain unavailable")
}

func (failingRecorder) Announce(*models.Entry) {}

func TestNoDeleteWithoutPurgeRecord(t *testing.T) {
	store := memory.NewInMemoryStore()
	engine := chain.NewEngine(store)
	e, err := models.NewEntry(models.LogContext{
		EventType:  models.EventLoginSuccess,
		EntityType: "Session",
		EntityID:   "s-1",
		Actor:      models.SystemActor(),
	}, time.Now())
	require.NoError(t, err)
	e.RetentionUntil = time.Now().Add(-time.Hour)
	stored, err := engine.AppendWithLinkage(context.Background(), e)
	require.NoError(t, err)

	job := NewJob(query.New(store, chain.NewVerifier(store, store)), failingRecorder{}, store)
	_, err = job.RunOnce(context.Background(), time.Now())

	assert.Error(t, err)
	_, err = store.Get(context.Background(), stored.ID)
	assert.NoError(t, err, "entry must survive when the purge could not be recorded")
}
