//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"audittrail/internal/audit/chain"
	"audittrail/internal/audit/models"
	"audittrail/internal/audit/retention"
	"audittrail/internal/audit/service/command"
	"audittrail/internal/audit/service/query"
	"audittrail/internal/audit/store/postgres"
	"audittrail/pkg/platform/sentinel"
	"audittrail/pkg/platform/tx"
	"audittrail/pkg/requestcontext"
	"audittrail/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	engine   *chain.Engine
	verifier *chain.Verifier
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.Require().NoError(postgres.Migrate(context.Background(), s.postgres.DB))
	s.store = postgres.New(s.postgres.DB)
	s.engine = chain.NewEngine(s.store, chain.WithRetry(20, 5*time.Millisecond, 100*time.Millisecond))
	s.verifier = chain.NewVerifier(s.store, s.store)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "audit_entries", "audit_tombstones")
	s.Require().NoError(err)
	_, err = s.postgres.Exec(ctx, `UPDATE audit_chain_tail SET sequence = 0, last_hash = '' WHERE id = 1`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) appendEntry(ctx context.Context, eventType models.EventType, entityID string) *models.Entry {
	e, err := models.NewEntry(models.LogContext{
		EventType:  eventType,
		EntityType: "Customer",
		EntityID:   entityID,
		Actor:      models.Actor{UserID: "u-1", UserName: "alice", UserRole: "SALES"},
		NewValue:   []byte(`{"name":"ACME"}`),
	}, time.Now())
	s.Require().NoError(err)
	stored, err := s.engine.AppendWithLinkage(ctx, e)
	s.Require().NoError(err)
	return stored
}

func (s *PostgresStoreSuite) TestAppendRoundTrip() {
	ctx := context.Background()
	stored := s.appendEntry(ctx, models.EventCustomerCreated, "c-1")

	got, err := s.store.Get(ctx, stored.ID)
	s.Require().NoError(err)
	s.Equal(stored.Sequence, got.Sequence)
	s.Equal(stored.DataHash, got.DataHash)
	s.Equal(chain.GenesisHash, got.PreviousHash)
	s.Equal(stored.DataHash, chain.ComputeDataHash(got), "stored row must rehash to the same value")

	tail, err := s.store.Tail(ctx)
	s.Require().NoError(err)
	s.Equal(models.Tail{Sequence: 1, Hash: stored.DataHash}, tail)
}

func (s *PostgresStoreSuite) TestGetUnknownIsNotFound() {
	_, err := s.store.Get(context.Background(), uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestConcurrentAppendsFormOneChain() {
	ctx := context.Background()
	const writers = 50

	var (
		wg     sync.WaitGroup
		failed atomic.Int32
	)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := models.NewEntry(models.LogContext{
				EventType:  models.EventCustomerUpdated,
				EntityType: "Customer",
				EntityID:   fmt.Sprintf("c-%d", i),
				Actor:      models.Actor{UserID: "u-1", UserName: "alice", UserRole: "SALES"},
			}, time.Now())
			if err != nil {
				failed.Add(1)
				return
			}
			if _, err := s.engine.AppendWithLinkage(ctx, e); err != nil {
				failed.Add(1)
			}
		}(i)
	}
	wg.Wait()
	s.Require().Zero(failed.Load())

	links, err := s.store.ChainLinks(ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	s.Require().Len(links, writers)
	for i, l := range links {
		s.Equal(int64(i+1), l.Sequence)
	}

	report, err := s.verifier.Verify(ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	s.True(report.Valid)
	s.Equal(writers, report.Checked)
}

func (s *PostgresStoreSuite) TestStoredEntriesRejectUpdates() {
	ctx := context.Background()
	stored := s.appendEntry(ctx, models.EventCustomerCreated, "c-1")

	_, err := s.postgres.Exec(ctx, `UPDATE audit_entries SET entity_id = 'c-2' WHERE id = $1`, stored.ID)
	s.Require().Error(err)
	s.Contains(err.Error(), "append-only")
}

func (s *PostgresStoreSuite) TestTamperedLinkageIsReportedOnce() {
	ctx := context.Background()
	var entries []*models.Entry
	for i := range 5 {
		entries = append(entries, s.appendEntry(ctx, models.EventCustomerUpdated, fmt.Sprintf("c-%d", i)))
	}

	_, err := s.postgres.Exec(ctx, `ALTER TABLE audit_entries DISABLE TRIGGER audit_entries_append_only`)
	s.Require().NoError(err)
	_, err = s.postgres.Exec(ctx, `UPDATE audit_entries SET previous_hash = $1 WHERE sequence = 3`,
		"deadbeef00000000000000000000000000000000000000000000000000000000")
	s.Require().NoError(err)
	_, err = s.postgres.Exec(ctx, `ALTER TABLE audit_entries ENABLE TRIGGER audit_entries_append_only`)
	s.Require().NoError(err)

	report, err := s.verifier.Verify(ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	s.False(report.Valid)
	s.Equal(5, report.Checked)
	s.Require().Len(report.Violations, 1)
	s.Equal(entries[2].ID, report.Violations[0].EntryID)
	s.Equal(models.ViolationLinkage, report.Violations[0].Kind)
}

func (s *PostgresStoreSuite) TestRangeVerificationFollowsSequenceNotTimestamp() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	for _, off := range []time.Duration{0, 2 * time.Millisecond, time.Millisecond, 3 * time.Millisecond} {
		e, err := models.NewEntry(models.LogContext{
			EventType:  models.EventCustomerCreated,
			EntityType: "Customer",
			EntityID:   "c-1",
			Actor:      models.Actor{UserID: "u-1", UserName: "alice", UserRole: "SALES"},
		}, base.Add(off))
		s.Require().NoError(err)
		_, err = s.engine.AppendWithLinkage(ctx, e)
		s.Require().NoError(err)
	}

	links, err := s.store.ChainLinks(ctx, base.Add(1500*time.Microsecond), time.Time{})
	s.Require().NoError(err)
	s.Require().Len(links, 3)
	s.Equal(int64(2), links[0].Sequence)

	report, err := s.verifier.Verify(ctx, base.Add(1500*time.Microsecond), time.Time{})
	s.Require().NoError(err)
	s.True(report.Valid, "violations: %v", report.Violations)
	s.Equal(3, report.Checked)
}

func (s *PostgresStoreSuite) TestFilterAndAggregates() {
	ctx := context.Background()
	s.appendEntry(ctx, models.EventCustomerCreated, "c-1")
	s.appendEntry(ctx, models.EventCustomerUpdated, "c-1")
	s.appendEntry(ctx, models.EventCustomerDeleted, "c-2")

	byEntity, err := s.store.Find(ctx, models.Filter{EntityType: "Customer", EntityID: "c-1"})
	s.Require().NoError(err)
	s.Require().Len(byEntity, 2)
	s.Greater(byEntity[0].Sequence, byEntity[1].Sequence, "newest first")

	critical, err := s.store.Count(ctx, models.Filter{Critical: models.Bool(true)})
	s.Require().NoError(err)
	s.Equal(int64(1), critical)

	typed, err := s.store.Count(ctx, models.Filter{EventTypes: []models.EventType{models.EventCustomerCreated, models.EventCustomerDeleted}})
	s.Require().NoError(err)
	s.Equal(int64(2), typed)

	entities, err := s.store.CountDistinct(ctx, models.Filter{}, models.FieldEntity)
	s.Require().NoError(err)
	s.Equal(int64(2), entities)

	byType, err := s.store.GroupCount(ctx, models.Filter{}, models.FieldEventType)
	s.Require().NoError(err)
	s.Equal(map[string]int64{
		string(models.EventCustomerCreated): 1,
		string(models.EventCustomerUpdated): 1,
		string(models.EventCustomerDeleted): 1,
	}, byType)

	paged, err := s.store.Find(ctx, models.Filter{Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Require().Len(paged, 1)
	s.Equal(int64(2), paged[0].Sequence)
}

func (s *PostgresStoreSuite) TestRetentionPurgeKeepsChainVerifiable() {
	ctx := context.Background()
	commands := command.New(s.engine)
	queries := query.New(s.store, s.verifier)

	old := requestcontext.WithTime(ctx, time.Now().AddDate(-12, 0, 0))
	old = requestcontext.WithActor(old, requestcontext.Principal{UserID: "u-1", UserName: "alice", Role: "SALES"})
	for i := range 3 {
		_, err := commands.Append(old, models.LogContext{
			EventType:  models.EventOpportunityCreated,
			EntityType: "Opportunity",
			EntityID:   fmt.Sprintf("o-%d", i),
		})
		s.Require().NoError(err)
	}
	kept := s.appendEntry(ctx, models.EventCustomerCreated, "c-1")

	job := retention.NewJob(queries, commands, s.store)
	result, err := job.RunOnce(ctx, time.Time{})
	s.Require().NoError(err)
	s.Equal(int64(3), result.Eligible)
	s.Equal(int64(3), result.Deleted)

	purge, err := s.store.Get(ctx, result.PurgeEntryID)
	s.Require().NoError(err)
	s.Equal(models.EventDataPurge, purge.EventType)
	s.Equal(kept.Sequence+1, purge.Sequence)

	links, err := s.store.ChainLinks(ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	s.Require().Len(links, 5)
	for _, l := range links[:3] {
		s.True(l.Purged())
	}

	report, err := s.verifier.Verify(ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	s.True(report.Valid, "violations: %v", report.Violations)
}

func (s *PostgresStoreSuite) TestCallerTransactionRollbackDiscardsAppend() {
	ctx := context.Background()
	sqlTx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)

	e, err := models.NewEntry(models.LogContext{
		EventType:  models.EventCustomerCreated,
		EntityType: "Customer",
		EntityID:   "c-1",
		Actor:      models.Actor{UserID: "u-1", UserName: "alice", UserRole: "SALES"},
	}, time.Now())
	s.Require().NoError(err)

	stored, err := s.engine.AppendWithLinkage(tx.WithTx(ctx, sqlTx), e)
	s.Require().NoError(err)
	s.Require().NoError(sqlTx.Rollback())

	_, err = s.store.Get(ctx, stored.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	tail, err := s.store.Tail(ctx)
	s.Require().NoError(err)
	s.True(tail.IsEmpty())
}

func (s *PostgresStoreSuite) TestJoinedTransactionKeepsItsLockTimeout() {
	ctx := context.Background()
	store := postgres.New(s.postgres.DB, postgres.WithLockTimeout(250*time.Millisecond))
	engine := chain.NewEngine(store)

	sqlTx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	defer func() { _ = sqlTx.Rollback() }()
	_, err = sqlTx.ExecContext(ctx, `SET LOCAL lock_timeout = '7s'`)
	s.Require().NoError(err)

	e, err := models.NewEntry(models.LogContext{
		EventType:  models.EventCustomerCreated,
		EntityType: "Customer",
		EntityID:   "c-1",
		Actor:      models.Actor{UserID: "u-1", UserName: "alice", UserRole: "SALES"},
	}, time.Now())
	s.Require().NoError(err)
	_, err = engine.AppendWithLinkage(tx.WithTx(ctx, sqlTx), e)
	s.Require().NoError(err)

	var timeout string
	s.Require().NoError(sqlTx.QueryRowContext(ctx, `SHOW lock_timeout`).Scan(&timeout))
	s.Equal("7s", timeout)
}
