package chain_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"audittrail/internal/audit/chain"
	"audittrail/internal/audit/models"
	"audittrail/internal/audit/store/memory"
	"audittrail/pkg/platform/sentinel"
	"audittrail/pkg/platform/tx"
)

type EngineSuite struct {
	suite.Suite
	store  *memory.InMemoryStore
	engine *chain.Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()
	s.engine = chain.NewEngine(s.store, chain.WithRetry(3, time.Millisecond, 5*time.Millisecond))
}

func newEntry(t require.TestingT, eventType models.EventType) *models.Entry {
	e, err := models.NewEntry(models.LogContext{
		EventType:  eventType,
		EntityType: "Customer",
		EntityID:   "c-1",
		Actor:      models.Actor{UserID: "u-1", UserName: "alice", UserRole: "SALES"},
	}, time.Now())
	require.NoError(t, err)
	return e
}

func (s *EngineSuite) TestFirstEntryLinksToGenesis() {
	ctx := context.Background()

	e1, err := s.engine.AppendWithLinkage(ctx, newEntry(s.T(), models.EventCustomerCreated))
	s.Require().NoError(err)
	e2, err := s.engine.AppendWithLinkage(ctx, newEntry(s.T(), models.EventCustomerUpdated))
	s.Require().NoError(err)

	s.Equal(chain.GenesisHash, e1.PreviousHash)
	s.Equal(e1.DataHash, e2.PreviousHash)
	s.Equal(int64(1), e1.Sequence)
	s.Equal(int64(2), e2.Sequence)

	report, err := chain.NewVerifier(s.store, s.store).Verify(ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	s.True(report.Valid)
	s.Equal(2, report.Checked)
}

func (s *EngineSuite) TestConcurrentAppendsFormOneChain() {
	ctx := context.Background()
	const n = 100

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.engine.AppendWithLinkage(ctx, newEntry(s.T(), models.EventCustomerUpdated)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	links, err := s.store.ChainLinks(ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	s.Len(links, n)

	genesis := 0
	seen := map[string]bool{}
	for _, l := range links {
		if l.PreviousHash == chain.GenesisHash {
			genesis++
		}
		s.False(seen[l.PreviousHash], "duplicate previous hash")
		seen[l.PreviousHash] = true
	}
	s.Equal(1, genesis)

	report, err := chain.NewVerifier(s.store, s.store).Verify(ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	s.True(report.Valid)
}

// flakyStore fails the first conflicts appends with sentinel.ErrConflict.
type flakyStore struct {
	*memory.InMemoryStore
	conflicts int32
	calls     atomic.Int32
	err       error
}

func (f *flakyStore) AppendLinked(ctx context.Context, link chain.LinkFunc) (*models.Entry, error) {
	if f.calls.Add(1) <= f.conflicts {
		// Link anyway to prove a failed attempt leaves nothing behind.
		_ = link(models.Tail{})
		return nil, f.err
	}
	return f.InMemoryStore.AppendLinked(ctx, link)
}

func (s *EngineSuite) TestConflictsAreRetried() {
	store := &flakyStore{InMemoryStore: memory.NewInMemoryStore(), conflicts: 2, err: sentinel.ErrConflict}
	engine := chain.NewEngine(store, chain.WithRetry(3, time.Millisecond, time.Millisecond))

	e, err := engine.AppendWithLinkage(context.Background(), newEntry(s.T(), models.EventLeadCreated))

	s.Require().NoError(err)
	s.Equal(int64(1), e.Sequence)
	s.Equal(int32(3), store.calls.Load())
}

func (s *EngineSuite) TestExhaustedRetriesReturnChainAppendError() {
	store := &flakyStore{InMemoryStore: memory.NewInMemoryStore(), conflicts: 100, err: sentinel.ErrConflict}
	engine := chain.NewEngine(store, chain.WithRetry(2, time.Millisecond, time.Millisecond))

	_, err := engine.AppendWithLinkage(context.Background(), newEntry(s.T(), models.EventLeadCreated))

	var appendErr *models.ChainAppendError
	s.Require().True(errors.As(err, &appendErr))
	s.Equal(3, appendErr.Attempts)
	s.ErrorIs(err, sentinel.ErrConflict)

	tail, _ := store.Tail(context.Background())
	s.True(tail.IsEmpty(), "no tail advance after failure")
}

func (s *EngineSuite) TestPermanentErrorsAreNotRetried() {
	boom := errors.New("disk on fire")
	store := &flakyStore{InMemoryStore: memory.NewInMemoryStore(), conflicts: 100, err: boom}
	engine := chain.NewEngine(store)

	_, err := engine.AppendWithLinkage(context.Background(), newEntry(s.T(), models.EventLeadCreated))

	s.ErrorIs(err, boom)
	s.Equal(int32(1), store.calls.Load())
}

func (s *EngineSuite) TestCallerTransactionDisablesRetry() {
	store := &flakyStore{InMemoryStore: memory.NewInMemoryStore(), conflicts: 100, err: sentinel.ErrConflict}
	engine := chain.NewEngine(store, chain.WithRetry(5, time.Millisecond, time.Millisecond))
	ctx := tx.WithTx(context.Background(), &sql.Tx{})

	_, err := engine.AppendWithLinkage(ctx, newEntry(s.T(), models.EventLeadCreated))

	var appendErr *models.ChainAppendError
	s.Require().True(errors.As(err, &appendErr))
	s.Equal(int32(1), store.calls.Load())
}

func TestAppendHonoursCancelledContext(t *testing.T) {
	store := memory.NewInMemoryStore()
	engine := chain.NewEngine(store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.AppendWithLinkage(ctx, newEntry(t, models.EventLeadCreated))

	assert.ErrorIs(t, err, context.Canceled)
}
