package command

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Appender,Notifier

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"audittrail/internal/audit/chain"
	"audittrail/internal/audit/models"
	"audittrail/internal/audit/service/command/mocks"
	"audittrail/internal/audit/store/memory"
	"audittrail/internal/audit/worker"
	"audittrail/pkg/platform/sentinel"
	"audittrail/pkg/platform/tx"
	"audittrail/pkg/requestcontext"
)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []models.Notification
}

func (n *recordingNotifier) Notify(note models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func (n *recordingNotifier) all() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Notification(nil), n.notes...)
}

type ServiceSuite struct {
	suite.Suite
	store    *memory.InMemoryStore
	notifier *recordingNotifier
	service  *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()
	s.notifier = &recordingNotifier{}
	s.service = New(chain.NewEngine(s.store),
		WithNotifier(s.notifier),
		WithPool(worker.NewPool(8, false)),
	)
}

func (s *ServiceSuite) TearDownTest() {
	s.Require().NoError(s.service.Close(context.Background()))
}

func customerCreated() models.LogContext {
	return models.LogContext{
		EventType:  models.EventCustomerCreated,
		EntityType: "Customer",
		EntityID:   "c-1",
		Actor:      models.Actor{UserID: "u-1", UserName: "alice", UserRole: "SALES"},
		NewValue:   []byte(`{"name":"ACME"}`),
		Source:     models.SourceUI,
	}
}

func (s *ServiceSuite) TestLogSyncAppendsLinkedEntries() {
	ctx := context.Background()

	id1, err := s.service.LogSync(ctx, customerCreated())
	s.Require().NoError(err)
	id2, err := s.service.LogSync(ctx, customerCreated())
	s.Require().NoError(err)

	e1, err := s.store.Get(ctx, id1)
	s.Require().NoError(err)
	e2, err := s.store.Get(ctx, id2)
	s.Require().NoError(err)

	s.Equal(chain.GenesisHash, e1.PreviousHash)
	s.Equal(e1.DataHash, e2.PreviousHash)
	s.Equal(models.LegalBasisContract, e1.LegalBasis)
	s.True(e1.IsComplianceRelevant)
	s.Len(s.notifier.all(), 2)
}

func (s *ServiceSuite) TestDataDeletionRetainedForAtLeastNineYears() {
	ctx := context.Background()
	lc := customerCreated()
	lc.EventType = models.EventDataDeletion

	id, err := s.service.LogSync(ctx, lc)
	s.Require().NoError(err)

	e, err := s.store.Get(ctx, id)
	s.Require().NoError(err)
	s.True(e.RetentionUntil.After(e.Timestamp.AddDate(9, 0, 0)))
	s.True(e.IsCritical)

	notes := s.notifier.all()
	s.Require().Len(notes, 1)
	s.True(notes[0].RequiresAlert)
}

func (s *ServiceSuite) TestConcurrentAsyncAppendsFormOneChain() {
	ctx := context.Background()
	const n = 50

	receipts := make([]*Receipt, n)
	for i := range receipts {
		receipts[i] = s.service.LogAsync(ctx, customerCreated())
	}

	ids := map[uuid.UUID]bool{}
	for _, r := range receipts {
		id, err := r.Wait(ctx)
		s.Require().NoError(err)
		ids[id] = true
	}
	s.Len(ids, n)

	links, err := s.store.ChainLinks(ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	s.Require().Len(links, n)

	previous := map[string]bool{}
	for _, l := range links {
		s.False(previous[l.PreviousHash], "duplicate previous hash at sequence %d", l.Sequence)
		previous[l.PreviousHash] = true
	}

	report, err := chain.NewVerifier(s.store, s.store).Verify(ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	s.True(report.Valid)
}

func (s *ServiceSuite) TestMissingFieldsRejectedBeforeAppend() {
	lc := customerCreated()
	lc.EntityID = ""

	_, err := s.service.LogSync(context.Background(), lc)

	var invalid *models.InvalidEntryError
	s.Require().True(errors.As(err, &invalid))
	tail, _ := s.store.Tail(context.Background())
	s.True(tail.IsEmpty())
}

func (s *ServiceSuite) TestUnknownSourceRejectedBeforeAppend() {
	lc := customerCreated()
	lc.Source = "CARRIER_PIGEON"

	_, err := s.service.LogSync(context.Background(), lc)

	var invalid *models.InvalidEntryError
	s.Require().True(errors.As(err, &invalid))
	s.Equal([]string{"source"}, invalid.Invalid)
	tail, _ := s.store.Tail(context.Background())
	s.True(tail.IsEmpty())
}

func (s *ServiceSuite) TestUnknownEventTypeFailsLoudly() {
	lc := customerCreated()
	lc.EventType = "CUSTOMER_ARCHIVED"

	_, err := s.service.LogSync(context.Background(), lc)

	var policyErr *models.PolicyError
	s.True(errors.As(err, &policyErr))
}

func (s *ServiceSuite) TestAsyncErrorsArriveThroughReceipt() {
	lc := customerCreated()
	lc.Actor = models.Actor{UserID: "u-1"}

	_, err := s.service.LogAsync(context.Background(), lc).Wait(context.Background())

	var invalid *models.InvalidEntryError
	s.True(errors.As(err, &invalid))
}

func (s *ServiceSuite) TestActorAndMetadataFromRequestContext() {
	ctx := requestcontext.WithActor(context.Background(), requestcontext.Principal{UserID: "u-9", UserName: "bob", Role: "ADMIN"})
	ctx = requestcontext.WithClientMetadata(ctx, "192.0.2.1", "curl/8.0")
	ctx = requestcontext.WithRequestID(ctx, "req-7")
	ctx = requestcontext.WithSessionID(ctx, "sess-7")
	ctx = requestcontext.WithAPIEndpoint(ctx, "DELETE /customers/c-1")
	fixed := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	ctx = requestcontext.WithTime(ctx, fixed)

	lc := customerCreated()
	lc.Actor = models.Actor{}
	id, err := s.service.LogSync(ctx, lc)
	s.Require().NoError(err)

	e, err := s.store.Get(ctx, id)
	s.Require().NoError(err)
	s.Equal("u-9", e.UserID)
	s.Equal("ADMIN", e.UserRole)
	s.Equal("192.0.2.1", e.IPAddress)
	s.Equal("curl/8.0", e.UserAgent)
	s.Equal("req-7", e.RequestID)
	s.Equal("sess-7", e.SessionID)
	s.Equal("DELETE /customers/c-1", e.APIEndpoint)
	s.Equal(fixed, e.Timestamp)
}

func (s *ServiceSuite) TestSystemActorWhenNoPrincipal() {
	id, err := s.service.LogSecurityEvent(context.Background(), models.EventSecurityViolation, map[string]any{"reason": "tampered token"})
	s.Require().NoError(err)

	e, err := s.store.Get(context.Background(), id)
	s.Require().NoError(err)
	s.True(e.Actor().IsSystem())
	s.Equal(models.SourceSystem, e.Source)
	s.Equal("SecurityEvent", e.EntityType)
	s.Contains(e.EntityID, "SEC-")

	var details map[string]string
	s.Require().NoError(json.Unmarshal(e.NewValue, &details))
	s.Equal("tampered token", details["reason"])
}

func (s *ServiceSuite) TestLogExport() {
	ctx := requestcontext.WithActor(context.Background(), requestcontext.Principal{UserID: "u-2", UserName: "carol", Role: "AUDITOR"})

	id, err := s.service.LogExport(ctx, "CSV", map[string]any{"entity": "Customer"})
	s.Require().NoError(err)

	e, err := s.store.Get(ctx, id)
	s.Require().NoError(err)
	s.Equal(models.EventDataExport, e.EventType)
	s.Equal(models.SourceAPI, e.Source)
	s.Equal("export: CSV", e.ChangeReason)
	s.Contains(e.EntityID, "EXPORT-")
}

func (s *ServiceSuite) TestCallerTransactionSuppressesAnnouncement() {
	ctx := tx.WithTx(context.Background(), &sql.Tx{})

	_, err := s.service.LogSync(ctx, customerCreated())
	s.Require().NoError(err)
	s.Empty(s.notifier.all())
}

func TestAppendFailureIsAuditWriteError(t *testing.T) {
	ctrl := gomock.NewController(t)
	appender := mocks.NewMockAppender(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	svc := New(appender, WithNotifier(notifier))

	cause := &models.ChainAppendError{Attempts: 5, Err: sentinel.ErrConflict}
	appender.EXPECT().AppendWithLinkage(gomock.Any(), gomock.Any()).Return(nil, cause)
	notifier.EXPECT().Notify(gomock.Any()).Times(0)

	_, err := svc.LogSync(context.Background(), customerCreated())

	var writeErr *models.AuditWriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, models.EventCustomerCreated, writeErr.EventType)
	var appendErr *models.ChainAppendError
	assert.True(t, errors.As(err, &appendErr))
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestBusyPoolRejectsThroughReceipt(t *testing.T) {
	ctrl := gomock.NewController(t)
	appender := mocks.NewMockAppender(ctrl)
	release := make(chan struct{})
	started := make(chan struct{})

	appender.EXPECT().AppendWithLinkage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e *models.Entry) (*models.Entry, error) {
			close(started)
			<-release
			return e, nil
		})

	svc := New(appender, WithPool(worker.NewPool(1, true)))
	first := svc.LogAsync(context.Background(), customerCreated())
	<-started

	_, err := svc.LogAsync(context.Background(), customerCreated()).Wait(context.Background())
	assert.ErrorIs(t, err, sentinel.ErrBusy)

	close(release)
	_, err = first.Wait(context.Background())
	assert.NoError(t, err)
	require.NoError(t, svc.Close(context.Background()))
}

func TestAsyncAppendSurvivesCallerCancellation(t *testing.T) {
	store := memory.NewInMemoryStore()
	svc := New(chain.NewEngine(store))
	ctx, cancel := context.WithCancel(context.Background())

	r := svc.LogAsync(ctx, customerCreated())
	cancel()

	id, err := r.Wait(context.Background())
	require.NoError(t, err)
	_, err = store.Get(context.Background(), id)
	assert.NoError(t, err)
	require.NoError(t, svc.Close(context.Background()))
}
