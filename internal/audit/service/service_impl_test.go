package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/karsada/fleetcore/internal/audit/domain"
	"github.com/karsada/fleetcore/internal/audit/repository"
	"github.com/karsada/fleetcore/internal/auditcontext"
	"github.com/karsada/fleetcore/internal/clock"
)

func newAuditService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	fake := clock.NewFakeClock(time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  repository.Provide(),
	})
	return svc.(*Service), fake
}

func TestAuditLogCapturesRequestContext(t *testing.T) {
	svc, _ := newAuditService(t)

	ctx := auditcontext.WithRequestID(context.Background(), "req_01ABC")
	ctx = auditcontext.WithIPAddress(ctx, "203.0.113.4")
	ctx = auditcontext.WithUserAgent(ctx, "fleet-cli/1.0")
	ctx = auditcontext.WithActor(ctx, "user", "6f1c0b2e-8c17-4af4-9d9b-0a54fd2c7a11")
	ctx = auditcontext.WithRentalID(ctx, "rental-123")

	require.NoError(t, svc.AuditLog(ctx, "", nil, "rental.activated", "rental", nil, map[string]any{
		"rental_number": "RNT-1001",
	}))

	var entry auditdomain.AuditLog
	require.NoError(t, svc.db.First(&entry).Error)
	assert.Equal(t, "rental.activated", entry.Action)
	assert.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "6f1c0b2e-8c17-4af4-9d9b-0a54fd2c7a11", *entry.ActorID)
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "203.0.113.4", *entry.IPAddress)
	assert.Equal(t, "req_01ABC", entry.Metadata["request_id"])
	assert.Equal(t, "rental-123", entry.Metadata["rental_id"])
	assert.Equal(t, "RNT-1001", entry.Metadata["rental_number"])
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc, _ := newAuditService(t)
	err := svc.AuditLog(context.Background(), "system", nil, "  ", "vehicle", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	svc, _ := newAuditService(t)

	require.NoError(t, svc.AuditLog(context.Background(), "", nil, "invoice.overdue_marked", "invoice", nil, nil))

	var entry auditdomain.AuditLog
	require.NoError(t, svc.db.First(&entry).Error)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), entry.ActorType)
	assert.Nil(t, entry.ActorID)
}

func TestListPaginatesDescending(t *testing.T) {
	svc, fake := newAuditService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.AuditLog(ctx, "system", nil, "vehicle.state_changed", "vehicle", nil, nil))
		fake.Advance(time.Minute)
	}

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 5)
	assert.Equal(t, int64(5), resp.Total)
	assert.Nil(t, resp.NextCursor)

	req := auditdomain.ListAuditLogRequest{}
	req.Limit = 2
	firstPage, err := svc.List(ctx, req)
	require.NoError(t, err)
	assert.Len(t, firstPage.AuditLogs, 2)
	require.NotNil(t, firstPage.NextCursor)
	assert.True(t, firstPage.AuditLogs[0].CreatedAt.After(firstPage.AuditLogs[1].CreatedAt))

	req.Cursor = *firstPage.NextCursor
	secondPage, err := svc.List(ctx, req)
	require.NoError(t, err)
	assert.Len(t, secondPage.AuditLogs, 2)
	assert.True(t, firstPage.AuditLogs[1].CreatedAt.After(secondPage.AuditLogs[0].CreatedAt))
}

func TestListRejectsBadInput(t *testing.T) {
	svc, _ := newAuditService(t)
	ctx := context.Background()

	start := time.Date(2026, 4, 11, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err := svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)

	req := auditdomain.ListAuditLogRequest{}
	req.Cursor = "not-base64!"
	_, err = svc.List(ctx, req)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
