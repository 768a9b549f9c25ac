package authorization_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/vetbill/internal/audit/domain"
	auditrepository "github.com/smallbiznis/vetbill/internal/audit/repository"
	auditservice "github.com/smallbiznis/vetbill/internal/audit/service"
	"github.com/smallbiznis/vetbill/internal/authorization"
	"github.com/smallbiznis/vetbill/internal/clock"
	"github.com/smallbiznis/vetbill/internal/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, authorization.Service, auditdomain.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
		Repo:  auditrepository.Provide(),
	})

	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	return db, authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer, AuditSvc: audit}), audit
}

func TestBillingPermissionsByRole(t *testing.T) {
	_, svc, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		role  string
		read  bool
		write bool
	}{
		{authorization.RoleAdmin, true, true},
		{authorization.RoleReceptionist, true, true},
		{authorization.RoleShopStaff, true, true},
		{authorization.RoleVeterinarian, true, false},
		{authorization.RoleNurse, false, false},
		{"GROOMER", false, false},
	}
	for _, tc := range tests {
		t.Run(tc.role, func(t *testing.T) {
			readErr := svc.Authorize(ctx, tc.role, authorization.ObjectBilling, authorization.ActionRead)
			writeErr := svc.Authorize(ctx, tc.role, authorization.ObjectBilling, authorization.ActionWrite)
			if tc.read {
				assert.NoError(t, readErr)
			} else {
				assert.ErrorIs(t, readErr, authorization.ErrForbidden)
			}
			if tc.write {
				assert.NoError(t, writeErr)
			} else {
				assert.ErrorIs(t, writeErr, authorization.ErrForbidden)
			}
		})
	}
}

func TestAuthorizeNormalizesRole(t *testing.T) {
	_, svc, _ := setup(t)

	assert.NoError(t, svc.Authorize(context.Background(), " receptionist ", authorization.ObjectBilling, authorization.ActionWrite))
	assert.ErrorIs(t, svc.Authorize(context.Background(), "", authorization.ObjectBilling, authorization.ActionRead), authorization.ErrInvalidRole)
	assert.ErrorIs(t, svc.Authorize(context.Background(), "ADMIN", "", authorization.ActionRead), authorization.ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(context.Background(), "ADMIN", authorization.ObjectBilling, ""), authorization.ErrInvalidAction)
}

func TestDeniedAccessIsAudited(t *testing.T) {
	_, svc, audit := setup(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.Authorize(ctx, authorization.RoleVeterinarian, authorization.ObjectBilling, authorization.ActionWrite), authorization.ErrForbidden)

	resp, err := audit.List(ctx, auditdomain.ListAuditLogRequest{Action: "authorization.denied"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "VETERINARIAN", resp.AuditLogs[0].Metadata["role"])
}

func TestSeedingIsIdempotent(t *testing.T) {
	db, _, _ := setup(t)

	var before int64
	require.NoError(t, db.Table("casbin_rule").Count(&before).Error)

	_, err := authorization.NewEnforcer(db)
	require.NoError(t, err)

	var after int64
	require.NoError(t, db.Table("casbin_rule").Count(&after).Error)
	assert.Equal(t, before, after)
	assert.Positive(t, after)
}
