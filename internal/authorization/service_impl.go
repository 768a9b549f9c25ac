package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/vetbill/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectBilling   = "billing"
	ObjectInventory = "inventory"
	ObjectClient    = "client"
	ObjectAuditLog  = "audit_log"
)

const (
	ActionRead  = "read"
	ActionWrite = "write"
)

const (
	RoleAdmin        = "ADMIN"
	RoleVeterinarian = "VETERINARIAN"
	RoleNurse        = "NURSE"
	RoleReceptionist = "RECEPTIONIST"
	RoleShopStaff    = "SHOP_STAFF"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads policies from the casbin_rule table and seeds the staff
// role grants. Seeding is idempotent.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role string, object string, action string) error {
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(roleSubject(role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, role, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, role string, object string, action string) {
	s.log.Info("permission denied",
		zap.String("role", role),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	targetID := fmt.Sprintf("%s.%s", object, action)
	_ = s.auditSvc.AuditLog(ctx, "authorization.denied", auditdomain.TargetTypeAuthorization, &targetID, map[string]any{
		"object": object,
		"action": action,
		"role":   role,
	})
}

func roleSubject(role string) string {
	return "role:" + strings.ToLower(role)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{roleSubject(RoleAdmin), ObjectBilling, ActionRead},
		{roleSubject(RoleAdmin), ObjectBilling, ActionWrite},
		{roleSubject(RoleAdmin), ObjectInventory, ActionRead},
		{roleSubject(RoleAdmin), ObjectInventory, ActionWrite},
		{roleSubject(RoleAdmin), ObjectClient, ActionRead},
		{roleSubject(RoleAdmin), ObjectClient, ActionWrite},
		{roleSubject(RoleAdmin), ObjectAuditLog, ActionRead},

		{roleSubject(RoleReceptionist), ObjectBilling, ActionRead},
		{roleSubject(RoleReceptionist), ObjectBilling, ActionWrite},
		{roleSubject(RoleReceptionist), ObjectClient, ActionRead},
		{roleSubject(RoleReceptionist), ObjectClient, ActionWrite},

		{roleSubject(RoleShopStaff), ObjectBilling, ActionRead},
		{roleSubject(RoleShopStaff), ObjectBilling, ActionWrite},
		{roleSubject(RoleShopStaff), ObjectInventory, ActionRead},
		{roleSubject(RoleShopStaff), ObjectInventory, ActionWrite},

		{roleSubject(RoleVeterinarian), ObjectBilling, ActionRead},
		{roleSubject(RoleVeterinarian), ObjectInventory, ActionRead},
		{roleSubject(RoleVeterinarian), ObjectClient, ActionRead},
		{roleSubject(RoleVeterinarian), ObjectClient, ActionWrite},

		{roleSubject(RoleNurse), ObjectInventory, ActionRead},
		{roleSubject(RoleNurse), ObjectClient, ActionRead},
		{roleSubject(RoleNurse), ObjectClient, ActionWrite},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
