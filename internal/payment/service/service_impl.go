package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/karsada/fleetcore/internal/audit/domain"
	"github.com/karsada/fleetcore/internal/clock"
	ledgerdomain "github.com/karsada/fleetcore/internal/ledger/domain"
	"github.com/karsada/fleetcore/internal/payment/domain"
	"github.com/karsada/fleetcore/pkg/db"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      domain.Repository
	LedgerSvc ledgerdomain.Service
	AuditSvc  auditdomain.Service `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      domain.Repository
	ledgerSvc ledgerdomain.Service
	auditSvc  auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		ledgerSvc: p.LedgerSvc,
		auditSvc:  p.AuditSvc,
	}
}

func (s *Service) ListMethods(ctx context.Context, req domain.ListMethodsRequest) ([]domain.PaymentMethod, error) {
	return s.repo.ListMethods(ctx, s.db, req.IncludeInactive)
}

func (s *Service) CreateMethod(ctx context.Context, req domain.CreateMethodRequest) (*domain.PaymentMethod, error) {
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return nil, domain.ErrInvalidDisplayName
	}
	target := strings.TrimSpace(req.TargetAccountCode)
	if target == "" {
		return nil, domain.ErrInvalidTargetAccount
	}

	// Captures debit the target account, so it must be a live asset.
	account, err := s.ledgerSvc.AccountByCode(ctx, target)
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidTargetAccount
		}
		return nil, err
	}
	if account.Type != ledgerdomain.AccountTypeAsset || !account.IsActive {
		return nil, domain.ErrInvalidTargetAccount
	}

	now := s.clock.Now()
	method := &domain.PaymentMethod{
		ID:                uuid.New(),
		Code:              methodCode(name),
		DisplayName:       name,
		TargetAccountCode: account.Code,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.CreateMethod(ctx, s.db.WithContext(ctx), method); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateMethod
		}
		return nil, err
	}

	if s.auditSvc != nil {
		targetID := method.ID.String()
		err := s.auditSvc.AuditLog(ctx, "", nil, "payment.method_created", "payment_method", &targetID, map[string]any{
			"code":                method.Code,
			"target_account_code": method.TargetAccountCode,
		})
		if err != nil {
			s.log.Warn("failed to write payment method audit log", zap.Error(err))
		}
	}
	return method, nil
}

// methodCode derives the tender code from the display name, e.g.
// "Bank Transfer" becomes BANK_TRANSFER.
func methodCode(name string) string {
	return strings.ToUpper(strings.ReplaceAll(slug.Make(name), "-", "_"))
}
