package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/karsada/fleetcore/internal/audit/domain"
	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/customer/domain"
	"github.com/karsada/fleetcore/pkg/db"
	"github.com/karsada/fleetcore/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository

	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("customer.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Customer, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}

	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	if firstName == "" || lastName == "" {
		return nil, domain.ErrInvalidName
	}

	license := strings.ToUpper(strings.TrimSpace(req.DriverLicenseNumber))
	if license == "" {
		return nil, domain.ErrInvalidLicense
	}
	if req.DriverLicenseExpiry.IsZero() {
		return nil, domain.ErrInvalidLicense
	}

	now := s.clock.Now()
	customer := &domain.Customer{
		ID:                  uuid.New(),
		Email:               email,
		Phone:               strings.TrimSpace(req.Phone),
		FirstName:           firstName,
		LastName:            lastName,
		DriverLicenseNumber: license,
		DriverLicenseExpiry: req.DriverLicenseExpiry.UTC(),
		AddressLine1:        strings.TrimSpace(req.AddressLine1),
		AddressLine2:        strings.TrimSpace(req.AddressLine2),
		City:                strings.TrimSpace(req.City),
		Province:            strings.TrimSpace(req.Province),
		PostalCode:          strings.TrimSpace(req.PostalCode),
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.repo.Insert(ctx, s.db, customer); err != nil {
		if db.IsDuplicateKeyErr(err) {
			if strings.Contains(strings.ToLower(err.Error()), "email") {
				return nil, domain.ErrDuplicateEmail
			}
			return nil, domain.ErrDuplicateLicense
		}
		return nil, err
	}

	s.audit(ctx, "customer.created", customer.ID, map[string]any{
		"email": customer.Email,
	})

	return customer, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Customer, error) {
	customerID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	customer, err := s.repo.FindByID(ctx, s.db, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, domain.ErrNotFound
	}
	return customer, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	filter := domain.ListFilter{
		Email:    strings.TrimSpace(req.Email),
		License:  strings.ToUpper(strings.TrimSpace(req.License)),
		IsActive: req.IsActive,
		Search:   strings.TrimSpace(req.Search),
	}

	if token := strings.TrimSpace(req.Cursor); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		id, err := uuid.Parse(strings.TrimSpace(decoded.ID))
		if err != nil || id == uuid.Nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = &domain.Cursor{ID: id, CreatedAt: createdAt}
	}

	page := req.Pagination.Normalize()
	filter.Limit = page.Limit

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}
	total, err := s.repo.Count(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, page.Limit, func(item *domain.Customer) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	customers := make([]domain.Customer, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		customers = append(customers, *item)
	}

	resp := domain.ListResponse{Customers: customers}
	if pageInfo != nil {
		pageInfo.Total = total
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Customer, error) {
	customerID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}

	var updated *domain.Customer
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := s.repo.FindByID(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return domain.ErrNotFound
		}

		if req.Phone != nil {
			customer.Phone = strings.TrimSpace(*req.Phone)
		}
		if req.FirstName != nil {
			firstName := strings.TrimSpace(*req.FirstName)
			if firstName == "" {
				return domain.ErrInvalidName
			}
			customer.FirstName = firstName
		}
		if req.LastName != nil {
			lastName := strings.TrimSpace(*req.LastName)
			if lastName == "" {
				return domain.ErrInvalidName
			}
			customer.LastName = lastName
		}
		if req.DriverLicenseExpiry != nil {
			if req.DriverLicenseExpiry.IsZero() {
				return domain.ErrInvalidLicense
			}
			customer.DriverLicenseExpiry = req.DriverLicenseExpiry.UTC()
		}
		if req.AddressLine1 != nil {
			customer.AddressLine1 = strings.TrimSpace(*req.AddressLine1)
		}
		if req.AddressLine2 != nil {
			customer.AddressLine2 = strings.TrimSpace(*req.AddressLine2)
		}
		if req.City != nil {
			customer.City = strings.TrimSpace(*req.City)
		}
		if req.Province != nil {
			customer.Province = strings.TrimSpace(*req.Province)
		}
		if req.PostalCode != nil {
			customer.PostalCode = strings.TrimSpace(*req.PostalCode)
		}
		if req.IsActive != nil {
			customer.IsActive = *req.IsActive
		}

		customer.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, customer); err != nil {
			return err
		}
		updated = customer
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "customer.updated", updated.ID, nil)
	return updated, nil
}

func (s *Service) audit(ctx context.Context, action string, customerID uuid.UUID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := customerID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "customer", &targetID, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func parseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil || parsed == uuid.Nil {
		return uuid.Nil, domain.ErrInvalidID
	}
	return parsed, nil
}
