package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/karsada/fleetcore/internal/audit/domain"
	"github.com/karsada/fleetcore/internal/auth/password"
	"github.com/karsada/fleetcore/internal/auth/token"
	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/user/domain"
	"github.com/karsada/fleetcore/pkg/db"
)

const minPasswordLength = 8

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Repo   domain.Repository
	Tokens *token.Manager

	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	tokens   *token.Manager
	auditSvc auditdomain.Service

	// Verified on login misses so response time does not reveal whether
	// an email is registered.
	dummyHash string
}

func New(p Params) domain.Service {
	dummyHash, err := password.Hash(uuid.NewString())
	if err != nil {
		p.Log.Warn("dummy hash generation failed", zap.Error(err))
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("user.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		tokens:    p.Tokens,
		auditSvc:  p.AuditSvc,
		dummyHash: dummyHash,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLength {
		return nil, domain.ErrWeakPassword
	}

	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	if firstName == "" || lastName == "" {
		return nil, domain.ErrInvalidName
	}

	if existing, err := s.repo.FindByEmail(ctx, s.db, email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, domain.ErrEmailTaken
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Roles:        []string{domain.RoleCustomer},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, s.db, user); err != nil {
		// The unique index settles races the existence check above missed.
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}

	s.log.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("email", user.Email),
	)
	s.audit(ctx, "user.registered", user.ID, map[string]any{"email": user.Email})

	return user, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Burn the same hash work as a real verify. Unknown email and
		// wrong password must be indistinguishable, in timing too.
		password.Verify(req.Password, s.dummyHash)
		return nil, domain.ErrInvalidCredentials
	}

	if !password.Verify(req.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, domain.ErrUserDisabled
	}

	result, err := s.issueTokens(ctx, s.db, user)
	if err != nil {
		return nil, err
	}

	s.log.Info("user logged in", zap.String("user_id", user.ID.String()))
	s.audit(ctx, "user.logged_in", user.ID, nil)

	return result, nil
}

func (s *Service) Refresh(ctx context.Context, rawToken string) (*domain.LoginResult, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, domain.ErrInvalidRefreshToken
	}

	stored, err := s.repo.FindTokenByHash(ctx, s.db, token.HashRefresh(rawToken))
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, domain.ErrInvalidRefreshToken
	}

	now := s.clock.Now()
	if stored.RevokedAt != nil {
		// A rotated token came back. Someone other than the legitimate
		// client holds it, so every live token of this user is burned.
		if _, err := s.repo.RevokeAllForUser(ctx, s.db, stored.UserID, now); err != nil {
			return nil, err
		}
		s.log.Warn("refresh token reuse detected",
			zap.String("user_id", stored.UserID.String()),
			zap.String("token_id", stored.ID.String()),
		)
		s.audit(ctx, "user.refresh_reuse_detected", stored.UserID, map[string]any{
			"token_id": stored.ID.String(),
		})
		return nil, domain.ErrInvalidRefreshToken
	}
	if now.After(stored.ExpiresAt) {
		return nil, domain.ErrInvalidRefreshToken
	}

	user, err := s.repo.FindByID(ctx, s.db, stored.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrInvalidRefreshToken
	}
	if !user.IsActive {
		return nil, domain.ErrUserDisabled
	}

	var (
		result *domain.LoginResult
		reuse  bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.RevokeToken(ctx, tx, stored.ID, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			// Lost a race since the read above; the token was just spent
			// by another request. Commit the chain burn, fail the call.
			reuse = true
			_, err := s.repo.RevokeAllForUser(ctx, tx, stored.UserID, now)
			return err
		}
		result, err = s.issueTokens(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	if reuse {
		s.log.Warn("refresh token reuse detected",
			zap.String("user_id", stored.UserID.String()),
			zap.String("token_id", stored.ID.String()),
		)
		s.audit(ctx, "user.refresh_reuse_detected", stored.UserID, map[string]any{
			"token_id": stored.ID.String(),
		})
		return nil, domain.ErrInvalidRefreshToken
	}

	s.audit(ctx, "user.token_refreshed", user.ID, nil)

	return result, nil
}

func (s *Service) Me(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *Service) PurgeTokens(ctx context.Context) (int64, error) {
	rows, err := s.repo.DeleteExpiredTokens(ctx, s.db, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if rows > 0 {
		s.log.Info("expired refresh tokens purged", zap.Int64("count", rows))
	}
	return rows, nil
}

func (s *Service) issueTokens(ctx context.Context, tx *gorm.DB, user *domain.User) (*domain.LoginResult, error) {
	access, accessExp, err := s.tokens.IssueAccess(user.ID, user.Email, user.Roles)
	if err != nil {
		return nil, err
	}

	raw, hash, refreshExp, err := s.tokens.NewRefresh()
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateToken(ctx, tx, &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: refreshExp,
		CreatedAt: s.clock.Now(),
	}); err != nil {
		return nil, err
	}

	return &domain.LoginResult{
		User:                  user,
		AccessToken:           access,
		AccessTokenExpiresAt:  accessExp,
		RefreshToken:          raw,
		RefreshTokenExpiresAt: refreshExp,
	}, nil
}

func (s *Service) audit(ctx context.Context, action string, userID uuid.UUID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := userID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "user", &targetID, metadata); err != nil {
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
