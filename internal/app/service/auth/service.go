package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/subscriptions/internal/app/store"
	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/pkg/apperror"
	cfgpkg "github.com/fatflowers/subscriptions/pkg/config"
	"github.com/fatflowers/subscriptions/pkg/logctx"
	"github.com/fatflowers/subscriptions/pkg/password"
	"github.com/fatflowers/subscriptions/pkg/token"
	"github.com/fatflowers/subscriptions/pkg/tool"
	"github.com/fatflowers/subscriptions/pkg/types"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 50
)

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=100"`
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	// Login is a username or an email address.
	Login    string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type Service struct {
	store  store.Store
	tokens token.Maker
	log    *zap.SugaredLogger
}

func NewService(st store.Store, tokens token.Maker, log *zap.SugaredLogger) *Service {
	return &Service{store: st, tokens: tokens, log: log}
}

func validateRegistration(req RegisterRequest) error {
	// reject display-name forms such as "Alice <a@b.c>"; the input is stored verbatim
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		return apperror.BadRequest("Invalid email address")
	}
	if n := len(req.Username); n < minUsernameLength || n > maxUsernameLength {
		return apperror.BadRequest("Username must be %d to %d characters", minUsernameLength, maxUsernameLength)
	}
	if len(req.Password) < password.MinLength {
		return apperror.BadRequest("Password must be at least %d characters", password.MinLength)
	}
	return nil
}

// Register creates an active, non-admin user.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if err := validateRegistration(req); err != nil {
		return nil, err
	}
	return s.createUser(ctx, req, false)
}

func (s *Service) createUser(ctx context.Context, req RegisterRequest, isAdmin bool) (*models.User, error) {
	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, apperror.Internal(err, "hash password")
	}
	u := &models.User{
		ID:           tool.GenerateUUIDV7(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		IsActive:     true,
		IsAdmin:      isAdmin,
	}
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		for _, login := range []string{u.Email, u.Username} {
			existing, err := tx.GetUserByLogin(ctx, login)
			switch {
			case err == nil && existing.Email == u.Email:
				return apperror.Conflict("Email already registered")
			case err == nil:
				return apperror.Conflict("Username already taken")
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}
		return tx.CreateUser(ctx, u)
	})
	if err != nil {
		var appErr *apperror.Error
		switch {
		case errors.As(err, &appErr):
			return nil, err
		case errors.Is(err, store.ErrDuplicate):
			return nil, apperror.Conflict("Email or username already registered")
		default:
			return nil, apperror.Internal(err, "create user")
		}
	}
	logctx.FromCtx(ctx, s.log).Infow("user registered", "user_id", u.ID, "username", u.Username, "is_admin", isAdmin)
	return u, nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	u, err := s.store.GetUserByLogin(ctx, strings.TrimSpace(req.Login))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.Unauthorized("Incorrect username or password")
		}
		return nil, apperror.Internal(err, "load user")
	}
	if err := password.Compare(u.PasswordHash, req.Password); err != nil {
		return nil, apperror.Unauthorized("Incorrect username or password")
	}
	if !u.IsActive {
		return nil, apperror.Unauthorized("Inactive user")
	}
	tok, err := s.tokens.Generate(u.ID, u.Username, u.IsAdmin)
	if err != nil {
		return nil, apperror.Internal(err, "issue token")
	}
	return &TokenResponse{AccessToken: tok, TokenType: "bearer"}, nil
}

// Authenticate resolves a bearer token to the current, active user.
func (s *Service) Authenticate(ctx context.Context, tokenStr string) (*types.Requester, error) {
	claims, err := s.tokens.Parse(tokenStr)
	if err != nil {
		return nil, apperror.Unauthorized("Could not validate credentials")
	}
	u, err := s.store.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.Unauthorized("Could not validate credentials")
		}
		return nil, apperror.Internal(err, "load user")
	}
	if !u.IsActive {
		return nil, apperror.Unauthorized("Inactive user")
	}
	// admin rights come from the database, not the token
	return &types.Requester{UserID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin}, nil
}

// Me returns the stored user behind a requester.
func (s *Service) Me(ctx context.Context, r *types.Requester) (*models.User, error) {
	if r == nil {
		return nil, apperror.Unauthorized("Not authenticated")
	}
	u, err := s.store.GetUser(ctx, r.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NotFound("User not found")
		}
		return nil, apperror.Internal(err, "load user")
	}
	return u, nil
}

// EnsureBootstrapAdmin creates the configured admin account if it does not exist yet.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, cfg cfgpkg.BootstrapAdminConfig) error {
	if !cfg.Enabled() {
		return nil
	}
	if _, err := s.store.GetUserByLogin(ctx, cfg.Username); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	_, err := s.createUser(ctx, RegisterRequest{Email: cfg.Email, Username: cfg.Username, Password: cfg.Password}, true)
	if apperror.KindOf(err) == apperror.KindConflict {
		return nil
	}
	return err
}

func newTokenMaker(cfg *cfgpkg.Config) token.Maker {
	return token.NewHMACMaker(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
}

func registerBootstrapAdmin(lc fx.Lifecycle, svc *Service, cfg *cfgpkg.Config) {
	lc.Append(fx.StartHook(func(ctx context.Context) error {
		return svc.EnsureBootstrapAdmin(ctx, cfg.Auth.BootstrapAdmin)
	}))
}

var Module = fx.Options(
	fx.Provide(NewService, newTokenMaker),
	fx.Invoke(registerBootstrapAdmin),
)
