package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"ideahub/api/internal/auth"
	"ideahub/api/internal/authpw"
	"ideahub/api/internal/config"
	"ideahub/api/internal/email"
	"ideahub/api/internal/export"
	"ideahub/api/internal/gitrepo"
	"ideahub/api/internal/rbac"
	"ideahub/api/internal/search"
	"ideahub/api/internal/storage"
	"ideahub/api/internal/store"
	"ideahub/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is everything the service needs from Postgres.
type dataStore interface {
	Ping(context.Context) error

	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByUsername(context.Context, string) (store.User, error)
	UpdateUserProfile(context.Context, string, string, string, string) error
	UpdateUserRole(context.Context, string, string) error
	DeleteUser(context.Context, string) error
	ListUsers(context.Context, string, int, int) ([]store.User, int, error)
	CountUsers(context.Context) (int, error)
	UpdateUserVerificationToken(context.Context, string, string, time.Time) error
	VerifyUserEmail(context.Context, string) error
	UpdateUserPassword(context.Context, string, string) error
	CreatePasswordReset(context.Context, string, string, time.Time) error
	GetPasswordReset(context.Context, string) (string, error)
	MarkPasswordResetUsed(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	InsertIdea(context.Context, store.Idea) error
	GetIdea(context.Context, string) (store.Idea, error)
	ListIdeas(context.Context, store.IdeaFilter) ([]store.Idea, int, error)
	UpdateIdea(context.Context, string, store.IdeaUpdate) error
	UpdateIdeaStatus(context.Context, string, string) error
	UpdateIdeaAssignments(context.Context, string, store.Assignment, store.Assignment, store.Assignment) error
	DeleteIdea(context.Context, string) error
	TouchIdea(context.Context, string) error
	ClaimPendingAssignments(context.Context, string, string) ([]string, error)
	InsertStatusChange(context.Context, store.StatusChange) error
	ListStatusChanges(context.Context, string) ([]store.StatusChange, error)
	InsertAttachment(context.Context, store.Attachment) error
	GetAttachment(context.Context, string) (store.Attachment, error)
	ListAttachments(context.Context, string) ([]store.Attachment, error)

	AddVote(context.Context, string, string) (int, bool, error)
	RemoveVote(context.Context, string, string) (int, bool, error)
	HasVoted(context.Context, string, string) (bool, error)
	ListUserVotes(context.Context, string) ([]string, error)
	InsertComment(context.Context, store.Comment) error
	GetComment(context.Context, string) (store.Comment, error)
	ListComments(context.Context, string) ([]store.Comment, error)
	DeleteComment(context.Context, string) error
	AddFollow(context.Context, store.Follow) error
	RemoveFollow(context.Context, string, string) error
	ListFollows(context.Context, string) ([]store.Follow, error)
	IsFollowing(context.Context, string, string) (bool, error)
	ListFollowerIDs(context.Context, string) ([]string, error)
	AddParticipant(context.Context, string, string) (bool, error)
	RemoveParticipant(context.Context, string, string) error
	IsParticipant(context.Context, string, string) (bool, error)
	ListParticipants(context.Context, string) ([]store.User, error)

	InsertNotification(context.Context, store.Notification) error
	ListNotifications(context.Context, string, bool, int, int) ([]store.Notification, error)
	UnreadNotificationCount(context.Context, string) (int, error)
	MarkNotificationRead(context.Context, string, string) error
	MarkAllNotificationsRead(context.Context, string) (int, error)

	Leaderboard(context.Context, store.LeaderboardFilter) ([]store.LeaderboardRow, error)
	MetricsSummary(context.Context) (store.Metrics, error)
	StatusBreakdown(context.Context) ([]store.CountByLabel, error)
	CategoryBreakdown(context.Context) ([]store.CountByLabel, error)
	DepartmentActivity(context.Context) ([]store.CountByLabel, error)
	SubmissionTrend(context.Context, int) ([]store.TimeCount, error)
	ListDepartments(context.Context) ([]string, error)
}

// refreshSessionStore holds rotating refresh tokens: Redis when configured,
// Postgres otherwise. Access-token revocation always lives in Postgres.
type refreshSessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
}

type gitService interface {
	EnsureIdeaRepo(string, gitrepo.Snapshot, string) error
	CommitSnapshot(string, gitrepo.Snapshot, string, string) (store.CommitInfo, error)
	GetHeadSnapshot(string) (gitrepo.Snapshot, store.CommitInfo, error)
	GetSnapshotByHash(string, string) (gitrepo.Snapshot, error)
	GetCommitByHash(string, string) (store.CommitInfo, error)
	History(string, int) ([]store.CommitInfo, error)
	Remove(string) error
}

type searchIndex interface {
	Search(search.Query) search.Response
	IndexIdea(search.IdeaRecord)
	IndexComment(search.CommentRecord)
	DeleteIdea(string)
	DeleteComment(string)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshSessionStore
	accounts *authpw.Service
	git      gitService
	search   searchIndex
	files    storage.Store
	mailer   *email.Service
	exports  *export.Service
	logger   *zap.Logger
}

// Dependencies collects the collaborators wired in main. Sessions may be nil,
// in which case refresh sessions fall back to Postgres.
type Dependencies struct {
	Store    *store.PostgresStore
	Sessions refreshSessionStore
	Accounts *authpw.Service
	Git      *gitrepo.Service
	Search   searchIndex
	Files    storage.Store
	Mailer   *email.Service
	Logger   *zap.Logger
}

func New(cfg config.Config, deps Dependencies) *Service {
	s := &Service{
		cfg:      cfg,
		store:    deps.Store,
		sessions: deps.Sessions,
		accounts: deps.Accounts,
		git:      deps.Git,
		search:   deps.Search,
		files:    deps.Files,
		mailer:   deps.Mailer,
		logger:   deps.Logger,
	}
	if s.sessions == nil {
		s.sessions = deps.Store
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.exports = export.NewService(&exportData{service: s})
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds the admin account on an empty database so a fresh
// deployment has someone who can triage.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	admin := store.User{
		ID:              util.NewID("usr"),
		Username:        "admin",
		Email:           strings.ToLower(s.cfg.AdminEmail),
		DisplayName:     "Administrator",
		Role:            string(rbac.RoleAdmin),
		PasswordHash:    string(hash),
		IsEmailVerified: true,
	}
	if err := s.store.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	s.logger.Info("seeded admin account", zap.String("email", admin.Email))
	return nil
}

type RegisterInput struct {
	Username    string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	DisplayName string `json:"displayName" validate:"required,min=1,max=80"`
	Department  string `json:"department" validate:"max=80"`
}

type RegisterResult struct {
	UserID               string
	RequiresVerification bool
	// Session is nil while the address still needs verification.
	Session *Session
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	address := strings.ToLower(strings.TrimSpace(input.Email))
	displayName := strings.TrimSpace(input.DisplayName)
	resp, err := s.accounts.SignUp(ctx, authpw.SignUpRequest{
		Username:    strings.TrimSpace(input.Username),
		Email:       address,
		Password:    input.Password,
		DisplayName: displayName,
		Department:  strings.TrimSpace(input.Department),
	})
	if err != nil {
		// Tag validation ran above, so what remains is a taken email/username.
		return nil, domainError(http.StatusConflict, "CONFLICT", err.Error(), nil)
	}

	s.claimPendingAssignments(ctx, address, resp.UserID)

	if resp.RequiresEmailVerify {
		if s.mailer != nil && s.mailer.IsConfigured() {
			verifyURL := s.cfg.BaseURL + "/verify-email?token=" + url.QueryEscape(resp.VerificationToken)
			go func() {
				if err := s.mailer.SendVerificationEmail(address, displayName, verifyURL); err != nil {
					s.logger.Warn("send verification email", zap.String("email", address), zap.Error(err))
				}
			}()
		}
		return &RegisterResult{UserID: resp.UserID, RequiresVerification: true}, nil
	}

	user, err := s.store.GetUserByID(ctx, resp.UserID)
	if err != nil {
		return nil, err
	}
	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	return &RegisterResult{UserID: user.ID, Session: &session}, nil
}

// claimPendingAssignments binds email-only triage slots to the freshly
// registered account and tells the user about each one.
func (s *Service) claimPendingAssignments(ctx context.Context, address, userID string) {
	claimed, err := s.store.ClaimPendingAssignments(ctx, address, userID)
	if err != nil {
		s.logger.Warn("claim pending assignments", zap.String("email", address), zap.Error(err))
		return
	}
	for _, ideaID := range claimed {
		idea, err := s.store.GetIdea(ctx, ideaID)
		if err != nil {
			s.logger.Warn("load claimed idea", zap.String("idea_id", ideaID), zap.Error(err))
			continue
		}
		s.notify(ctx, userID, "New assignment",
			fmt.Sprintf("You were assigned to %q.", idea.Title), "assignment", &idea.ID, nil)
	}
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Service) Login(ctx context.Context, input LoginInput) (Session, error) {
	if err := validateInput(input); err != nil {
		return Session{}, err
	}

	resp, err := s.accounts.SignIn(ctx, authpw.SignInRequest{
		Email:    strings.ToLower(strings.TrimSpace(input.Email)),
		Password: input.Password,
	})
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
	}
	if resp.RequiresVerify {
		return Session{}, domainError(http.StatusForbidden, "FORBIDDEN", "Email address not verified", nil)
	}
	return s.issueSession(ctx, resp.User)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if err := s.accounts.VerifyEmail(ctx, token); err != nil {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	}
	return nil
}

// RequestPasswordReset reports success for unknown addresses too, so the
// endpoint cannot be used to probe which emails have accounts. Without a
// configured mailer the token comes back to the caller for out-of-band
// delivery; with one, it only ever travels by email.
func (s *Service) RequestPasswordReset(ctx context.Context, address string) (string, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return "", domainError(http.StatusBadRequest, "VALIDATION_ERROR", "email is required", nil)
	}
	token, err := s.accounts.RequestPasswordReset(ctx, address)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", nil
	}
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return token, nil
	}

	user, err := s.store.GetUserByEmail(ctx, address)
	if err != nil {
		return "", nil
	}
	resetURL := s.cfg.BaseURL + "/reset-password?token=" + url.QueryEscape(token)
	go func() {
		if err := s.mailer.SendPasswordResetEmail(address, user.DisplayName, resetURL); err != nil {
			s.logger.Warn("send password reset email", zap.String("email", address), zap.Error(err))
		}
	}()
	return "", nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.accounts.ResetPassword(ctx, authpw.ResetPasswordRequest{
		Token:       token,
		NewPassword: newPassword,
	}); err != nil {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	}
	return nil
}

// Refresh rotates a refresh token. The user record is reloaded so role
// changes take effect no later than the next rotation.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	// A token for a since-deleted account reads as invalid, not as a 404.
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// notify inserts a notification, logging instead of failing the caller.
func (s *Service) notify(ctx context.Context, userID, title, message, kind string, ideaID, actorID *string) {
	if userID == "" {
		return
	}
	n := store.Notification{
		ID:      util.NewID("ntf"),
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    kind,
		IdeaID:  ideaID,
		ActorID: actorID,
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		s.logger.Warn("insert notification", zap.String("user_id", userID), zap.Error(err))
	}
}
