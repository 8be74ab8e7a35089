// Package auth handles user accounts, password checks and bearer tokens.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/hyperjump/studydesk/internal/models"
	"github.com/hyperjump/studydesk/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Messages returned to clients. They are part of the HTTP contract.
const (
	MsgStudentIDRequired = "学号不能为空"
	MsgPasswordRequired  = "密码不能为空"
	MsgPasswordTooShort  = "密码至少6位"
	MsgInvalidEmail      = "邮箱格式不正确"
)

var (
	// ErrUserUnavailable is returned when the account does not exist or is disabled.
	ErrUserUnavailable = errors.New("用户不存在或已禁用")
	// ErrWrongPassword is returned when the password does not match.
	ErrWrongPassword = errors.New("密码错误")
)

// ValidationError reports invalid input; Error returns the client message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

const (
	minPasswordLen = 6
	defaultName    = "新用户"
	defaultAvatar  = "👤"
	defaultRole    = "student"
)

// Service authenticates users and manages accounts.
type Service struct {
	store  storage.Storage
	tokens *tokenStore
	cost   int
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for login and migration events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source for login stamps and token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost sets the bcrypt cost used for new hashes.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService constructs an auth service whose tokens live for ttl.
func NewService(store storage.Storage, ttl time.Duration, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	s := &Service{
		store:  store,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tokens = newTokenStore(ttl, s.now)
	return s
}

func isHashed(password string) bool {
	for _, p := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(password, p) {
			return true
		}
	}
	return false
}

func (s *Service) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Login checks the credentials of an active user and returns the user without
// password plus a fresh bearer token. A stored plaintext password that matches
// is replaced by its hash in the same update that records the login time.
func (s *Service) Login(ctx context.Context, studentID, password string) (*models.User, string, error) {
	studentID = strings.TrimSpace(studentID)
	password = strings.TrimSpace(password)
	if studentID == "" {
		return nil, "", &ValidationError{MsgStudentIDRequired}
	}
	if password == "" {
		return nil, "", &ValidationError{MsgPasswordRequired}
	}

	migrated := false
	user, err := s.store.UpdateUser(ctx, studentID, func(u *models.User) error {
		if !u.IsActive {
			return ErrUserUnavailable
		}
		if isHashed(u.Password) {
			if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
				return ErrWrongPassword
			}
		} else {
			if subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) != 1 {
				return ErrWrongPassword
			}
			h, err := s.hash(password)
			if err != nil {
				return err
			}
			u.Password = h
			migrated = true
		}
		now := s.now().UTC()
		u.LastLogin = &now
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", ErrUserUnavailable
	}
	if err != nil {
		return nil, "", err
	}
	if migrated {
		s.logger.Info("Upgraded plaintext password", zap.String("student_id", studentID))
	}

	token, err := s.tokens.issue(studentID)
	if err != nil {
		return nil, "", err
	}
	pub := user.Public()
	return &pub, token, nil
}

// Logout revokes token.
func (s *Service) Logout(token string) {
	s.tokens.revoke(token)
}

// Authenticate returns the student ID the token was issued to.
func (s *Service) Authenticate(token string) (string, error) {
	return s.tokens.validate(token)
}

// NewUser is the input for CreateUser.
type NewUser struct {
	StudentID string `json:"studentId"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Grade     string `json:"grade"`
	Email     string `json:"email"`
}

// CreateUser validates and stores a new active student account.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	in.StudentID = strings.TrimSpace(in.StudentID)
	in.Password = strings.TrimSpace(in.Password)
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.StudentID == "":
		return nil, &ValidationError{MsgStudentIDRequired}
	case len([]rune(in.Password)) < minPasswordLen:
		return nil, &ValidationError{MsgPasswordTooShort}
	case in.Email != "" && !validEmail(in.Email):
		return nil, &ValidationError{MsgInvalidEmail}
	}

	h, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := models.User{
		StudentID: in.StudentID,
		Password:  h,
		Name:      in.Name,
		Grade:     in.Grade,
		Email:     in.Email,
		Avatar:    defaultAvatar,
		Role:      defaultRole,
		IsActive:  true,
		CreatedAt: now,
		LastLogin: &now,
	}
	if u.Name == "" {
		u.Name = defaultName
	}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		return nil, err
	}
	pub := u.Public()
	return &pub, nil
}

// UpdateUser merges p into the account. The student ID never changes and a
// supplied password is stored hashed.
func (s *Service) UpdateUser(ctx context.Context, studentID string, p models.UserPatch) (*models.User, error) {
	var hashed string
	if p.Password != nil {
		h, err := s.hash(*p.Password)
		if err != nil {
			return nil, err
		}
		hashed = h
	}
	u, err := s.store.UpdateUser(ctx, studentID, func(u *models.User) error {
		p.Apply(u)
		if p.Password != nil {
			u.Password = hashed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	pub := u.Public()
	return &pub, nil
}

// ListUsers returns every account without passwords.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, models.UsersMetadata, error) {
	users, meta, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, meta, err
	}
	for i := range users {
		users[i] = users[i].Public()
	}
	return users, meta, nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
