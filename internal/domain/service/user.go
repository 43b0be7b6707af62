package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
	"github.com/campus-events/event-aggregator/internal/domain/dto"
	"github.com/campus-events/event-aggregator/internal/domain/entity"
	"github.com/campus-events/event-aggregator/pkg/logger/types"
)

type UserStorage interface {
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, user *entity.User) error
}

type SessionStorage interface {
	Get(ctx context.Context, token string) (dto.Session, error)
	Set(ctx context.Context, session dto.Session) error
	Clear(ctx context.Context, token string) error
}

// AdminSeed is the account created when the users table is empty.
type AdminSeed struct {
	Name     string
	Email    string
	Password string
}

type UserService struct {
	logger *types.Logger

	storage  UserStorage
	sessions SessionStorage
	validate *validator.Validate

	bcryptCost int
	now        func() time.Time
}

func NewUserService(logger *types.Logger, storage UserStorage, sessions SessionStorage, validate *validator.Validate) *UserService {
	return &UserService{
		logger: logger,

		storage:  storage,
		sessions: sessions,
		validate: validate,

		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// WithBcryptCost sets the hashing cost of new passwords.
func (s *UserService) WithBcryptCost(cost int) *UserService {
	s.bcryptCost = cost
	return s
}

func (s *UserService) WithClock(now func() time.Time) *UserService {
	s.now = now
	return s
}

// SignUp creates a student account.
func (s *UserService) SignUp(ctx context.Context, input dto.SignUp) (*entity.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.StudentID = strings.TrimSpace(input.StudentID)
	if s.validate != nil {
		if err := s.validate.Struct(input); err != nil {
			return nil, fmt.Errorf("%w: %v", errorz.ErrInvalidInput, err)
		}
	}

	hash, err := s.hash(input.Password)
	if err != nil {
		return nil, err
	}

	interests := make([]string, 0, len(input.Interests))
	for _, i := range input.Interests {
		if i = strings.TrimSpace(i); i != "" {
			interests = append(interests, i)
		}
	}

	user := &entity.User{
		Name:         input.Name,
		Email:        input.Email,
		StudentID:    input.StudentID,
		Department:   strings.TrimSpace(input.Department),
		Year:         strings.TrimSpace(input.Year),
		Interests:    interests,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err = s.storage.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Infof("User signed up (user_id=%s, email=%s)", user.ID, user.Email)
	return user, nil
}

// Authenticate checks the password of a user. Unknown users and wrong
// passwords give the same error.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*entity.User, error) {
	user, err := s.storage.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, errorz.ErrUserNotFound) {
		return nil, errorz.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !checkPassword(user.PasswordHash, password) {
		return nil, errorz.ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) AuthenticateAdmin(ctx context.Context, email, password string) (*entity.User, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin {
		return nil, errorz.ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (dto.Session, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return dto.Session{}, err
	}
	return s.startSession(ctx, user)
}

func (s *UserService) LoginAdmin(ctx context.Context, email, password string) (dto.Session, error) {
	user, err := s.AuthenticateAdmin(ctx, email, password)
	if err != nil {
		return dto.Session{}, err
	}
	return s.startSession(ctx, user)
}

func (s *UserService) startSession(ctx context.Context, user *entity.User) (dto.Session, error) {
	session := dto.Session{
		Token:     uuid.NewString(),
		UserEmail: user.Email,
		UserName:  user.Name,
		IsAdmin:   user.IsAdmin,
		CreatedAt: s.now(),
	}
	if err := s.sessions.Set(ctx, session); err != nil {
		return dto.Session{}, err
	}
	s.logger.Debugf("Session started (user=%s, admin=%t)", user.Email, user.IsAdmin)
	return session, nil
}

func (s *UserService) Logout(ctx context.Context, token string) error {
	return s.sessions.Clear(ctx, token)
}

func (s *UserService) Session(ctx context.Context, token string) (dto.Session, error) {
	return s.sessions.Get(ctx, token)
}

// SelectEvent remembers the event the session user is looking at.
func (s *UserService) SelectEvent(ctx context.Context, token, eventID string) (dto.Session, error) {
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		return dto.Session{}, err
	}
	session.SelectedEventID = eventID
	if err = s.sessions.Set(ctx, session); err != nil {
		return dto.Session{}, err
	}
	return session, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return s.storage.GetByEmail(ctx, email)
}

// SeedAdmin creates the admin account if there are no users yet.
func (s *UserService) SeedAdmin(ctx context.Context, seed AdminSeed) error {
	if seed.Email == "" || seed.Password == "" {
		return nil
	}
	count, err := s.storage.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := s.hash(seed.Password)
	if err != nil {
		return err
	}
	name := seed.Name
	if name == "" {
		name = "Administrator"
	}
	err = s.storage.Create(ctx, &entity.User{
		Name:         name,
		Email:        strings.ToLower(seed.Email),
		StudentID:    "ADMIN001",
		Department:   "Administration",
		Year:         "Staff",
		PasswordHash: hash,
		IsAdmin:      true,
		CreatedAt:    s.now(),
	})
	if errors.Is(err, errorz.ErrUserExists) {
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Infof("Admin account created (email=%s)", seed.Email)
	return nil
}

func (s *UserService) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// checkPassword accepts bcrypt hashes and the unsalted sha256 hex digests
// of accounts imported from the old users sheet.
func checkPassword(hash, password string) bool {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	sum := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(hash)), []byte(hex.EncodeToString(sum[:]))) == 1
}
