package records

import (
	"context"
	"strconv"
	"strings"

	"github.com/campus-events/event-aggregator/internal/adapters/database/tables"
	"github.com/campus-events/event-aggregator/internal/domain/common/errorz"
	"github.com/campus-events/event-aggregator/internal/domain/entity"
)

var userCodec = codec[entity.User]{
	table:  tables.Users,
	id:     func(u entity.User) string { return u.ID },
	decode: UserFromRow,
	encode: UserToRow,
}

func UserFromRow(r tables.Row) entity.User {
	return entity.User{
		ID:           r.Get("ID"),
		Name:         r.Get("Name"),
		Email:        r.Get("Email"),
		StudentID:    r.Get("Student_ID"),
		Department:   r.Get("Department"),
		Year:         r.Get("Year"),
		Interests:    splitList(r.Get("Interests")),
		PasswordHash: r.Get("Password_Hash"),
		IsAdmin:      parseBool(r.Get("Is_Admin")),
		CreatedAt:    parseTimestamp(r.Get("Created_Date")),
	}
}

func UserToRow(u entity.User) tables.Row {
	return tables.Row{
		"ID":            u.ID,
		"Name":          u.Name,
		"Email":         u.Email,
		"Student_ID":    u.StudentID,
		"Department":    u.Department,
		"Year":          u.Year,
		"Interests":     strings.Join(u.Interests, ", "),
		"Password_Hash": u.PasswordHash,
		"Is_Admin":      strconv.FormatBool(u.IsAdmin),
		"Created_Date":  formatTimestamp(u.CreatedAt),
	}
}

type UserStorage struct {
	store tables.Store
}

func NewUserStorage(store tables.Store) *UserStorage {
	return &UserStorage{
		store: store,
	}
}

func (s *UserStorage) List(ctx context.Context) ([]entity.User, error) {
	return userCodec.list(ctx, s.store)
}

func (s *UserStorage) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	users, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if entity.SameUser(users[i].Email, email) {
			return &users[i], nil
		}
	}
	return nil, errorz.ErrUserNotFound
}

func (s *UserStorage) Count(ctx context.Context) (int, error) {
	users, err := s.List(ctx)
	return len(users), err
}

// Create appends the user unless the email or the student id is taken.
func (s *UserStorage) Create(ctx context.Context, user *entity.User) error {
	return userCodec.mutate(ctx, s.store, func(users []entity.User) ([]entity.User, error) {
		for _, u := range users {
			if entity.SameUser(u.Email, user.Email) {
				return nil, errorz.ErrUserExists
			}
			if user.StudentID != "" && strings.EqualFold(u.StudentID, user.StudentID) {
				return nil, errorz.ErrStudentIDExists
			}
		}
		if user.ID == "" {
			user.ID = strconv.Itoa(nextID(users))
		}
		return append(users, *user), nil
	})
}

// nextID continues the numeric ids of the users sheet.
func nextID(users []entity.User) int {
	max := 0
	for _, u := range users {
		if n, err := strconv.Atoi(u.ID); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}
