package user

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/trezcool/feedback/core"
)

var ErrNotFound = errors.New("user not found")

// User is the acting user of a trigger. Accounts are owned by the identity service;
// this is the read-only view the feedback engine needs.
type User struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

func (u User) MailAddress() (mail.Address, bool) {
	if u.Email == "" {
		return mail.Address{}, false
	}
	return mail.Address{Name: u.Name, Address: u.Email}, true
}

type Repository interface {
	GetUser(ctx context.Context, id int, exec ...core.DBExecutor) (User, error)
}
