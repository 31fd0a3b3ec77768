package academy

import (
	"context"
	"errors"
	"time"

	"github.com/trezcool/feedback/core"
)

var ErrNotFound = errors.New("academy not found")

type (
	Academy struct {
		ID        int       `json:"id"`
		Slug      string    `json:"slug"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"created_at"`
	}

	Cohort struct {
		ID        int       `json:"id"`
		Slug      string    `json:"slug"`
		Name      string    `json:"name"`
		AcademyID int       `json:"academy"`
		CreatedAt time.Time `json:"created_at"`
	}

	// Membership links a user to an academy. The oldest one is the user's default academy.
	Membership struct {
		ID        int       `json:"id"`
		UserID    int       `json:"user"`
		AcademyID int       `json:"academy"`
		Role      string    `json:"role"`
		CreatedAt time.Time `json:"created_at"`
	}
)

// Repository is the academy-membership provider consumed by the feedback engine.
type Repository interface {
	GetAcademy(ctx context.Context, id int, exec ...core.DBExecutor) (Academy, error)
	// FirstMembership returns the membership on record with the lowest id, or ErrNotFound.
	FirstMembership(ctx context.Context, userID int, exec ...core.DBExecutor) (Membership, error)
}
