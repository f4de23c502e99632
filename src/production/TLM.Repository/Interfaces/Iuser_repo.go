package interfaces

import (
	"context"

	auth_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/auth"
)

type UserRepository interface {
	// Create inserts a user; ErrDuplicate when the username or email is taken
	Create(ctx context.Context, user *auth_models.User) (*auth_models.User, error)

	GetByID(ctx context.Context, userID string) (*auth_models.User, error)
	GetByUsername(ctx context.Context, username string) (*auth_models.User, error)
}
