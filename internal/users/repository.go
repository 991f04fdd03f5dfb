package users

import (
	"context"
	"net/http"
	"net/url"

	"github.com/odyssey-erp/backoffice/internal/listing"
	"github.com/odyssey-erp/backoffice/internal/platform/backend"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository talks to the identity store endpoints of the backend.
type Repository struct {
	client *backend.Client
}

// NewRepository constructs a repository.
func NewRepository(client *backend.Client) *Repository {
	return &Repository{client: client}
}

// UpdateRole writes the role assignment of one identity. An empty response is
// answered with the user assembled from the request.
func (r *Repository) UpdateRole(ctx context.Context, userID shared.ID, assignment RoleAssignment) (User, error) {
	raw, err := r.client.Do(ctx, http.MethodPut, "/users/"+url.PathEscape(userID.String()), nil, assignment)
	if err != nil {
		if backend.IsNotFound(err) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	fallback := User{
		ID:                  userID,
		Role:                assignment.Role,
		PermissionsRoleID:   assignment.PermissionsRoleID,
		PermissionsRoleName: assignment.PermissionsRoleName,
	}
	if len(raw) == 0 {
		return fallback, nil
	}
	user, err := listing.DecodeOne[User](raw)
	if err != nil || user.ID.IsZero() {
		return fallback, nil
	}
	return user, nil
}
