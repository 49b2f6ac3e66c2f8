package workflow

import (
	"context"
	"strings"

	"github.com/mmdatafocus/compliance_backend/utils"
)

// Identity is the caller acting on a submission.
type Identity struct {
	CompanyId     string
	UserId        int
	Name          string
	Roles         []string
	Authenticated bool
}

func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type IdentityProvider interface {
	CurrentSigner(ctx context.Context) (Identity, error)
}

// ContextIdentityProvider reads the identity the auth middleware put on the request context.
// The role claim may hold several comma separated roles.
type ContextIdentityProvider struct{}

func (ContextIdentityProvider) CurrentSigner(ctx context.Context) (Identity, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return Identity{}, ErrIdentityRequired
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId <= 0 {
		return Identity{}, ErrIdentityRequired
	}
	name, _ := utils.GetUserNameFromContext(ctx)
	role, _ := utils.GetUserRoleFromContext(ctx)
	authenticated, _ := utils.GetAuthenticatedFromContext(ctx)
	return Identity{
		CompanyId:     companyId,
		UserId:        userId,
		Name:          name,
		Roles:         utils.SplitAndTrim(role),
		Authenticated: authenticated,
	}, nil
}
