package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nimburion/docsync/pkg/ids"
	"github.com/nimburion/docsync/pkg/repository"
	"github.com/nimburion/docsync/pkg/repository/document"
	"github.com/nimburion/docsync/pkg/synchronizer"
	"go.mongodb.org/mongo-driver/bson"
)

// AuthUsers stores login identities keyed by email.
type AuthUsers struct {
	*repository.Crud[AuthUser]
	d *Driver
}

func newAuthUsers(d *Driver) *AuthUsers {
	e := synchronizer.Entity{
		Collection: CollAuthUsers,
		BeforeSave: func(_ context.Context, dr *synchronizer.Draft) error {
			email, _ := dr.Doc["email"].(string)
			email = strings.ToLower(strings.TrimSpace(email))
			if email == "" {
				return fmt.Errorf("%w: auth user %s without email", synchronizer.ErrInvalid, dr.ID)
			}
			dr.Doc["email"] = email
			dr.Doc["handle"] = email
			dr.AddTokens(email)
			for _, r := range synchronizer.RefList(dr.Doc["roles"]) {
				dr.AddTokens(synchronizer.Token("role", r))
			}
			return nil
		},
	}
	d.sync.RegisterEntity(e)
	return &AuthUsers{Crud: repository.NewCrud[AuthUser](d.sync, e, ids.PrefixAuthUser, d.limits), d: d}
}

// GetByEmail returns the user with the given email, or nil.
func (a *AuthUsers) GetByEmail(ctx context.Context, email string) (*AuthUser, error) {
	doc, err := a.d.sync.Store().Collection(CollAuthUsers).FindOne(ctx,
		bson.M{"email": strings.ToLower(strings.TrimSpace(email))}, nil)
	if errors.Is(err, document.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth user by email: %w", err)
	}
	return repository.Decode[AuthUser](doc)
}

// RemoveByEmail deletes the user with the given email. A miss is not an
// error.
func (a *AuthUsers) RemoveByEmail(ctx context.Context, email string) error {
	u, err := a.GetByEmail(ctx, email)
	if err != nil || u == nil {
		return err
	}
	return a.Delete(ctx, u.ID)
}
