package thingsboard

import (
	"context"
	"fmt"
)

// Authority is a user's role on the platform.
type Authority string

// User authorities.
const (
	AuthoritySysAdmin     Authority = "SYS_ADMIN"
	AuthorityTenantAdmin  Authority = "TENANT_ADMIN"
	AuthorityCustomerUser Authority = "CUSTOMER_USER"
)

// User is a platform user account.
type User struct {
	AttributedEntity

	TenantID       *Id        `json:"tenantId,omitempty"`
	CustomerID     *Id        `json:"customerId,omitempty"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Authority      Authority  `json:"authority"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Phone          string     `json:"phone"`
	AdditionalInfo JSONObject `json:"additionalInfo"`
}

func (u *User) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, u)
}

func (u *User) bind(c *Client) {
	u.bindAs(c, EntityTypeUser)
}

func (u *User) String() string {
	return fmt.Sprintf("User (%s, %s)", u.Email, u.Authority)
}

// GetCurrentUser returns the account the client is logged in as.
func (c *Client) GetCurrentUser(ctx context.Context) (*User, error) {
	return fetchOne[User](ctx, c, "/api/auth/user")
}

// GetCurrentTenantID returns the tenant of the logged-in account.
func (c *Client) GetCurrentTenantID(ctx context.Context) (Id, error) {
	user, err := c.GetCurrentUser(ctx)
	if err != nil {
		return Id{}, err
	}
	if user.TenantID == nil || user.TenantID.IsNull() {
		return Id{}, fmt.Errorf("%w: %s has no tenant", ErrNoCurrentUser, user.Email)
	}
	return *user.TenantID, nil
}
