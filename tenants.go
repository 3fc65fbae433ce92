package thingsboard

import (
	"context"
	"fmt"
)

// Tenant is a ThingsBoard tenant.
type Tenant struct {
	AttributedEntity

	Name            string     `json:"title" tb:"name"`
	TenantProfileID *Id        `json:"tenantProfileId,omitempty"`
	Region          string     `json:"region"`
	Address         string     `json:"address"`
	Address2        string     `json:"address2"`
	City            string     `json:"city"`
	State           string     `json:"state"`
	Zip             string     `json:"zip"`
	Country         string     `json:"country"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	AdditionalInfo  JSONObject `json:"additionalInfo"`
}

func (t *Tenant) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, t)
}

func (t *Tenant) bind(c *Client) {
	t.bindAs(c, EntityTypeTenant)
}

func (t *Tenant) String() string {
	return fmt.Sprintf("Tenant (%s, %s)", t.Name, t.ID.ID)
}

// OneLineAddress formats the postal address on a single line.
func (t *Tenant) OneLineAddress() string {
	return oneLineAddress(t.Address, t.Address2, t.City, t.State)
}

// Update saves the tenant's fields. Requires a system administrator.
func (t *Tenant) Update(ctx context.Context) error {
	c, err := t.client()
	if err != nil {
		return err
	}
	return save(ctx, c, "/api/tenant", t)
}

// Delete removes the tenant. It reports false if the tenant did not exist.
func (t *Tenant) Delete(ctx context.Context) (bool, error) {
	c, err := t.client()
	if err != nil {
		return false, err
	}
	return c.delete(ctx, "/api/tenant/"+t.ID.ID)
}

// GetAllTenants lists every tenant. Requires a system administrator.
func (c *Client) GetAllTenants(ctx context.Context, opts *ListOptions) ([]*Tenant, error) {
	return fetchAll[Tenant](ctx, c, opts.listPath("/api/tenants"), opts.sortSpec())
}
