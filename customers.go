package thingsboard

import (
	"context"
	"fmt"
	"iter"
)

// PublicCustomerName is the title of the customer ThingsBoard creates the
// first time something is made public.
const PublicCustomerName = "Public"

// Customer is a ThingsBoard customer.
type Customer struct {
	AttributedEntity

	Name           string     `json:"title" tb:"name"`
	TenantID       *Id        `json:"tenantId,omitempty"`
	Address        string     `json:"address"`
	Address2       string     `json:"address2"`
	City           string     `json:"city"`
	State          string     `json:"state"`
	Zip            string     `json:"zip"`
	Country        string     `json:"country"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone"`
	AdditionalInfo JSONObject `json:"additionalInfo"`
	ExternalID     *Id        `json:"externalId,omitempty"`
}

func (cu *Customer) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, cu)
}

func (cu *Customer) bind(c *Client) {
	cu.bindAs(c, EntityTypeCustomer)
}

func (cu *Customer) String() string {
	return fmt.Sprintf("Customer (%s, %s)", cu.Name, cu.ID.ID)
}

// IsPublic reports whether this is the platform's public customer.
func (cu *Customer) IsPublic() bool {
	public, _ := GetBool(cu.AdditionalInfo, "isPublic")
	return public
}

// CustomerID returns the reference form used in assignment lists.
func (cu *Customer) CustomerID() CustomerId {
	return CustomerId{ID: cu.ID, Public: cu.IsPublic(), Name: cu.Name}
}

// OneLineAddress formats the postal address on a single line.
func (cu *Customer) OneLineAddress() string {
	return oneLineAddress(cu.Address, cu.Address2, cu.City, cu.State)
}

// GetDevices returns every device assigned to the customer.
func (cu *Customer) GetDevices(ctx context.Context, opts *ListOptions) ([]*Device, error) {
	c, err := cu.client()
	if err != nil {
		return nil, err
	}
	return fetchAll[Device](ctx, c, opts.listPath(fmt.Sprintf("/api/customer/%s/devices", cu.ID.ID)), opts.sortSpec())
}

// Update saves the customer's fields and refreshes them from the reply.
func (cu *Customer) Update(ctx context.Context) error {
	c, err := cu.client()
	if err != nil {
		return err
	}
	return save(ctx, c, "/api/customer", cu)
}

// Delete removes the customer. It reports false if the customer did not exist.
func (cu *Customer) Delete(ctx context.Context) (bool, error) {
	c, err := cu.client()
	if err != nil {
		return false, err
	}
	return c.delete(ctx, "/api/customer/"+cu.ID.ID)
}

// CustomerCreate is the request for creating a customer.
type CustomerCreate struct {
	Name           string         `json:"title"`
	Address        string         `json:"address,omitempty"`
	Address2       string         `json:"address2,omitempty"`
	City           string         `json:"city,omitempty"`
	State          string         `json:"state,omitempty"`
	Zip            string         `json:"zip,omitempty"`
	Country        string         `json:"country,omitempty"`
	Email          string         `json:"email,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	AdditionalInfo map[string]any `json:"additionalInfo,omitempty"`

	// ServerAttributes are written to the new customer after creation.
	ServerAttributes map[string]any `json:"-"`
}

// CreateCustomer creates a customer and, if given, sets its server attributes.
func (c *Client) CreateCustomer(ctx context.Context, customer *CustomerCreate) (*Customer, error) {
	if customer == nil || customer.Name == "" {
		return nil, ErrEmptyName
	}

	data, err := c.post(ctx, "/api/customer", customer)
	if err != nil {
		return nil, err
	}
	created, err := hydrateBound[Customer](c, data)
	if err != nil {
		return nil, err
	}

	if len(customer.ServerAttributes) > 0 {
		if err := created.SetServerAttributes(ctx, customer.ServerAttributes); err != nil {
			return created, fmt.Errorf("customer %s created but attributes not saved: %w", created.ID.ID, err)
		}
	}
	return created, nil
}

// GetCustomerByID fetches a customer. id may be a GUID string, Guid, Id or
// CustomerId. The NULL_GUID (an unassigned owner) yields nil without a
// request.
func (c *Client) GetCustomerByID(ctx context.Context, id any) (*Customer, error) {
	guid, err := guidArg(id)
	if err != nil {
		return nil, err
	}
	if (Id{ID: guid}).IsNull() {
		return nil, nil
	}
	return fetchOne[Customer](ctx, c, "/api/customer/"+guid)
}

// GetCustomersByName returns customers whose name starts with prefix.
func (c *Client) GetCustomersByName(ctx context.Context, prefix string) ([]*Customer, error) {
	return c.GetAllCustomers(ctx, &ListOptions{TextSearch: prefix})
}

// GetCustomerByName returns the customer named exactly name, or nil if there
// is none.
func (c *Client) GetCustomerByName(ctx context.Context, name string) (*Customer, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	customers, err := c.GetCustomersByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return exactMatch("customer", name, customers, func(cu *Customer) string { return cu.Name })
}

// GetAllCustomers lists the tenant's customers.
func (c *Client) GetAllCustomers(ctx context.Context, opts *ListOptions) ([]*Customer, error) {
	return fetchAll[Customer](ctx, c, opts.listPath("/api/customers"), opts.sortSpec())
}

// Customers streams the tenant's customers page by page.
func (c *Client) Customers(ctx context.Context) iter.Seq2[*Customer, error] {
	return Entities[Customer](ctx, c, "/api/customers")
}

// GetPublicCustomerID returns the public customer's reference, or nil if
// nothing has been made public yet. A found id is remembered for the life
// of the client; a missing one is looked up again next time.
func (c *Client) GetPublicCustomerID(ctx context.Context) (*CustomerId, error) {
	c.publicMu.Lock()
	defer c.publicMu.Unlock()

	if c.publicID != nil {
		id := *c.publicID
		return &id, nil
	}

	public, err := c.GetCustomerByName(ctx, PublicCustomerName)
	if err != nil {
		return nil, err
	}
	if public == nil {
		return nil, nil
	}

	id := public.CustomerID()
	id.Public = true
	c.publicID = &id
	return &id, nil
}
