package thingsboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
)

// Device is a ThingsBoard device.
type Device struct {
	AttributedEntity

	Name            string     `json:"name"`
	Type            string     `json:"type" tb:"type,default=default"`
	Label           string     `json:"label"`
	DeviceProfileID *Id        `json:"deviceProfileId,omitempty"`
	CustomerID      *Id        `json:"customerId,omitempty"`
	TenantID        *Id        `json:"tenantId,omitempty"`
	SoftwareID      *Id        `json:"softwareId,omitempty"`
	FirmwareID      *Id        `json:"firmwareId,omitempty"`
	AdditionalInfo  JSONObject `json:"additionalInfo"`
	Version         *int64     `json:"version,omitempty"`

	// Only present in deviceInfos listings.
	Active            *bool  `json:"active,omitempty" tb:"active,readonly"`
	CustomerTitle     string `json:"customerTitle,omitempty" tb:"customer_title,readonly"`
	DeviceProfileName string `json:"deviceProfileName,omitempty" tb:"device_profile_name,readonly"`

	token string
}

func (d *Device) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, d)
}

func (d *Device) bind(c *Client) {
	d.bindAs(c, EntityTypeDevice)
}

func (d *Device) String() string {
	return fmt.Sprintf("Device (%s, %s)", d.Name, d.ID.ID)
}

// Assigned reports whether the device belongs to a customer.
func (d *Device) Assigned() bool {
	return d.CustomerID != nil && !d.CustomerID.IsNull()
}

type deviceCredentials struct {
	CredentialsType string `json:"credentialsType"`
	CredentialsID   string `json:"credentialsId"`
}

// Token returns the device's access token, the credential devices use to
// push telemetry. It is fetched once and remembered on the device.
func (d *Device) Token(ctx context.Context) (string, error) {
	if d.token != "" {
		return d.token, nil
	}
	c, err := d.client()
	if err != nil {
		return "", err
	}
	data, err := c.get(ctx, fmt.Sprintf("/api/device/%s/credentials", d.ID.ID))
	if err != nil {
		return "", err
	}
	creds, err := unmarshalResponse[deviceCredentials](data, "device credentials")
	if err != nil {
		return "", err
	}
	if creds.CredentialsID == "" {
		return "", fmt.Errorf("%w: %s", ErrNoDeviceToken, d.ID.ID)
	}
	d.token = creds.CredentialsID
	return d.token, nil
}

// reassigned applies the customerId of a device returned by an assignment call.
func (d *Device) reassigned(data []byte) error {
	var resp struct {
		CustomerID *Id `json:"customerId"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to parse assigned device: %w (body: %s)", err, truncatePreview(data))
	}
	d.CustomerID = resp.CustomerID
	return nil
}

// AssignTo makes customer the device's owner. Assigning to the current
// owner makes no request.
func (d *Device) AssignTo(ctx context.Context, customer Identifiable) error {
	if customer == nil {
		return ErrEmptyID
	}
	cid := customer.Identity()
	if d.CustomerID != nil && d.CustomerID.Equal(cid) {
		return nil
	}
	c, err := d.client()
	if err != nil {
		return err
	}
	data, err := c.post(ctx, fmt.Sprintf("/api/customer/%s/device/%s", cid.ID, d.ID.ID), nil)
	if err != nil {
		return err
	}
	return d.reassigned(data)
}

// Unassign releases the device from its customer.
func (d *Device) Unassign(ctx context.Context) error {
	if !d.Assigned() {
		return nil
	}
	c, err := d.client()
	if err != nil {
		return err
	}
	if _, err := c.delete(ctx, "/api/customer/device/"+d.ID.ID); err != nil {
		return err
	}
	d.CustomerID = &Id{ID: NullGUID, EntityType: EntityTypeCustomer}
	return nil
}

// GetCustomer returns the device's owner, or nil if it is unassigned.
func (d *Device) GetCustomer(ctx context.Context) (*Customer, error) {
	if !d.Assigned() {
		return nil, nil
	}
	c, err := d.client()
	if err != nil {
		return nil, err
	}
	return c.GetCustomerByID(ctx, *d.CustomerID)
}

// IsPublic reports whether the device is owned by the public customer.
func (d *Device) IsPublic(ctx context.Context) (bool, error) {
	if !d.Assigned() {
		return false, nil
	}
	c, err := d.client()
	if err != nil {
		return false, err
	}
	public, err := c.GetPublicCustomerID(ctx)
	if err != nil || public == nil {
		return false, err
	}
	return public.Equal(*d.CustomerID), nil
}

// MakePublic assigns the device to the public customer, which is how the
// platform publishes devices.
func (d *Device) MakePublic(ctx context.Context) error {
	public, err := d.IsPublic(ctx)
	if err != nil || public {
		return err
	}
	c, err := d.client()
	if err != nil {
		return err
	}
	data, err := c.post(ctx, "/api/customer/public/device/"+d.ID.ID, nil)
	if err != nil {
		return err
	}
	return d.reassigned(data)
}

// GetProfile returns the device's profile.
func (d *Device) GetProfile(ctx context.Context) (*DeviceProfile, error) {
	if d.DeviceProfileID == nil {
		return nil, fmt.Errorf("%w: device %s has no profile", ErrEmptyID, d.ID.ID)
	}
	c, err := d.client()
	if err != nil {
		return nil, err
	}
	return c.GetDeviceProfileByID(ctx, *d.DeviceProfileID)
}

// GetProfileInfo returns the summary of the device's profile.
func (d *Device) GetProfileInfo(ctx context.Context) (*DeviceProfileInfo, error) {
	if d.DeviceProfileID == nil {
		return nil, fmt.Errorf("%w: device %s has no profile", ErrEmptyID, d.ID.ID)
	}
	c, err := d.client()
	if err != nil {
		return nil, err
	}
	return c.GetDeviceProfileInfoByID(ctx, *d.DeviceProfileID)
}

// Update saves the device's fields and refreshes them from the reply.
func (d *Device) Update(ctx context.Context) error {
	c, err := d.client()
	if err != nil {
		return err
	}
	token := d.token
	if err := save(ctx, c, "/api/device", d); err != nil {
		return err
	}
	d.token = token
	return nil
}

// Delete removes the device. It reports false if the device did not exist.
func (d *Device) Delete(ctx context.Context) (bool, error) {
	c, err := d.client()
	if err != nil {
		return false, err
	}
	return c.delete(ctx, "/api/device/"+d.ID.ID)
}

// DeviceCreate is the request for creating a device.
type DeviceCreate struct {
	Name           string         `json:"name"`
	Type           string         `json:"type,omitempty"`
	Label          string         `json:"label,omitempty"`
	AdditionalInfo map[string]any `json:"additionalInfo,omitempty"`

	// Customer, when set, becomes the owner right after creation.
	Customer Identifiable `json:"-"`
	// Attributes written after creation.
	ServerAttributes map[string]any `json:"-"`
	SharedAttributes map[string]any `json:"-"`
}

// CreateDevice creates a device, then assigns it and sets attributes as
// requested. If a follow-up step fails the created device is returned with
// the error.
func (c *Client) CreateDevice(ctx context.Context, device *DeviceCreate) (*Device, error) {
	if device == nil || device.Name == "" {
		return nil, ErrEmptyName
	}

	data, err := c.post(ctx, "/api/device", device)
	if err != nil {
		return nil, err
	}
	created, err := hydrateBound[Device](c, data)
	if err != nil {
		return nil, err
	}

	var errs []error
	if device.Customer != nil {
		if err := created.AssignTo(ctx, device.Customer); err != nil {
			errs = append(errs, fmt.Errorf("assign: %w", err))
		}
	}
	if device.ServerAttributes != nil {
		if err := created.SetServerAttributes(ctx, device.ServerAttributes); err != nil {
			errs = append(errs, fmt.Errorf("server attributes: %w", err))
		}
	}
	if device.SharedAttributes != nil {
		if err := created.SetSharedAttributes(ctx, device.SharedAttributes); err != nil {
			errs = append(errs, fmt.Errorf("shared attributes: %w", err))
		}
	}
	if len(errs) > 0 {
		return created, fmt.Errorf("device %s created: %w", created.ID.ID, errors.Join(errs...))
	}
	return created, nil
}

// GetDeviceByID fetches a device. id may be a GUID string, Guid or Id.
func (c *Client) GetDeviceByID(ctx context.Context, id any) (*Device, error) {
	guid, err := guidArg(id)
	if err != nil {
		return nil, err
	}
	return fetchOne[Device](ctx, c, "/api/device/"+guid)
}

// GetDevicesByName returns devices whose name starts with prefix.
func (c *Client) GetDevicesByName(ctx context.Context, prefix string) ([]*Device, error) {
	return c.GetAllDevices(ctx, &ListOptions{TextSearch: prefix})
}

// GetDeviceByName returns the device named exactly name, or nil if there is
// none.
func (c *Client) GetDeviceByName(ctx context.Context, name string) (*Device, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	devices, err := c.GetDevicesByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return exactMatch("device", name, devices, func(d *Device) string { return d.Name })
}

// GetDevicesByType returns the devices of one device type.
func (c *Client) GetDevicesByType(ctx context.Context, deviceType string) ([]*Device, error) {
	if deviceType == "" {
		return nil, fmt.Errorf("thingsboard: device type cannot be empty")
	}
	return c.GetAllDevices(ctx, &ListOptions{Type: deviceType})
}

// GetAllDevices lists the tenant's devices. Filtering on Active switches to
// the deviceInfos listing, the only one that reports connectivity.
func (c *Client) GetAllDevices(ctx context.Context, opts *ListOptions) ([]*Device, error) {
	return fetchAll[Device](ctx, c, opts.listPath(devicesPath(opts)), opts.sortSpec())
}

// Devices streams the tenant's devices page by page.
func (c *Client) Devices(ctx context.Context, opts *ListOptions) iter.Seq2[*Device, error] {
	return Entities[Device](ctx, c, opts.listPath(devicesPath(opts)))
}

func devicesPath(opts *ListOptions) string {
	if opts != nil && opts.Active != nil {
		return "/api/tenant/deviceInfos"
	}
	return "/api/tenant/devices"
}
