package thingsboard

import (
	"context"
	"fmt"
	"time"
)

// Device transport and provisioning values reported by profiles.
const (
	TransportDefault = "DEFAULT"
	TransportMQTT    = "MQTT"
	TransportCoAP    = "COAP"
	TransportLwM2M   = "LWM2M"
	TransportSNMP    = "SNMP"

	ProvisionDisabled = "DISABLED"
)

// DeviceProfileInfo is the summary of a device profile returned by the
// profile info listings.
type DeviceProfileInfo struct {
	AttributedEntity

	Name               string `json:"name"`
	Image              string `json:"image"`
	DefaultDashboardID *Id    `json:"defaultDashboardId,omitempty"`
	Type               string `json:"type" tb:"type,default=DEFAULT"`
	TransportType      string `json:"transportType" tb:"transport_type,default=DEFAULT"`
}

func (p *DeviceProfileInfo) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, p)
}

func (p *DeviceProfileInfo) bind(c *Client) {
	p.bindAs(c, EntityTypeDeviceProfile)
}

func (p *DeviceProfileInfo) String() string {
	return fmt.Sprintf("DeviceProfileInfo (%s, %s)", p.Name, p.ID.ID)
}

// DeviceProfile is a complete device profile definition.
type DeviceProfile struct {
	DeviceProfileInfo

	TenantID               *Id        `json:"tenantId,omitempty"`
	Description            string     `json:"description"`
	Default                bool       `json:"default"`
	ProvisionType          string     `json:"provisionType" tb:"provision_type,default=DISABLED"`
	ProvisionDeviceKey     *string    `json:"provisionDeviceKey"`
	DefaultQueueName       *string    `json:"defaultQueueName"`
	DefaultRuleChainID     *Id        `json:"defaultRuleChainId,omitempty"`
	DefaultEdgeRuleChainID *Id        `json:"defaultEdgeRuleChainId,omitempty"`
	FirmwareID             *Id        `json:"firmwareId,omitempty"`
	SoftwareID             *Id        `json:"softwareId,omitempty"`
	ExternalID             *Id        `json:"externalId,omitempty"`
	ProfileData            JSONObject `json:"profileData"`
}

func (p *DeviceProfile) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, p)
}

func (p *DeviceProfile) String() string {
	return fmt.Sprintf("DeviceProfile (%s, %s)", p.Name, p.ID.ID)
}

// GetAllDeviceProfiles lists the tenant's device profiles.
func (c *Client) GetAllDeviceProfiles(ctx context.Context, opts *ListOptions) ([]*DeviceProfile, error) {
	return fetchAll[DeviceProfile](ctx, c, opts.listPath("/api/deviceProfiles"), opts.sortSpec())
}

// GetDeviceProfileByID fetches a device profile. Results are cached when
// the client has a cache.
func (c *Client) GetDeviceProfileByID(ctx context.Context, id any) (*DeviceProfile, error) {
	guid, err := guidArg(id)
	if err != nil {
		return nil, err
	}
	return getCached(c, cacheKey("deviceProfile", guid), c.profileTTL(), func() (*DeviceProfile, error) {
		return fetchOne[DeviceProfile](ctx, c, "/api/deviceProfile/"+guid)
	})
}

// GetDeviceProfilesByName returns profiles whose name starts with prefix.
func (c *Client) GetDeviceProfilesByName(ctx context.Context, prefix string) ([]*DeviceProfile, error) {
	return c.GetAllDeviceProfiles(ctx, &ListOptions{TextSearch: prefix})
}

// GetDeviceProfileByName returns the profile named exactly name, or nil.
func (c *Client) GetDeviceProfileByName(ctx context.Context, name string) (*DeviceProfile, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	profiles, err := c.GetDeviceProfilesByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return exactMatch("device profile", name, profiles, func(p *DeviceProfile) string { return p.Name })
}

// GetAllDeviceProfileInfos lists the summaries of the tenant's profiles.
func (c *Client) GetAllDeviceProfileInfos(ctx context.Context, opts *ListOptions) ([]*DeviceProfileInfo, error) {
	return fetchAll[DeviceProfileInfo](ctx, c, opts.listPath("/api/deviceProfileInfos"), opts.sortSpec())
}

// GetDeviceProfileInfoByID fetches a profile summary, cached like
// GetDeviceProfileByID.
func (c *Client) GetDeviceProfileInfoByID(ctx context.Context, id any) (*DeviceProfileInfo, error) {
	guid, err := guidArg(id)
	if err != nil {
		return nil, err
	}
	return getCached(c, cacheKey("deviceProfileInfo", guid), c.profileTTL(), func() (*DeviceProfileInfo, error) {
		return fetchOne[DeviceProfileInfo](ctx, c, "/api/deviceProfileInfo/"+guid)
	})
}

// GetDeviceProfileInfosByName returns profile summaries whose name starts
// with prefix.
func (c *Client) GetDeviceProfileInfosByName(ctx context.Context, prefix string) ([]*DeviceProfileInfo, error) {
	return c.GetAllDeviceProfileInfos(ctx, &ListOptions{TextSearch: prefix})
}

// GetDeviceProfileInfoByName returns the summary of the profile named
// exactly name, or nil.
func (c *Client) GetDeviceProfileInfoByName(ctx context.Context, name string) (*DeviceProfileInfo, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	infos, err := c.GetDeviceProfileInfosByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return exactMatch("device profile info", name, infos, func(p *DeviceProfileInfo) string { return p.Name })
}

func (c *Client) profileTTL() time.Duration {
	if c.cacheConfig == nil {
		return 0
	}
	return c.cacheConfig.DeviceProfileTTL
}
