package thingsboard

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
)

// DashboardHeader is a dashboard without its configuration, the form
// returned by dashboard listings.
type DashboardHeader struct {
	Entity

	TenantID          *Id          `json:"tenantId,omitempty"`
	Name              string       `json:"title" tb:"name"`
	AssignedCustomers []CustomerId `json:"assignedCustomers"`
	Image             *string      `json:"image"`
	MobileHide        *bool        `json:"mobileHide,omitempty"`
	MobileOrder       *int         `json:"mobileOrder,omitempty"`
	ExternalID        *Id          `json:"externalId,omitempty"`
}

func (h *DashboardHeader) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, h)
}

func (h *DashboardHeader) bind(c *Client) {
	h.bindAs(c, EntityTypeDashboard)
}

func (h *DashboardHeader) String() string {
	return fmt.Sprintf("Dashboard (%s, %s)", h.Name, h.ID.ID)
}

// IsPublic reports whether the public customer is among the assignees.
func (h *DashboardHeader) IsPublic() bool {
	return slices.ContainsFunc(h.AssignedCustomers, func(c CustomerId) bool { return c.Public })
}

func (h *DashboardHeader) reassigned(data []byte) error {
	var resp struct {
		AssignedCustomers []CustomerId `json:"assignedCustomers"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to parse dashboard assignment: %w (body: %s)", err, truncatePreview(data))
	}
	h.AssignedCustomers = resp.AssignedCustomers
	return nil
}

// AssignTo shares the dashboard with customer.
func (h *DashboardHeader) AssignTo(ctx context.Context, customer Identifiable) error {
	if customer == nil {
		return ErrEmptyID
	}
	c, err := h.client()
	if err != nil {
		return err
	}
	data, err := c.post(ctx, fmt.Sprintf("/api/customer/%s/dashboard/%s", customer.Identity().ID, h.ID.ID), nil)
	if err != nil {
		return err
	}
	return h.reassigned(data)
}

// GetCustomers returns the customers the dashboard is shared with.
func (h *DashboardHeader) GetCustomers(ctx context.Context) ([]*Customer, error) {
	c, err := h.client()
	if err != nil {
		return nil, err
	}
	customers := make([]*Customer, 0, len(h.AssignedCustomers))
	for _, ref := range h.AssignedCustomers {
		cu, err := c.GetCustomerByID(ctx, ref)
		if err != nil {
			return nil, err
		}
		if cu != nil {
			customers = append(customers, cu)
		}
	}
	return customers, nil
}

// MakePublic shares the dashboard with the public customer.
func (h *DashboardHeader) MakePublic(ctx context.Context) error {
	if h.IsPublic() {
		return nil
	}
	c, err := h.client()
	if err != nil {
		return err
	}
	data, err := c.post(ctx, "/api/customer/public/dashboard/"+h.ID.ID, nil)
	if err != nil {
		return err
	}
	if err := h.reassigned(data); err != nil {
		return err
	}
	if h.IsPublic() {
		return nil
	}

	// Some servers answer without the assignment list.
	public, err := c.GetPublicCustomerID(ctx)
	if err != nil {
		return err
	}
	if public == nil {
		return ErrNoPublicCustomer
	}
	h.AssignedCustomers = append(h.AssignedCustomers, *public)
	return nil
}

// MakePrivate withdraws the dashboard from the public customer. Other
// assignments are kept.
func (h *DashboardHeader) MakePrivate(ctx context.Context) error {
	if !h.IsPublic() {
		return nil
	}
	c, err := h.client()
	if err != nil {
		return err
	}
	if _, err := c.delete(ctx, "/api/customer/public/dashboard/"+h.ID.ID); err != nil {
		return err
	}
	h.AssignedCustomers = slices.DeleteFunc(h.AssignedCustomers, func(c CustomerId) bool { return c.Public })
	return nil
}

// PublicURL returns the link anonymous viewers use, or "" when the
// dashboard is not public.
func (h *DashboardHeader) PublicURL(ctx context.Context) (string, error) {
	if !h.IsPublic() {
		return "", nil
	}
	c, err := h.client()
	if err != nil {
		return "", err
	}
	public, err := c.GetPublicCustomerID(ctx)
	if err != nil {
		return "", err
	}
	if public == nil {
		return "", ErrNoPublicCustomer
	}
	return fmt.Sprintf("%s/dashboard/%s?publicId=%s", c.BaseURL(), h.ID.ID, public.GUID()), nil
}

// GetDashboard fetches the full dashboard, configuration included.
func (h *DashboardHeader) GetDashboard(ctx context.Context) (*Dashboard, error) {
	c, err := h.client()
	if err != nil {
		return nil, err
	}
	return fetchOne[Dashboard](ctx, c, "/api/dashboard/"+h.ID.ID)
}

// Update saves the header fields. Use Dashboard.Update to keep the
// configuration, since saving a header clears it on the server.
func (h *DashboardHeader) Update(ctx context.Context) error {
	c, err := h.client()
	if err != nil {
		return err
	}
	return save(ctx, c, "/api/dashboard", h)
}

// Delete removes the dashboard. It reports false if it did not exist.
func (h *DashboardHeader) Delete(ctx context.Context) (bool, error) {
	c, err := h.client()
	if err != nil {
		return false, err
	}
	return c.delete(ctx, "/api/dashboard/"+h.ID.ID)
}

// Dashboard is a dashboard header plus its configuration. Empty dashboards
// have no configuration.
type Dashboard struct {
	DashboardHeader

	Configuration *Configuration `json:"configuration"`
}

func (d *Dashboard) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, d)
}

// Update saves the dashboard, configuration included.
func (d *Dashboard) Update(ctx context.Context) error {
	c, err := d.client()
	if err != nil {
		return err
	}
	return save(ctx, c, "/api/dashboard", d)
}

// Configuration is a dashboard's layout and widget definition.
type Configuration struct {
	Description   *string                `json:"description,omitempty"`
	Widgets       *Collection[Widget]    `json:"widgets,omitempty"`
	States        map[string]State       `json:"states,omitempty"`
	DeviceAliases map[string]EntityAlias `json:"deviceAliases,omitempty"`
	EntityAliases map[string]EntityAlias `json:"entityAliases,omitempty"`
	TimeWindow    *TimeWindow            `json:"timewindow,omitempty" tb:"time_window"`
	Settings      *Settings              `json:"settings,omitempty"`
}

func (c *Configuration) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, c)
}

// Widget is a widget definition. Its id is a bare GUID in some dashboards
// and a full Id in others.
type Widget struct {
	ID           *WidgetID  `json:"id,omitempty"`
	IsSystemType bool       `json:"isSystemType"`
	BundleAlias  string     `json:"bundleAlias"`
	TypeAlias    string     `json:"typeAlias"`
	Type         string     `json:"type"`
	Name         string     `json:"title" tb:"name"`
	SizeX        float64    `json:"sizeX"`
	SizeY        float64    `json:"sizeY"`
	Config       JSONObject `json:"config"`
}

func (w *Widget) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, w)
}

func (w Widget) String() string {
	return fmt.Sprintf("Widget (%s, %s)", w.Name, w.Type)
}

// State is one dashboard state; "default" is the one shown first.
type State struct {
	Name    string            `json:"name"`
	Root    bool              `json:"root"`
	Layouts map[string]Layout `json:"layouts"`
}

func (s *State) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, s)
}

// Layout places widgets on a state's grid. Widgets arrive as a list on
// some servers and as a map keyed by widget id on others.
type Layout struct {
	Widgets      Collection[SubWidget] `json:"widgets"`
	GridSettings *GridSetting          `json:"gridSettings,omitempty"`
}

func (l *Layout) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, l)
}

// SubWidget is a widget's position within a layout.
type SubWidget struct {
	SizeX        float64 `json:"sizeX"`
	SizeY        float64 `json:"sizeY"`
	MobileHeight *int    `json:"mobileHeight,omitempty"`
	Row          int     `json:"row"`
	Col          int     `json:"col"`
}

func (s *SubWidget) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, s)
}

// GridSetting styles a layout's grid.
type GridSetting struct {
	BackgroundColor      string `json:"backgroundColor"`
	Color                string `json:"color"`
	Columns              int    `json:"columns" tb:"columns,default=24"`
	Margins              []int  `json:"margins"`
	BackgroundSizeMode   string `json:"backgroundSizeMode"`
	AutoFillHeight       bool   `json:"autoFillHeight"`
	MobileAutoFillHeight bool   `json:"mobileAutoFillHeight"`
	MobileRowHeight      int    `json:"mobileRowHeight"`
}

func (g *GridSetting) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, g)
}

// EntityAlias names a set of entities widgets can bind to.
type EntityAlias struct {
	ID     string  `json:"id"`
	Alias  string  `json:"alias"`
	Filter *Filter `json:"filter,omitempty"`
}

func (a *EntityAlias) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, a)
}

// Filter selects the entities behind an alias.
type Filter struct {
	Type             string `json:"type"`
	ResolveMultiple  *bool  `json:"resolveMultiple,omitempty"`
	SingleEntity     *Id    `json:"singleEntity,omitempty"`
	EntityType       string `json:"entityType,omitempty"`
	EntityNameFilter string `json:"entityNameFilter,omitempty"`
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, f)
}

// Settings are dashboard-wide display switches.
type Settings struct {
	StateControllerID       string `json:"stateControllerId"`
	ShowTitle               bool   `json:"showTitle"`
	ShowDashboardsSelect    bool   `json:"showDashboardsSelect"`
	ShowEntitiesSelect      bool   `json:"showEntitiesSelect"`
	ShowDashboardTimewindow bool   `json:"showDashboardTimewindow"`
	ShowDashboardExport     bool   `json:"showDashboardExport"`
	ToolbarAlwaysOpen       bool   `json:"toolbarAlwaysOpen"`
	TitleColor              string `json:"titleColor"`
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, s)
}

// TimeWindow is the dashboard's default time range.
type TimeWindow struct {
	RealTime    *RealTime              `json:"realtime,omitempty" tb:"real_time"`
	Aggregation *TimeWindowAggregation `json:"aggregation,omitempty"`
}

func (t *TimeWindow) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, t)
}

// RealTime is a sliding window ending now.
type RealTime struct {
	Interval     int64 `json:"interval"`
	TimeWindowMs int64 `json:"timewindowMs" tb:"time_window_ms"`
}

func (r *RealTime) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, r)
}

// TimeWindowAggregation is how widgets aggregate samples in the window.
type TimeWindowAggregation struct {
	Type  Aggregation `json:"type"`
	Limit int         `json:"limit"`
}

func (a *TimeWindowAggregation) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, a)
}

// CreateDashboard creates a dashboard named name. A template's
// configuration is copied into it; id, when set, asks the server to use
// that id.
func (c *Client) CreateDashboard(ctx context.Context, name string, template *Dashboard, id *Id) (*Dashboard, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	body := map[string]any{"title": name}
	if template != nil && template.Configuration != nil {
		body["configuration"] = template.Configuration
	}
	if id != nil {
		body["id"] = id
	}
	data, err := c.post(ctx, "/api/dashboard", body)
	if err != nil {
		return nil, err
	}
	return hydrateBound[Dashboard](c, data)
}

// GetAllDashboardHeaders lists the tenant's dashboards.
func (c *Client) GetAllDashboardHeaders(ctx context.Context, opts *ListOptions) ([]*DashboardHeader, error) {
	return fetchAll[DashboardHeader](ctx, c, opts.listPath("/api/tenant/dashboards"), opts.sortSpec())
}

// GetDashboardHeadersByName returns dashboards whose name starts with prefix.
func (c *Client) GetDashboardHeadersByName(ctx context.Context, prefix string) ([]*DashboardHeader, error) {
	return c.GetAllDashboardHeaders(ctx, &ListOptions{TextSearch: prefix})
}

// GetDashboardByName returns the dashboard named exactly name with its
// configuration, or nil.
func (c *Client) GetDashboardByName(ctx context.Context, name string) (*Dashboard, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	headers, err := c.GetDashboardHeadersByName(ctx, name)
	if err != nil {
		return nil, err
	}
	header, err := exactMatch("dashboard", name, headers, func(h *DashboardHeader) string { return h.Name })
	if err != nil || header == nil {
		return nil, err
	}
	return header.GetDashboard(ctx)
}

// GetDashboardByID fetches a dashboard with its configuration.
func (c *Client) GetDashboardByID(ctx context.Context, id any) (*Dashboard, error) {
	guid, err := guidArg(id)
	if err != nil {
		return nil, err
	}
	return fetchOne[Dashboard](ctx, c, "/api/dashboard/"+guid)
}

// GetDashboardHeaderByID fetches a dashboard without its configuration.
func (c *Client) GetDashboardHeaderByID(ctx context.Context, id any) (*DashboardHeader, error) {
	guid, err := guidArg(id)
	if err != nil {
		return nil, err
	}
	return fetchOne[DashboardHeader](ctx, c, "/api/dashboard/info/"+guid)
}
