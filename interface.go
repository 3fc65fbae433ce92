package thingsboard

import (
	"context"
	"encoding/json"
	"iter"
)

// Transport is the REST collaborator every resource call goes through.
// Client implements it over HTTP; WithTransport swaps in another.
type Transport interface {
	// Get returns the response body of a GET.
	Get(ctx context.Context, path string) (json.RawMessage, error)
	// Post sends body and returns the response, {} when the server sent none.
	Post(ctx context.Context, path string, body any) (json.RawMessage, error)
	// Delete reports false without error when the target does not exist.
	Delete(ctx context.Context, path string) (bool, error)
	// GetPaged follows a paged listing to its end and returns every record.
	GetPaged(ctx context.Context, path string) ([]json.RawMessage, error)
}

// ThingsBoardClient defines the ThingsBoard API operations of Client,
// enabling mocking for tests.
type ThingsBoardClient interface {
	Transport

	// ============================================================================
	// Customer Operations
	// ============================================================================

	CreateCustomer(ctx context.Context, customer *CustomerCreate) (*Customer, error)
	GetCustomerByID(ctx context.Context, id any) (*Customer, error)
	GetCustomersByName(ctx context.Context, prefix string) ([]*Customer, error)
	GetCustomerByName(ctx context.Context, name string) (*Customer, error)
	GetAllCustomers(ctx context.Context, opts *ListOptions) ([]*Customer, error)
	GetPublicCustomerID(ctx context.Context) (*CustomerId, error)
	Customers(ctx context.Context) iter.Seq2[*Customer, error]

	// ============================================================================
	// Device Operations
	// ============================================================================

	CreateDevice(ctx context.Context, device *DeviceCreate) (*Device, error)
	GetDeviceByID(ctx context.Context, id any) (*Device, error)
	GetDevicesByName(ctx context.Context, prefix string) ([]*Device, error)
	GetDeviceByName(ctx context.Context, name string) (*Device, error)
	GetDevicesByType(ctx context.Context, deviceType string) ([]*Device, error)
	GetAllDevices(ctx context.Context, opts *ListOptions) ([]*Device, error)
	Devices(ctx context.Context, opts *ListOptions) iter.Seq2[*Device, error]

	// ============================================================================
	// Batch Operations
	// ============================================================================

	GetLatestTelemetryBatch(ctx context.Context, devices []*Device, keys []string, cfg *BatchConfig) []BatchTelemetryResult
	SendTelemetryBatch(ctx context.Context, writes []TelemetryWrite, cfg *BatchConfig) []BatchResult

	// ============================================================================
	// Device Profile Operations
	// ============================================================================

	GetAllDeviceProfiles(ctx context.Context, opts *ListOptions) ([]*DeviceProfile, error)
	GetDeviceProfileByID(ctx context.Context, id any) (*DeviceProfile, error)
	GetDeviceProfilesByName(ctx context.Context, prefix string) ([]*DeviceProfile, error)
	GetDeviceProfileByName(ctx context.Context, name string) (*DeviceProfile, error)
	GetAllDeviceProfileInfos(ctx context.Context, opts *ListOptions) ([]*DeviceProfileInfo, error)
	GetDeviceProfileInfoByID(ctx context.Context, id any) (*DeviceProfileInfo, error)
	GetDeviceProfileInfosByName(ctx context.Context, prefix string) ([]*DeviceProfileInfo, error)
	GetDeviceProfileInfoByName(ctx context.Context, name string) (*DeviceProfileInfo, error)

	// ============================================================================
	// Dashboard Operations
	// ============================================================================

	CreateDashboard(ctx context.Context, name string, template *Dashboard, id *Id) (*Dashboard, error)
	GetAllDashboardHeaders(ctx context.Context, opts *ListOptions) ([]*DashboardHeader, error)
	GetDashboardHeadersByName(ctx context.Context, prefix string) ([]*DashboardHeader, error)
	GetDashboardByName(ctx context.Context, name string) (*Dashboard, error)
	GetDashboardByID(ctx context.Context, id any) (*Dashboard, error)
	GetDashboardHeaderByID(ctx context.Context, id any) (*DashboardHeader, error)

	// ============================================================================
	// Tenant and User Operations
	// ============================================================================

	GetAllTenants(ctx context.Context, opts *ListOptions) ([]*Tenant, error)
	GetCurrentUser(ctx context.Context) (*User, error)
	GetCurrentTenantID(ctx context.Context) (Id, error)

	// ============================================================================
	// Paging and Session
	// ============================================================================

	Paged(ctx context.Context, path string) iter.Seq2[json.RawMessage, error]
	AuthToken(ctx context.Context) (string, error)
	BaseURL() string
	InvalidateCache(resourceType string, ids ...string)
	ClearCache()
}

// Compile-time interface checks.
var (
	_ Transport         = (*Client)(nil)
	_ ThingsBoardClient = (*Client)(nil)

	_ HasScopedAttributes = (*Customer)(nil)
	_ HasScopedAttributes = (*Device)(nil)
	_ HasScopedAttributes = (*Tenant)(nil)
	_ HasScopedAttributes = (*User)(nil)
	_ HasScopedAttributes = (*DeviceProfileInfo)(nil)
	_ HasScopedAttributes = (*DeviceProfile)(nil)
)
