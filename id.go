package thingsboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NullGUID is the sentinel ThingsBoard uses for "no entity", most often in
// the customerId of an unassigned device or dashboard.
const NullGUID = "13814000-1dd2-11b2-8080-808080808080"

var nullUUID = uuid.MustParse(NullGUID)

// EntityType names the kind of platform entity an Id refers to.
// Unknown values received from the server are passed through unchanged.
type EntityType string

// Entity type constants.
const (
	EntityTypeDevice        EntityType = "DEVICE"
	EntityTypeCustomer      EntityType = "CUSTOMER"
	EntityTypeDashboard     EntityType = "DASHBOARD"
	EntityTypeTenant        EntityType = "TENANT"
	EntityTypeTenantProfile EntityType = "TENANT_PROFILE"
	EntityTypeUser          EntityType = "USER"
	EntityTypeDeviceProfile EntityType = "DEVICE_PROFILE"
	EntityTypeRuleChain     EntityType = "RULE_CHAIN"
	EntityTypeAsset         EntityType = "ASSET"
	EntityTypeOTAPackage    EntityType = "OTA_PACKAGE"
)

// IDLike is anything that carries an entity GUID: a bare Guid, an Id, or a
// CustomerId. The set is closed.
type IDLike interface {
	GUID() string
	idLike()
}

// Guid is a bare entity GUID string.
type Guid string

// GUID returns the string form.
func (g Guid) GUID() string { return string(g) }
func (Guid) idLike()        {}

// Id is the platform-wide entity identifier.
type Id struct {
	ID         string     `json:"id"`
	EntityType EntityType `json:"entityType,omitempty"`
}

// ParseId validates guid and returns an Id of the given type.
func ParseId(guid string, entityType EntityType) (Id, error) {
	if guid == "" {
		return Id{}, ErrEmptyID
	}
	u, err := uuid.Parse(guid)
	if err != nil {
		return Id{}, fmt.Errorf("%w: %q", ErrInvalidID, guid)
	}
	return Id{ID: u.String(), EntityType: entityType}, nil
}

// GUID returns the wrapped GUID string.
func (id Id) GUID() string { return id.ID }
func (Id) idLike()         {}

// IsNull reports whether the id is empty or the NULL_GUID sentinel.
func (id Id) IsNull() bool {
	if id.ID == "" {
		return true
	}
	u, err := uuid.Parse(id.ID)
	return err == nil && u == nullUUID
}

// Equal reports whether other refers to the same entity. Raw GUID strings,
// Guid, Id, CustomerId and uuid.UUID values are compared by GUID; entity
// types are ignored. Anything else is simply unequal.
func (id Id) Equal(other any) bool {
	g, ok := guidOf(other)
	if !ok || id.ID == "" {
		return false
	}
	return strings.EqualFold(id.ID, g)
}

func (id Id) String() string {
	if id.EntityType == "" {
		return id.ID
	}
	return string(id.EntityType) + ":" + id.ID
}

// UnmarshalJSON accepts {"id": ..., "entityType": ...}. The GUID is
// required and must parse.
func (id *Id) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         *string    `json:"id"`
		EntityType EntityType `json:"entityType"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return &HydrationError{Shape: "Id", Err: err}
	}
	if raw.ID == nil || *raw.ID == "" {
		return &HydrationError{Shape: "Id", Field: "id", Err: ErrMissingIdentity}
	}
	if err := uuid.Validate(*raw.ID); err != nil {
		return &HydrationError{Shape: "Id", Field: "id", Err: fmt.Errorf("%w: %v", ErrMissingIdentity, err)}
	}
	id.ID = *raw.ID
	id.EntityType = raw.EntityType
	return nil
}

// CustomerId is the reference to a customer embedded in dashboards'
// assignedCustomers lists.
type CustomerId struct {
	ID     Id     `json:"customerId" tb:"id,required"`
	Public bool   `json:"public"`
	Name   string `json:"title" tb:"name"`
}

// GUID returns the customer's GUID.
func (c CustomerId) GUID() string { return c.ID.ID }
func (CustomerId) idLike()        {}

// Equal delegates to the wrapped Id.
func (c CustomerId) Equal(other any) bool {
	return c.ID.Equal(other)
}

func (c *CustomerId) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, c)
}

// WidgetID is a dashboard widget identifier. Older dashboards store it as a
// bare string, newer ones as a full Id object; the source shape is kept.
type WidgetID struct {
	Id
	bare bool
}

func (w *WidgetID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		w.Id = Id{ID: s}
		w.bare = true
		return nil
	}
	var raw struct {
		ID         string     `json:"id"`
		EntityType EntityType `json:"entityType"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	w.Id = Id{ID: raw.ID, EntityType: raw.EntityType}
	return nil
}

func (w WidgetID) MarshalJSON() ([]byte, error) {
	if w.bare {
		return json.Marshal(w.ID)
	}
	return json.Marshal(w.Id)
}

// Identifiable is implemented by every hydrated entity.
type Identifiable interface {
	Identity() Id
}

func guidOf(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case Guid:
		return string(x), true
	case Id:
		return x.ID, true
	case *Id:
		if x == nil {
			return "", false
		}
		return x.ID, true
	case CustomerId:
		return x.ID.ID, true
	case *CustomerId:
		if x == nil {
			return "", false
		}
		return x.ID.ID, true
	case uuid.UUID:
		return x.String(), true
	case IDLike:
		return x.GUID(), true
	case Identifiable:
		return x.Identity().ID, true
	}
	return "", false
}

// guidArg resolves an id argument (anything guidOf accepts) to its GUID.
func guidArg(v any) (string, error) {
	g, ok := guidOf(v)
	if !ok {
		return "", fmt.Errorf("%w: unsupported id type %T", ErrInvalidID, v)
	}
	if g == "" {
		return "", ErrEmptyID
	}
	return g, nil
}
