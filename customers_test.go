package thingsboard

import (
	"context"
	"errors"
	"testing"
)

func customerRecord(t *testing.T, id, title string, extra map[string]any) string {
	rec := map[string]any{
		"id":          ref(EntityTypeCustomer, id),
		"createdTime": 1_700_000_000_000,
		"title":       title,
		"tenantId":    ref(EntityTypeTenant, testTenantID),
	}
	for k, v := range extra {
		rec[k] = v
	}
	return mustJSON(t, rec)
}

func TestClient_GetCustomerByID(t *testing.T) {
	ft := &fakeTransport{gets: map[string]string{
		"/api/customer/" + testCustomerID: customerRecord(t, testCustomerID, "Acme", map[string]any{
			"address": "1 Main St", "city": "Springfield", "phone": nil,
		}),
	}}
	client := newFakeClient(t, ft)
	ctx := context.Background()

	for _, id := range []any{testCustomerID, Guid(testCustomerID), Id{ID: testCustomerID}} {
		cu, err := client.GetCustomerByID(ctx, id)
		if err != nil {
			t.Fatalf("GetCustomerByID(%v): %v", id, err)
		}
		if cu.Name != "Acme" || cu.ID.EntityType != EntityTypeCustomer {
			t.Errorf("customer = %+v", cu)
		}
		if cu.OneLineAddress() != "1 Main St, Springfield" {
			t.Errorf("OneLineAddress() = %q", cu.OneLineAddress())
		}
	}

	t.Run("NULL_GUID makes no request", func(t *testing.T) {
		before := len(ft.gotGets)
		cu, err := client.GetCustomerByID(ctx, NullGUID)
		if cu != nil || err != nil {
			t.Errorf("GetCustomerByID(NULL_GUID) = %v, %v", cu, err)
		}
		if len(ft.gotGets) != before {
			t.Error("unexpected request")
		}
	})

	t.Run("missing customer is an error", func(t *testing.T) {
		if _, err := client.GetCustomerByID(ctx, testCustomer2ID); !IsNotFound(err) {
			t.Errorf("error = %v, want not found", err)
		}
	})

	t.Run("invalid ids", func(t *testing.T) {
		if _, err := client.GetCustomerByID(ctx, ""); !errors.Is(err, ErrEmptyID) {
			t.Errorf("error = %v, want ErrEmptyID", err)
		}
		if _, err := client.GetCustomerByID(ctx, "nope"); !errors.Is(err, ErrInvalidID) {
			t.Errorf("error = %v, want ErrInvalidID", err)
		}
	})
}

func TestClient_GetCustomerByName(t *testing.T) {
	ft := &fakeTransport{pages: map[string][]string{
		"/api/customers?textSearch=Acme": {
			customerRecord(t, testCustomerID, "Acme", nil),
			customerRecord(t, testCustomer2ID, "Acme Labs", nil),
		},
		"/api/customers?textSearch=Nobody": {},
		"/api/customers?textSearch=Twin": {
			customerRecord(t, testCustomerID, "Twin", nil),
			customerRecord(t, testCustomer2ID, "Twin", nil),
		},
	}}
	client := newFakeClient(t, ft)
	ctx := context.Background()

	cu, err := client.GetCustomerByName(ctx, "Acme")
	if err != nil || cu == nil || cu.ID.ID != testCustomerID {
		t.Errorf("GetCustomerByName(Acme) = %v, %v", cu, err)
	}

	prefixed, err := client.GetCustomersByName(ctx, "Acme")
	if err != nil || len(prefixed) != 2 {
		t.Errorf("GetCustomersByName = %v, %v", prefixed, err)
	}

	if cu, err := client.GetCustomerByName(ctx, "Nobody"); cu != nil || err != nil {
		t.Errorf("absent name = %v, %v, want nil, nil", cu, err)
	}
	if _, err := client.GetCustomerByName(ctx, "Twin"); !IsAmbiguous(err) {
		t.Errorf("error = %v, want ambiguous", err)
	}
	if _, err := client.GetCustomerByName(ctx, ""); !errors.Is(err, ErrEmptyName) {
		t.Errorf("error = %v, want ErrEmptyName", err)
	}
}

func TestClient_GetAllCustomers_Sorted(t *testing.T) {
	ft := &fakeTransport{pages: map[string][]string{
		"/api/customers": {
			customerRecord(t, testCustomerID, "Zeta", map[string]any{"email": "z@example.com"}),
			customerRecord(t, testCustomer2ID, "Alpha", map[string]any{"email": ""}),
			customerRecord(t, testPublicID, "Mid", map[string]any{"email": "a@example.com"}),
		},
	}}
	client := newFakeClient(t, ft)

	customers, err := client.GetAllCustomers(context.Background(), &ListOptions{SortBy: "email"})
	if err != nil {
		t.Fatal(err)
	}
	got := []string{customers[0].Name, customers[1].Name, customers[2].Name}
	if got[0] != "Mid" || got[1] != "Zeta" || got[2] != "Alpha" {
		t.Errorf("order = %v, want blank email last", got)
	}

	if _, err := client.GetAllCustomers(context.Background(), &ListOptions{SortBy: "colour"}); !errors.Is(err, ErrUnknownSortKey) {
		t.Errorf("error = %v, want ErrUnknownSortKey", err)
	}
}

func TestClient_CreateCustomer(t *testing.T) {
	ft := &fakeTransport{replies: map[string]string{
		"/api/customer": customerRecord(t, testCustomerID, "Acme", nil),
	}}
	client := newFakeClient(t, ft)
	ctx := context.Background()

	cu, err := client.CreateCustomer(ctx, &CustomerCreate{
		Name:             "Acme",
		City:             "Springfield",
		ServerAttributes: map[string]any{"tier": "gold"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if cu.Client() != client || cu.ID.ID != testCustomerID {
		t.Errorf("customer = %+v", cu)
	}

	body := ft.postBody(t, 0)
	if body["title"] != "Acme" || body["city"] != "Springfield" {
		t.Errorf("create body = %v", body)
	}
	if _, ok := body["ServerAttributes"]; ok {
		t.Error("attributes must not be part of the create body")
	}
	if ft.posts[1].Path != "/api/plugins/telemetry/CUSTOMER/"+testCustomerID+"/SERVER_SCOPE" {
		t.Errorf("attribute path = %q", ft.posts[1].Path)
	}

	if _, err := client.CreateCustomer(ctx, &CustomerCreate{}); !errors.Is(err, ErrEmptyName) {
		t.Errorf("error = %v, want ErrEmptyName", err)
	}
}

func TestCustomer_UpdateDelete(t *testing.T) {
	ft := &fakeTransport{
		gets: map[string]string{
			"/api/customer/" + testCustomerID: customerRecord(t, testCustomerID, "Acme", nil),
		},
		replies: map[string]string{
			"/api/customer": customerRecord(t, testCustomerID, "Acme Corp", map[string]any{"email": "ops@acme.example"}),
		},
		missing: map[string]bool{"/api/customer/" + testCustomer2ID: true},
	}
	client := newFakeClient(t, ft)
	ctx := context.Background()

	cu, err := client.GetCustomerByID(ctx, testCustomerID)
	if err != nil {
		t.Fatal(err)
	}
	cu.Name = "Acme Corp"
	if err := cu.Update(ctx); err != nil {
		t.Fatal(err)
	}
	if cu.Email != "ops@acme.example" || cu.Client() != client {
		t.Errorf("customer not refreshed from reply: %+v", cu)
	}
	body := ft.postBody(t, 0)
	if body["title"] != "Acme Corp" {
		t.Errorf("update body = %v", body)
	}
	if _, ok := body["createdTime"]; ok {
		t.Error("read-only createdTime was sent")
	}

	if ok, err := cu.Delete(ctx); !ok || err != nil {
		t.Errorf("Delete = %v, %v", ok, err)
	}
	gone := &Customer{}
	gone.ID = Id{ID: testCustomer2ID, EntityType: EntityTypeCustomer}
	gone.bind(client)
	if ok, err := gone.Delete(ctx); ok || err != nil {
		t.Errorf("Delete(missing) = %v, %v, want false, nil", ok, err)
	}
}

func TestCustomer_GetDevices(t *testing.T) {
	ft := &fakeTransport{pages: map[string][]string{
		"/api/customer/" + testCustomerID + "/devices": {
			mustJSON(t, map[string]any{"id": ref(EntityTypeDevice, testDeviceID), "name": "b"}),
			mustJSON(t, map[string]any{"id": ref(EntityTypeDevice, testDevice2ID), "name": "a"}),
		},
	}}
	client := newFakeClient(t, ft)
	cu := &Customer{}
	cu.ID = Id{ID: testCustomerID, EntityType: EntityTypeCustomer}
	cu.bind(client)

	devices, err := cu.GetDevices(context.Background(), &ListOptions{SortBy: "name"})
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 2 || devices[0].Name != "a" {
		t.Errorf("devices = %v", devices)
	}
}

func TestClient_GetPublicCustomerID(t *testing.T) {
	ft := &fakeTransport{pages: map[string][]string{
		"/api/customers?textSearch=Public": {},
	}}
	client := newFakeClient(t, ft)
	ctx := context.Background()

	id, err := client.GetPublicCustomerID(ctx)
	if id != nil || err != nil {
		t.Fatalf("before publishing = %v, %v, want nil, nil", id, err)
	}

	ft.mu.Lock()
	ft.pages["/api/customers?textSearch=Public"] = []string{
		customerRecord(t, testPublicID, "Public", map[string]any{"additionalInfo": map[string]any{"isPublic": true}}),
	}
	ft.mu.Unlock()

	for range 2 {
		id, err = client.GetPublicCustomerID(ctx)
		if err != nil || id == nil {
			t.Fatalf("GetPublicCustomerID = %v, %v", id, err)
		}
		if id.GUID() != testPublicID || !id.Public || id.Name != "Public" {
			t.Errorf("id = %+v", id)
		}
	}
	if n := countGets(ft, "/api/customers?textSearch=Public"); n != 2 {
		t.Errorf("lookups = %d, want 2 (a found id is remembered)", n)
	}
}
