package thingsboard

import (
	"context"
	"errors"
	"testing"
)

func dashboardRecord(t *testing.T, id, title string, assigned []any, config any) string {
	rec := map[string]any{
		"id":                ref(EntityTypeDashboard, id),
		"title":             title,
		"assignedCustomers": assigned,
	}
	if config != nil {
		rec["configuration"] = config
	}
	return mustJSON(t, rec)
}

func assignee(id, title string, public bool) map[string]any {
	return map[string]any{"customerId": ref(EntityTypeCustomer, id), "title": title, "public": public}
}

func boundHeader(client *Client, assigned ...CustomerId) *DashboardHeader {
	h := &DashboardHeader{Name: "Overview", AssignedCustomers: assigned}
	h.ID = Id{ID: testDashboardID, EntityType: EntityTypeDashboard}
	h.bind(client)
	return h
}

func TestClient_GetDashboardByName(t *testing.T) {
	ft := &fakeTransport{
		pages: map[string][]string{
			"/api/tenant/dashboards?textSearch=Overview": {
				dashboardRecord(t, testDashboardID, "Overview", nil, nil),
			},
			"/api/tenant/dashboards?textSearch=Missing": {},
		},
		gets: map[string]string{
			"/api/dashboard/" + testDashboardID: dashboardRecord(t, testDashboardID, "Overview", nil, map[string]any{
				"widgets": []any{map[string]any{"id": testDeviceID, "title": "Temp"}},
			}),
		},
	}
	client := newFakeClient(t, ft)
	ctx := context.Background()

	d, err := client.GetDashboardByName(ctx, "Overview")
	if err != nil || d == nil {
		t.Fatalf("GetDashboardByName = %v, %v", d, err)
	}
	if d.Configuration == nil || d.Configuration.Widgets.Len() != 1 || d.Configuration.Widgets.Keyed() {
		t.Errorf("configuration = %+v", d.Configuration)
	}
	if w := d.Configuration.Widgets.At(0); w.Name != "Temp" || w.ID.GUID() != testDeviceID {
		t.Errorf("widget = %+v", w)
	}

	if d, err := client.GetDashboardByName(ctx, "Missing"); d != nil || err != nil {
		t.Errorf("missing = %v, %v", d, err)
	}
	if _, err := client.GetDashboardByName(ctx, ""); !errors.Is(err, ErrEmptyName) {
		t.Errorf("error = %v", err)
	}
}

func TestClient_GetDashboardHeaderByID(t *testing.T) {
	ft := &fakeTransport{gets: map[string]string{
		"/api/dashboard/info/" + testDashboardID: dashboardRecord(t, testDashboardID, "Overview",
			[]any{assignee(testCustomerID, "Acme", false)}, nil),
	}}
	client := newFakeClient(t, ft)

	h, err := client.GetDashboardHeaderByID(context.Background(), Id{ID: testDashboardID})
	if err != nil {
		t.Fatal(err)
	}
	if h.IsPublic() || len(h.AssignedCustomers) != 1 || h.AssignedCustomers[0].Name != "Acme" {
		t.Errorf("header = %+v", h)
	}
}

func TestClient_CreateDashboard(t *testing.T) {
	ft := &fakeTransport{replies: map[string]string{
		"/api/dashboard": dashboardRecord(t, testDashboardID, "Copy", nil, map[string]any{"widgets": map[string]any{}}),
	}}
	client := newFakeClient(t, ft)

	desc := "template"
	template := &Dashboard{Configuration: &Configuration{Description: &desc}}
	want := Id{ID: testDashboardID, EntityType: EntityTypeDashboard}
	d, err := client.CreateDashboard(context.Background(), "Copy", template, &want)
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "Copy" || d.Client() != client {
		t.Errorf("dashboard = %+v", d)
	}

	body := ft.postBody(t, 0)
	cfg, _ := body["configuration"].(map[string]any)
	if body["title"] != "Copy" || cfg["description"] != "template" {
		t.Errorf("body = %v", body)
	}
	if id, _ := body["id"].(map[string]any); id["id"] != testDashboardID {
		t.Errorf("requested id = %v", body["id"])
	}
}

func TestDashboardHeader_Publishing(t *testing.T) {
	public := CustomerId{ID: Id{ID: testPublicID, EntityType: EntityTypeCustomer}, Name: "Public", Public: true}
	acme := CustomerId{ID: Id{ID: testCustomerID, EntityType: EntityTypeCustomer}, Name: "Acme"}
	ctx := context.Background()

	t.Run("MakePublic uses the reply", func(t *testing.T) {
		ft := &fakeTransport{replies: map[string]string{
			"/api/customer/public/dashboard/" + testDashboardID: dashboardRecord(t, testDashboardID, "Overview",
				[]any{assignee(testCustomerID, "Acme", false), assignee(testPublicID, "Public", true)}, nil),
		}}
		h := boundHeader(newFakeClient(t, ft), acme)
		if err := h.MakePublic(ctx); err != nil {
			t.Fatal(err)
		}
		if !h.IsPublic() || len(h.AssignedCustomers) != 2 {
			t.Errorf("assigned = %+v", h.AssignedCustomers)
		}
	})

	t.Run("MakePublic falls back to the public id", func(t *testing.T) {
		ft := &fakeTransport{pages: map[string][]string{
			"/api/customers?textSearch=Public": {customerRecord(t, testPublicID, "Public", nil)},
		}}
		h := boundHeader(newFakeClient(t, ft))
		if err := h.MakePublic(ctx); err != nil {
			t.Fatal(err)
		}
		if !h.IsPublic() || h.AssignedCustomers[0].GUID() != testPublicID {
			t.Errorf("assigned = %+v", h.AssignedCustomers)
		}
	})

	t.Run("MakePublic without a public customer", func(t *testing.T) {
		ft := &fakeTransport{pages: map[string][]string{"/api/customers?textSearch=Public": {}}}
		h := boundHeader(newFakeClient(t, ft))
		if err := h.MakePublic(ctx); !errors.Is(err, ErrNoPublicCustomer) {
			t.Errorf("error = %v, want ErrNoPublicCustomer", err)
		}
	})

	t.Run("MakePrivate keeps other assignees", func(t *testing.T) {
		ft := &fakeTransport{}
		h := boundHeader(newFakeClient(t, ft), acme, public)
		if err := h.MakePrivate(ctx); err != nil {
			t.Fatal(err)
		}
		if h.IsPublic() || len(h.AssignedCustomers) != 1 || h.AssignedCustomers[0].Name != "Acme" {
			t.Errorf("assigned = %+v", h.AssignedCustomers)
		}
		if ft.deletes[0] != "/api/customer/public/dashboard/"+testDashboardID {
			t.Errorf("delete = %q", ft.deletes[0])
		}
		if err := h.MakePrivate(ctx); err != nil || len(ft.deletes) != 1 {
			t.Error("MakePrivate on a private dashboard should make no request")
		}
	})

	t.Run("PublicURL", func(t *testing.T) {
		ft := &fakeTransport{pages: map[string][]string{
			"/api/customers?textSearch=Public": {customerRecord(t, testPublicID, "Public", nil)},
		}}
		client := newFakeClient(t, ft)

		private := boundHeader(client, acme)
		if u, err := private.PublicURL(ctx); u != "" || err != nil {
			t.Errorf("private PublicURL = %q, %v", u, err)
		}

		h := boundHeader(client, public)
		u, err := h.PublicURL(ctx)
		if err != nil {
			t.Fatal(err)
		}
		want := "https://tb.example.com/dashboard/" + testDashboardID + "?publicId=" + testPublicID
		if u != want {
			t.Errorf("PublicURL = %q, want %q", u, want)
		}
	})
}

func TestDashboardHeader_AssignAndCustomers(t *testing.T) {
	ft := &fakeTransport{
		replies: map[string]string{
			"/api/customer/" + testCustomerID + "/dashboard/" + testDashboardID: dashboardRecord(t, testDashboardID, "Overview",
				[]any{assignee(testCustomerID, "Acme", false)}, nil),
		},
		gets: map[string]string{
			"/api/customer/" + testCustomerID: customerRecord(t, testCustomerID, "Acme", nil),
		},
	}
	client := newFakeClient(t, ft)
	h := boundHeader(client)
	ctx := context.Background()

	owner := &Customer{}
	owner.ID = Id{ID: testCustomerID, EntityType: EntityTypeCustomer}
	if err := h.AssignTo(ctx, owner); err != nil {
		t.Fatal(err)
	}
	customers, err := h.GetCustomers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(customers) != 1 || customers[0].Name != "Acme" {
		t.Errorf("customers = %v", customers)
	}
}

func TestDashboard_Update(t *testing.T) {
	ft := &fakeTransport{replies: map[string]string{
		"/api/dashboard": dashboardRecord(t, testDashboardID, "Renamed", nil, map[string]any{"widgets": map[string]any{}}),
	}}
	client := newFakeClient(t, ft)

	desc := "kept"
	d := &Dashboard{DashboardHeader: DashboardHeader{Name: "Renamed"}, Configuration: &Configuration{Description: &desc}}
	d.ID = Id{ID: testDashboardID, EntityType: EntityTypeDashboard}
	d.bind(client)

	if err := d.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	body := ft.postBody(t, 0)
	if cfg, _ := body["configuration"].(map[string]any); cfg["description"] != "kept" {
		t.Errorf("full update must send the configuration: %v", body)
	}

	if err := d.DashboardHeader.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := ft.postBody(t, 1)["configuration"]; ok {
		t.Error("header update must not send a configuration")
	}
}
