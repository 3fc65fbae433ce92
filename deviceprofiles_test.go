package thingsboard

import (
	"context"
	"errors"
	"testing"
)

func TestClient_GetAllDeviceProfiles(t *testing.T) {
	ft := &fakeTransport{pages: map[string][]string{
		"/api/deviceProfiles": {
			mustJSON(t, map[string]any{
				"id": ref(EntityTypeDeviceProfile, testProfileID), "name": "thermostat",
				"default": false, "provisionType": "ALLOW_CREATE_NEW_DEVICES",
				"profileData": map[string]any{"transportConfiguration": map[string]any{"type": "MQTT"}},
			}),
			mustJSON(t, map[string]any{
				"id": ref(EntityTypeDeviceProfile, testDevice2ID), "name": "default", "default": true,
			}),
		},
	}}
	client := newFakeClient(t, ft)

	profiles, err := client.GetAllDeviceProfiles(context.Background(), &ListOptions{SortBy: "default"})
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 2 || !profiles[0].Default {
		t.Fatalf("profiles = %v, want the default profile first", profiles)
	}
	thermo := profiles[1]
	if thermo.ProvisionType != "ALLOW_CREATE_NEW_DEVICES" {
		t.Errorf("ProvisionType = %q", thermo.ProvisionType)
	}
	if typ, _ := GetString(thermo.ProfileData, "transportConfiguration", "type"); typ != "MQTT" {
		t.Errorf("profileData = %v", thermo.ProfileData)
	}
	if thermo.ID.EntityType != EntityTypeDeviceProfile || thermo.Client() != client {
		t.Errorf("profile not bound: %+v", thermo.ID)
	}
	if thermo.String() != "DeviceProfile (thermostat, "+testProfileID+")" {
		t.Errorf("String() = %q", thermo.String())
	}
}

func TestClient_GetDeviceProfileByName(t *testing.T) {
	ft := &fakeTransport{pages: map[string][]string{
		"/api/deviceProfiles?textSearch=thermo": {
			profileFixture(t),
		},
		"/api/deviceProfileInfos?textSearch=thermostat": {
			profileFixture(t),
			mustJSON(t, map[string]any{"id": ref(EntityTypeDeviceProfile, testDevice2ID), "name": "thermostat-v2"}),
		},
	}}
	client := newFakeClient(t, ft)
	ctx := context.Background()

	if p, err := client.GetDeviceProfileByName(ctx, "thermo"); p != nil || err != nil {
		t.Errorf("prefix-only match = %v, %v, want nil", p, err)
	}
	info, err := client.GetDeviceProfileInfoByName(ctx, "thermostat")
	if err != nil || info == nil || info.ID.ID != testProfileID {
		t.Errorf("GetDeviceProfileInfoByName = %v, %v", info, err)
	}
	if _, err := client.GetDeviceProfileByName(ctx, ""); !errors.Is(err, ErrEmptyName) {
		t.Errorf("error = %v", err)
	}
	if _, err := client.GetDeviceProfileInfoByName(ctx, ""); !errors.Is(err, ErrEmptyName) {
		t.Errorf("error = %v", err)
	}
}

func TestDeviceProfile_Attributes(t *testing.T) {
	ft := &fakeTransport{gets: map[string]string{
		"/api/deviceProfile/" + testProfileID: profileFixture(t),
	}}
	client := newFakeClient(t, ft)
	p, err := client.GetDeviceProfileByID(context.Background(), testProfileID)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.SetServerAttributes(context.Background(), map[string]any{"owner": "ops"}); err != nil {
		t.Fatal(err)
	}
	if ft.posts[0].Path != "/api/plugins/telemetry/DEVICE_PROFILE/"+testProfileID+"/SERVER_SCOPE" {
		t.Errorf("path = %q", ft.posts[0].Path)
	}
}
