// Package thingsboard provides a Go client library for the ThingsBoard IoT
// platform REST API.
//
// The library covers customers, devices, dashboards, device profiles,
// tenants and users, plus scoped attributes and device telemetry. Server
// responses are hydrated into typed entities that tolerate the platform's
// shape variance: additionalInfo sent as an object or as a string, widget
// lists sent as arrays or maps, ids sent as GUIDs or as objects.
//
// # Authentication
//
// The client logs in with a tenant user's credentials on first use and
// reuses the token until it expires:
//
//	client, err := thingsboard.NewClient("https://demo.thingsboard.io", "tenant@thingsboard.org", "tenant")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// A token obtained elsewhere can be supplied with WithToken.
//
// # Basic Usage
//
// Create a device and write to it:
//
//	device, err := client.CreateDevice(ctx, &thingsboard.DeviceCreate{Name: "sensor-1", Type: "thermometer"})
//	err = device.SetServerAttributes(ctx, map[string]any{"location": "lab"})
//	err = device.SendTelemetry(ctx, map[string]any{"temperature": 21.5}, nil)
//
// Read it back:
//
//	latest, err := device.GetLatestTelemetry(ctx, "temperature")
//	attrs, err := device.GetServerAttributes(ctx)
//	fmt.Println(attrs.Value("location"))
//
// Entities fetched through a client stay bound to it, so follow-up calls
// such as device.AssignTo or customer.Update need no client argument.
//
// # Lookups
//
// By-id lookups return an error when the entity does not exist. By-name
// lookups return nil instead, and an *AmbiguousMatchError when several
// different entities share the name:
//
//	customer, err := client.GetCustomerByName(ctx, "Acme")
//	if customer == nil && err == nil {
//	    // no such customer
//	}
//
// # Sorting
//
// Listings accept a sort specification: a field name with an optional
// direction, or a list of them. Nulls always sort last.
//
//	devices, err := client.GetAllDevices(ctx, &thingsboard.ListOptions{
//	    SortBy: []string{"type", "created_time desc"},
//	})
//
// The same engine sorts plain maps and tuples:
//
//	err := thingsboard.Sort(rows, "phone asc")
//
// # Pagination
//
// GetAll* methods fetch every page. To stop early, iterate instead:
//
//	for device, err := range client.Devices(ctx, nil) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(device.Name)
//	}
//
// # Retry Configuration
//
// Enable automatic retry for transient failures:
//
//	client, err := thingsboard.NewClient(url, user, pass,
//	    thingsboard.WithRetry(thingsboard.DefaultRetryConfig()),
//	)
//
// # Error Handling
//
// Check for specific error types:
//
//	device, err := client.GetDeviceByID(ctx, id)
//	if err != nil {
//	    if thingsboard.IsUnauthorized(err) {
//	        // Credentials rejected
//	    } else if thingsboard.IsNotFound(err) {
//	        // Device doesn't exist
//	    } else if thingsboard.IsRateLimited(err) {
//	        // Slow down
//	    }
//	}
//
// # Logging
//
// Pass a zap logger to see requests, responses and token refreshes:
//
//	logger, _ := zap.NewProduction()
//	client, err := thingsboard.NewClient(url, user, pass, thingsboard.WithLogger(logger))
package thingsboard
