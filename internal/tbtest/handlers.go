package tbtest

import (
	"fmt"
	"maps"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	kindCustomer      = "CUSTOMER"
	kindDevice        = "DEVICE"
	kindDashboard     = "DASHBOARD"
	kindDeviceProfile = "DEVICE_PROFILE"
	kindTenant        = "TENANT"
	kindUser          = "USER"

	publicTitle = "Public"
)

var scopes = []string{"SERVER_SCOPE", "SHARED_SCOPE", "CLIENT_SCOPE"}

func ref(kind, id string) map[string]any {
	return map[string]any{"id": id, "entityType": kind}
}

// refID extracts the GUID from an {"id": ..., "entityType": ...} value.
func refID(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := m["id"].(string)
	return id
}

func (s *Server) nowMillis() int64 {
	return s.now().UnixMilli()
}

func (s *Server) seed() error {
	now := s.nowMillis()
	s.tenantID = uuid.NewString()
	s.userID = uuid.NewString()
	s.defaultProfile = uuid.NewString()

	tenant := &record{ID: s.tenantID, Kind: kindTenant, Name: "Tenant", Created: now, Doc: map[string]any{
		"id":              ref(kindTenant, s.tenantID),
		"createdTime":     now,
		"title":           "Tenant",
		"name":            "Tenant",
		"region":          "Global",
		"tenantProfileId": ref("TENANT_PROFILE", uuid.NewString()),
		"additionalInfo":  map[string]any{"description": "Default tenant"},
	}}
	user := &record{ID: s.userID, Kind: kindUser, Name: s.username, Created: now, Doc: map[string]any{
		"id":             ref(kindUser, s.userID),
		"createdTime":    now,
		"tenantId":       ref(kindTenant, s.tenantID),
		"customerId":     ref(kindCustomer, NullGUID),
		"email":          s.username,
		"name":           s.username,
		"authority":      "TENANT_ADMIN",
		"firstName":      "Tenant",
		"lastName":       "Administrator",
		"additionalInfo": map[string]any{},
	}}
	profile := &record{ID: s.defaultProfile, Kind: kindDeviceProfile, Name: "default", Created: now, Doc: map[string]any{
		"id":                 ref(kindDeviceProfile, s.defaultProfile),
		"createdTime":        now,
		"tenantId":           ref(kindTenant, s.tenantID),
		"name":               "default",
		"description":        "Default device profile",
		"default":            true,
		"type":               "DEFAULT",
		"transportType":      "DEFAULT",
		"provisionType":      "DISABLED",
		"image":              nil,
		"defaultDashboardId": nil,
		"defaultRuleChainId": nil,
		"defaultQueueName":   nil,
		"profileData": map[string]any{
			"configuration":          map[string]any{"type": "DEFAULT"},
			"transportConfiguration": map[string]any{"type": "DEFAULT"},
			"alarms":                 nil,
		},
	}}
	for _, rec := range []*record{tenant, user, profile} {
		if err := s.store.put(rec); err != nil {
			return err
		}
	}
	return nil
}

// lookup loads the record named by a path parameter and checks its kind.
func (s *Server) lookup(c *gin.Context, param, kind string) (*record, bool) {
	id := c.Param(param)
	if err := uuid.Validate(id); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("Invalid UUID string: %s", id))
		return nil, false
	}
	rec := s.store.get(id)
	if rec == nil || rec.Kind != kind {
		fail(c, http.StatusNotFound, codeItemNotFound, "Requested item wasn't found!")
		return nil, false
	}
	return rec, true
}

func (s *Server) getEntity(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, ok := s.lookup(c, "id", kind)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, rec.Doc)
	}
}

func (s *Server) deleteEntity(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := s.lookup(c, "id", kind); !ok {
			return
		}
		if _, err := s.store.remove(c.Param("id")); err != nil {
			fail(c, http.StatusInternalServerError, codeGeneral, err.Error())
			return
		}
		c.Status(http.StatusOK)
	}
}

// upsert creates or replaces an entity from the request body. nameKey is
// the body field holding the entity's name; unique rejects a second entity
// of the same kind with that name. prepare fills in server-owned fields.
func (s *Server) upsert(c *gin.Context, kind, nameKey string, unique bool, prepare func(rec, prev *record)) {
	var doc map[string]any
	if err := c.ShouldBindJSON(&doc); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "Invalid request body")
		return
	}
	name, _ := doc[nameKey].(string)
	if name == "" {
		fail(c, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("%s should be specified!", nameKey))
		return
	}

	id := refID(doc["id"])
	var prev *record
	if id != "" {
		if err := uuid.Validate(id); err != nil {
			fail(c, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("Invalid UUID string: %s", id))
			return
		}
		prev = s.store.get(id)
		if prev != nil && prev.Kind != kind {
			fail(c, http.StatusBadRequest, codeBadRequest, "Entity id belongs to another entity type")
			return
		}
	} else {
		id = uuid.NewString()
	}

	if unique {
		dup := s.store.list(kind, func(r *record) bool { return r.Name == name && !strings.EqualFold(r.ID, id) })
		if len(dup) > 0 {
			fail(c, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("%s with such %s already exists!", strings.ToLower(kind), nameKey))
			return
		}
	}

	rec := &record{ID: id, Kind: kind, Name: name, Created: s.nowMillis(), Doc: doc}
	if prev != nil {
		rec.Created, rec.Seq, rec.Owner, rec.Token, rec.Active = prev.Created, prev.Seq, prev.Owner, prev.Token, prev.Active
	}
	doc["id"] = ref(kind, id)
	doc["createdTime"] = rec.Created
	if kind != kindTenant {
		doc["tenantId"] = ref(kindTenant, s.tenantID)
	}
	prepare(rec, prev)

	if err := s.store.put(rec); err != nil {
		fail(c, http.StatusInternalServerError, codeGeneral, err.Error())
		return
	}
	c.JSON(http.StatusOK, rec.Doc)
}

func (s *Server) saveCustomer(c *gin.Context) {
	s.upsert(c, kindCustomer, "title", true, func(rec, _ *record) {
		rec.Doc["name"] = rec.Name
	})
}

func (s *Server) saveTenant(c *gin.Context) {
	s.upsert(c, kindTenant, "title", false, func(rec, prev *record) {
		rec.Doc["name"] = rec.Name
		if rec.Doc["tenantProfileId"] == nil && prev != nil {
			rec.Doc["tenantProfileId"] = prev.Doc["tenantProfileId"]
		}
	})
}

func (s *Server) saveDevice(c *gin.Context) {
	s.upsert(c, kindDevice, "name", true, func(rec, prev *record) {
		if t, _ := rec.Doc["type"].(string); t == "" {
			rec.Doc["type"] = "default"
		}
		if refID(rec.Doc["deviceProfileId"]) == "" {
			rec.Doc["deviceProfileId"] = ref(kindDeviceProfile, s.defaultProfile)
		}
		switch {
		case refID(rec.Doc["customerId"]) != "":
			rec.Owner = refID(rec.Doc["customerId"])
		case prev != nil:
			rec.Doc["customerId"] = prev.Doc["customerId"]
		default:
			rec.Doc["customerId"] = ref(kindCustomer, NullGUID)
		}
		if rec.Owner == NullGUID {
			rec.Owner = ""
		}
		if rec.Token == "" {
			rec.Token = strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
		}
	})
}

func (s *Server) saveDashboard(c *gin.Context) {
	s.upsert(c, kindDashboard, "title", false, func(rec, prev *record) {
		rec.Doc["name"] = rec.Name
		if prev != nil {
			rec.Doc["assignedCustomers"] = prev.Doc["assignedCustomers"]
		} else {
			rec.Doc["assignedCustomers"] = []any{}
		}
		if _, ok := rec.Doc["configuration"]; !ok {
			rec.Doc["configuration"] = nil
		}
	})
}

func (s *Server) currentUser(c *gin.Context) {
	rec := s.store.get(s.userID)
	if rec == nil {
		fail(c, http.StatusNotFound, codeItemNotFound, "User not found")
		return
	}
	c.JSON(http.StatusOK, rec.Doc)
}

// pageParams reads the paging query of a listing.
func pageParams(c *gin.Context) (page, size int, ok bool) {
	size, err := strconv.Atoi(c.DefaultQuery("pageSize", "10"))
	if err != nil || size <= 0 {
		fail(c, http.StatusBadRequest, codeBadRequest, "Invalid page size")
		return 0, 0, false
	}
	page, err = strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		fail(c, http.StatusBadRequest, codeBadRequest, "Invalid page")
		return 0, 0, false
	}
	return page, size, true
}

// respondPage applies textSearch and paging to recs and writes the
// platform's page envelope, rendering each record with view.
func respondPage(c *gin.Context, recs []*record, view func(*record) map[string]any) {
	page, size, ok := pageParams(c)
	if !ok {
		return
	}
	if text := strings.ToLower(c.Query("textSearch")); text != "" {
		recs = slices.DeleteFunc(recs, func(r *record) bool {
			return !strings.HasPrefix(strings.ToLower(r.Name), text)
		})
	}

	total := len(recs)
	start := min(page*size, total)
	end := min(start+size, total)
	data := make([]map[string]any, 0, end-start)
	for _, r := range recs[start:end] {
		data = append(data, view(r))
	}
	c.JSON(http.StatusOK, gin.H{
		"data":          data,
		"totalPages":    (total + size - 1) / size,
		"totalElements": total,
		"hasNext":       end < total,
	})
}

func docView(r *record) map[string]any { return r.Doc }

func (s *Server) listCustomers(c *gin.Context) {
	respondPage(c, s.store.list(kindCustomer, nil), docView)
}

func (s *Server) listTenants(c *gin.Context) {
	respondPage(c, s.store.list(kindTenant, nil), docView)
}

func deviceFilter(c *gin.Context) func(*record) bool {
	deviceType := c.Query("type")
	active := c.Query("active")
	return func(r *record) bool {
		if r.Kind != kindDevice {
			return false
		}
		if deviceType != "" && r.Doc["type"] != deviceType {
			return false
		}
		return active == "" || strconv.FormatBool(r.Active) == active
	}
}

func (s *Server) listDevices(infos bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		view := docView
		if infos {
			view = s.deviceInfo
		}
		respondPage(c, s.store.list(kindDevice, deviceFilter(c)), view)
	}
}

func (s *Server) customerDevices(c *gin.Context) {
	cust, ok := s.lookup(c, "id", kindCustomer)
	if !ok {
		return
	}
	respondPage(c, s.store.owned(cust.ID, deviceFilter(c)), docView)
}

// deviceInfo adds the listing-only fields of /api/tenant/deviceInfos.
func (s *Server) deviceInfo(r *record) map[string]any {
	doc := maps.Clone(r.Doc)
	doc["active"] = r.Active
	doc["customerTitle"] = nil
	doc["customerIsPublic"] = false
	if cust := s.store.get(r.Owner); r.Owner != "" && cust != nil {
		doc["customerTitle"] = cust.Name
		doc["customerIsPublic"] = isPublic(cust)
	}
	if profile := s.store.get(refID(r.Doc["deviceProfileId"])); profile != nil {
		doc["deviceProfileName"] = profile.Name
	}
	return doc
}

func (s *Server) deviceCredentials(c *gin.Context) {
	rec, ok := s.lookup(c, "id", kindDevice)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":               ref("DEVICE_CREDENTIALS", uuid.NewSHA1(uuid.NameSpaceOID, []byte(rec.ID)).String()),
		"createdTime":      rec.Created,
		"deviceId":         ref(kindDevice, rec.ID),
		"credentialsType":  "ACCESS_TOKEN",
		"credentialsId":    rec.Token,
		"credentialsValue": nil,
	})
}

func isPublic(r *record) bool {
	info, _ := r.Doc["additionalInfo"].(map[string]any)
	public, _ := info["isPublic"].(bool)
	return public
}

// publicCustomer returns the tenant's public customer, creating it on first use.
func (s *Server) publicCustomer() (*record, error) {
	if found := s.store.list(kindCustomer, isPublic); len(found) > 0 {
		return found[0], nil
	}
	id := uuid.NewString()
	now := s.nowMillis()
	rec := &record{ID: id, Kind: kindCustomer, Name: publicTitle, Created: now, Doc: map[string]any{
		"id":             ref(kindCustomer, id),
		"createdTime":    now,
		"tenantId":       ref(kindTenant, s.tenantID),
		"title":          publicTitle,
		"name":           publicTitle,
		"additionalInfo": map[string]any{"isPublic": true},
	}}
	return rec, s.store.put(rec)
}

// customerParam resolves the :id of an assignment route, where "public"
// names the public customer.
func (s *Server) customerParam(c *gin.Context) (*record, bool) {
	if c.Param("id") != "public" {
		return s.lookup(c, "id", kindCustomer)
	}
	rec, err := s.publicCustomer()
	if err != nil {
		fail(c, http.StatusInternalServerError, codeGeneral, err.Error())
		return nil, false
	}
	return rec, true
}

func (s *Server) assignDevice(c *gin.Context) {
	cust, ok := s.customerParam(c)
	if !ok {
		return
	}
	dev, ok := s.lookup(c, "deviceId", kindDevice)
	if !ok {
		return
	}
	dev.Doc["customerId"] = ref(kindCustomer, cust.ID)
	dev.Owner = cust.ID
	s.putAndRespond(c, dev)
}

func (s *Server) unassignDevice(c *gin.Context) {
	dev, ok := s.lookup(c, "deviceId", kindDevice)
	if !ok {
		return
	}
	if dev.Owner == "" {
		fail(c, http.StatusBadRequest, codeBadRequest, "Device isn't assigned to any customer!")
		return
	}
	dev.Doc["customerId"] = ref(kindCustomer, NullGUID)
	dev.Owner = ""
	s.putAndRespond(c, dev)
}

func assignments(doc map[string]any) []any {
	list, _ := doc["assignedCustomers"].([]any)
	return list
}

func (s *Server) assignDashboard(c *gin.Context) {
	cust, ok := s.customerParam(c)
	if !ok {
		return
	}
	dash, ok := s.lookup(c, "dashboardId", kindDashboard)
	if !ok {
		return
	}
	list := assignments(dash.Doc)
	if !slices.ContainsFunc(list, func(a any) bool { return assignedTo(a, cust.ID) }) {
		list = append(slices.Clone(list), map[string]any{
			"customerId": ref(kindCustomer, cust.ID),
			"title":      cust.Name,
			"public":     isPublic(cust),
		})
	}
	dash.Doc["assignedCustomers"] = list
	s.putAndRespond(c, dash)
}

func (s *Server) unassignDashboard(c *gin.Context) {
	cust, ok := s.customerParam(c)
	if !ok {
		return
	}
	dash, ok := s.lookup(c, "dashboardId", kindDashboard)
	if !ok {
		return
	}
	dash.Doc["assignedCustomers"] = slices.DeleteFunc(slices.Clone(assignments(dash.Doc)), func(a any) bool {
		return assignedTo(a, cust.ID)
	})
	s.putAndRespond(c, dash)
}

func assignedTo(a any, customerID string) bool {
	m, _ := a.(map[string]any)
	return strings.EqualFold(refID(m["customerId"]), customerID)
}

func (s *Server) putAndRespond(c *gin.Context, rec *record) {
	if err := s.store.put(rec); err != nil {
		fail(c, http.StatusInternalServerError, codeGeneral, err.Error())
		return
	}
	c.JSON(http.StatusOK, rec.Doc)
}

func dashboardHeader(r *record) map[string]any {
	doc := maps.Clone(r.Doc)
	delete(doc, "configuration")
	return doc
}

func (s *Server) dashboardInfo(c *gin.Context) {
	rec, ok := s.lookup(c, "id", kindDashboard)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dashboardHeader(rec))
}

func (s *Server) listDashboards(c *gin.Context) {
	respondPage(c, s.store.list(kindDashboard, nil), dashboardHeader)
}

var profileInfoFields = []string{"id", "tenantId", "name", "image", "defaultDashboardId", "type", "transportType"}

func profileInfo(r *record) map[string]any {
	info := make(map[string]any, len(profileInfoFields))
	for _, k := range profileInfoFields {
		if v, ok := r.Doc[k]; ok {
			info[k] = v
		}
	}
	return info
}

func (s *Server) listProfiles(infos bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		view := docView
		if infos {
			view = profileInfo
		}
		respondPage(c, s.store.list(kindDeviceProfile, nil), view)
	}
}

func (s *Server) getProfile(info bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, ok := s.lookup(c, "id", kindDeviceProfile)
		if !ok {
			return
		}
		if info {
			c.JSON(http.StatusOK, profileInfo(rec))
			return
		}
		c.JSON(http.StatusOK, rec.Doc)
	}
}

// telemetryTarget resolves the entity of a /api/plugins/telemetry route.
func (s *Server) telemetryTarget(c *gin.Context) (*record, bool) {
	return s.lookup(c, "entityId", strings.ToUpper(c.Param("entityType")))
}

func scopeParam(c *gin.Context) (string, bool) {
	scope := c.Param("scope")
	if !slices.Contains(scopes, scope) {
		fail(c, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("Invalid attribute scope: %s", scope))
		return "", false
	}
	return scope, true
}

func keysParam(c *gin.Context) ([]string, bool) {
	var keys []string
	for k := range strings.SplitSeq(c.Query("keys"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		fail(c, http.StatusBadRequest, codeBadRequest, "Required request parameter 'keys' is not present")
		return nil, false
	}
	return keys, true
}

func (s *Server) getAttributes(c *gin.Context) {
	rec, ok := s.telemetryTarget(c)
	if !ok {
		return
	}
	scope, ok := scopeParam(c)
	if !ok {
		return
	}
	out := []gin.H{}
	for _, a := range s.store.attributes(rec.ID, scope) {
		out = append(out, gin.H{"key": a.Key, "value": a.Value, "lastUpdateTs": a.LastUpdateTs})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) postAttributes(c *gin.Context) {
	rec, ok := s.telemetryTarget(c)
	if !ok {
		return
	}
	scope, ok := scopeParam(c)
	if !ok {
		return
	}
	var values map[string]any
	if err := c.ShouldBindJSON(&values); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "Invalid attributes body")
		return
	}
	if err := s.store.setAttributes(rec.ID, scope, values, s.nowMillis()); err != nil {
		fail(c, http.StatusInternalServerError, codeGeneral, err.Error())
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) deleteAttributes(c *gin.Context) {
	rec, ok := s.telemetryTarget(c)
	if !ok {
		return
	}
	scope, ok := scopeParam(c)
	if !ok {
		return
	}
	keys, ok := keysParam(c)
	if !ok {
		return
	}
	if err := s.store.deleteAttributes(rec.ID, scope, keys); err != nil {
		fail(c, http.StatusInternalServerError, codeGeneral, err.Error())
		return
	}
	c.Status(http.StatusOK)
}

func int64Query(c *gin.Context, name string, def int64) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("Invalid %s: %s", name, raw))
		return 0, false
	}
	return v, true
}

func (s *Server) getTimeseries(c *gin.Context) {
	rec, ok := s.telemetryTarget(c)
	if !ok {
		return
	}
	keys, ok := keysParam(c)
	if !ok {
		return
	}
	strict := c.Query("useStrictDataTypes") == "true"
	render := func(smp sample) gin.H {
		v := smp.Value
		if !strict && v != nil {
			v = fmt.Sprint(v)
		}
		return gin.H{"ts": smp.TS, "value": v}
	}

	out := map[string][]gin.H{}
	if c.Query("startTs") == "" {
		// Latest values.
		for _, k := range keys {
			if samples := s.store.samples(rec.ID, k); len(samples) > 0 {
				out[k] = []gin.H{render(samples[0])}
			}
		}
		c.JSON(http.StatusOK, out)
		return
	}

	start, ok := int64Query(c, "startTs", 0)
	if !ok {
		return
	}
	end, ok := int64Query(c, "endTs", s.nowMillis())
	if !ok {
		return
	}
	limit, ok := int64Query(c, "limit", 100)
	if !ok {
		return
	}
	ascending := strings.EqualFold(c.Query("orderBy"), "ASC")
	for _, k := range keys {
		var picked []gin.H
		samples := s.store.samples(rec.ID, k)
		if ascending {
			slices.Reverse(samples)
		}
		for _, smp := range samples {
			if smp.TS < start || smp.TS > end {
				continue
			}
			if int64(len(picked)) >= limit {
				break
			}
			picked = append(picked, render(smp))
		}
		if len(picked) > 0 {
			out[k] = picked
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) timeseriesKeys(c *gin.Context) {
	rec, ok := s.telemetryTarget(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.store.sampleKeys(rec.ID))
}

func (s *Server) deleteTimeseries(c *gin.Context) {
	rec, ok := s.telemetryTarget(c)
	if !ok {
		return
	}
	keys, ok := keysParam(c)
	if !ok {
		return
	}
	start, end := int64(math.MinInt64), int64(math.MaxInt64)
	if c.Query("deleteAllDataForKeys") != "true" {
		if c.Query("startTs") == "" || c.Query("endTs") == "" {
			fail(c, http.StatusBadRequest, codeBadRequest, "startTs and endTs are required")
			return
		}
		if start, ok = int64Query(c, "startTs", 0); !ok {
			return
		}
		if end, ok = int64Query(c, "endTs", 0); !ok {
			return
		}
	}
	var lostLatest []string
	if c.Query("rewriteLatestIfDeleted") != "true" {
		for _, k := range keys {
			if samples := s.store.samples(rec.ID, k); len(samples) > 0 && samples[0].TS >= start && samples[0].TS <= end {
				lostLatest = append(lostLatest, k)
			}
		}
	}
	if err := s.store.deleteSamples(rec.ID, keys, start, end); err != nil {
		fail(c, http.StatusInternalServerError, codeGeneral, err.Error())
		return
	}
	// Without a rewrite the latest value of a key is cleared, not recomputed.
	if len(lostLatest) > 0 && c.Query("deleteAllDataForKeys") != "true" {
		cleared := make(map[string]any, len(lostLatest))
		for _, k := range lostLatest {
			cleared[k] = nil
		}
		if err := s.store.addSamples(rec.ID, s.nowMillis(), cleared); err != nil {
			fail(c, http.StatusInternalServerError, codeGeneral, err.Error())
			return
		}
	}
	c.Status(http.StatusOK)
}

// deviceByToken resolves the access token of a device API route.
func (s *Server) deviceByToken(c *gin.Context) (*record, bool) {
	dev := s.store.byToken(c.Param("token"))
	if dev == nil {
		fail(c, http.StatusUnauthorized, codeAuthentication, "Invalid device access token")
		return nil, false
	}
	return dev, true
}

func (s *Server) deviceTelemetry(c *gin.Context) {
	dev, ok := s.deviceByToken(c)
	if !ok {
		return
	}
	var body any
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "Invalid telemetry body")
		return
	}
	records, ok := body.([]any)
	if !ok {
		records = []any{body}
	}
	for _, r := range records {
		m, ok := r.(map[string]any)
		if !ok {
			fail(c, http.StatusBadRequest, codeBadRequest, "Telemetry must be an object or a list of objects")
			return
		}
		ts, values := s.nowMillis(), m
		if rawTS, hasTS := m["ts"].(float64); hasTS {
			if v, hasValues := m["values"].(map[string]any); hasValues {
				ts, values = int64(rawTS), v
			}
		}
		if err := s.store.addSamples(dev.ID, ts, values); err != nil {
			fail(c, http.StatusInternalServerError, codeGeneral, err.Error())
			return
		}
	}
	if !dev.Active {
		dev.Active = true
		if err := s.store.put(dev); err != nil {
			fail(c, http.StatusInternalServerError, codeGeneral, err.Error())
			return
		}
	}
	c.Status(http.StatusOK)
}

func (s *Server) deviceAttributes(c *gin.Context) {
	dev, ok := s.deviceByToken(c)
	if !ok {
		return
	}
	var values map[string]any
	if err := c.ShouldBindJSON(&values); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "Invalid attributes body")
		return
	}
	if err := s.store.setAttributes(dev.ID, "CLIENT_SCOPE", values, s.nowMillis()); err != nil {
		fail(c, http.StatusInternalServerError, codeGeneral, err.Error())
		return
	}
	c.Status(http.StatusOK)
}
