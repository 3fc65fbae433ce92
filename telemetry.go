package thingsboard

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Aggregation is the server-side aggregation applied to a telemetry query.
type Aggregation string

// Aggregation functions.
const (
	AggMin   Aggregation = "MIN"
	AggMax   Aggregation = "MAX"
	AggAvg   Aggregation = "AVG"
	AggSum   Aggregation = "SUM"
	AggCount Aggregation = "COUNT"
	AggNone  Aggregation = "NONE"
)

// DefaultTelemetryLimit caps the samples returned per key when no limit is given.
const DefaultTelemetryLimit = 100

// Sample is one time-series point.
type Sample struct {
	TS    int64 `json:"ts"`
	Value any   `json:"value"`
}

// Time returns the sample timestamp.
func (s Sample) Time() time.Time {
	return time.UnixMilli(s.TS)
}

// TelemetrySeries maps each telemetry key to its samples, newest first as
// returned by the server.
type TelemetrySeries map[string][]Sample

// Latest returns the newest sample for key.
func (ts TelemetrySeries) Latest(key string) (Sample, bool) {
	samples := ts[key]
	if len(samples) == 0 {
		return Sample{}, false
	}
	latest := samples[0]
	for _, s := range samples[1:] {
		if s.TS > latest.TS {
			latest = s
		}
	}
	return latest, true
}

// TelemetryOptions controls a historical telemetry query.
type TelemetryOptions struct {
	// Start and End accept time.Time, Timestamp or epoch milliseconds.
	// Start defaults to the epoch and End to now.
	Start any
	End   any
	// Interval is the aggregation bucket; zero omits it.
	Interval time.Duration
	// Limit defaults to DefaultTelemetryLimit.
	Limit int
	// Agg defaults to AggNone.
	Agg Aggregation
	// OrderBy is "ASC" or "DESC"; empty leaves the server default.
	OrderBy string
}

func (o *TelemetryOptions) query(keys []string, now time.Time) (url.Values, error) {
	opts := TelemetryOptions{}
	if o != nil {
		opts = *o
	}

	start, end := int64(0), now.UnixMilli()
	if opts.Start != nil {
		ms, err := epochMillis(opts.Start)
		if err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
		start = ms
	}
	if opts.End != nil {
		ms, err := epochMillis(opts.End)
		if err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		end = ms
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultTelemetryLimit
	}
	if opts.Agg == "" {
		opts.Agg = AggNone
	}

	q := url.Values{
		"keys":               {joinKeys(keys)},
		"startTs":            {strconv.FormatInt(start, 10)},
		"endTs":              {strconv.FormatInt(end, 10)},
		"limit":              {strconv.Itoa(opts.Limit)},
		"agg":                {string(opts.Agg)},
		"useStrictDataTypes": {"true"},
	}
	if opts.Interval > 0 {
		q.Set("interval", strconv.FormatInt(opts.Interval.Milliseconds(), 10))
	}
	if opts.OrderBy != "" {
		q.Set("orderBy", opts.OrderBy)
	}
	return q, nil
}

func (d *Device) timeseriesPath() string {
	return fmt.Sprintf("/api/plugins/telemetry/%s/%s", EntityTypeDevice, d.ID.ID)
}

func (d *Device) readSeries(ctx context.Context, q url.Values) (TelemetrySeries, error) {
	c, err := d.client()
	if err != nil {
		return nil, err
	}
	data, err := c.get(ctx, withQuery(d.timeseriesPath()+"/values/timeseries", q))
	if err != nil {
		return nil, err
	}
	series, err := unmarshalResponse[TelemetrySeries](data, "telemetry")
	if err != nil {
		return nil, err
	}
	if series == nil {
		series = TelemetrySeries{}
	}
	return series, nil
}

// GetTelemetry returns the samples for keys within the options' time range.
func (d *Device) GetTelemetry(ctx context.Context, keys []string, opts *TelemetryOptions) (TelemetrySeries, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyKeys
	}
	q, err := opts.query(keys, time.Now())
	if err != nil {
		return nil, err
	}
	return d.readSeries(ctx, q)
}

// GetLatestTelemetry returns the newest sample of each key. A key that has
// never been written yields a single sample with a nil value.
func (d *Device) GetLatestTelemetry(ctx context.Context, keys ...string) (TelemetrySeries, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyKeys
	}
	series, err := d.readSeries(ctx, url.Values{
		"keys":               {joinKeys(keys)},
		"useStrictDataTypes": {"true"},
	})
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	for _, k := range keys {
		if len(series[k]) == 0 {
			series[k] = []Sample{{TS: now, Value: nil}}
		}
	}
	return series, nil
}

// GetRecentTelemetry returns up to limit samples per key from the last window.
func (d *Device) GetRecentTelemetry(ctx context.Context, keys []string, window time.Duration, limit int) (TelemetrySeries, error) {
	now := time.Now()
	return d.GetTelemetry(ctx, keys, &TelemetryOptions{
		Start: now.Add(-window),
		End:   now,
		Limit: limit,
	})
}

// GetTelemetryKeys lists the time-series keys the device has reported.
func (d *Device) GetTelemetryKeys(ctx context.Context) ([]string, error) {
	c, err := d.client()
	if err != nil {
		return nil, err
	}
	data, err := c.get(ctx, d.timeseriesPath()+"/keys/timeseries")
	if err != nil {
		return nil, err
	}
	return unmarshalResponse[[]string](data, "telemetry keys")
}

// TelemetryRecord is the body the device API accepts for a timestamped write.
type TelemetryRecord struct {
	TS     int64          `json:"ts"`
	Values map[string]any `json:"values"`
}

// NewTelemetryRecord stamps values with ts (see PrepareTS). A nil ts yields
// the bare values, which the server stamps on arrival.
func NewTelemetryRecord(values map[string]any, ts any) (any, error) {
	if ts == nil {
		return values, nil
	}
	ms, err := epochMillis(ts)
	if err != nil {
		return nil, err
	}
	return TelemetryRecord{TS: ms, Values: values}, nil
}

// SendTelemetry writes values through the device API, authenticating with
// the device's access token. ts may be nil, a time or epoch milliseconds.
// Sending nothing is a no-op.
func (d *Device) SendTelemetry(ctx context.Context, values map[string]any, ts any) error {
	if len(values) == 0 {
		return nil
	}
	body, err := NewTelemetryRecord(values, ts)
	if err != nil {
		return err
	}
	token, err := d.Token(ctx)
	if err != nil {
		return err
	}
	c, err := d.client()
	if err != nil {
		return err
	}
	_, err = c.post(ctx, fmt.Sprintf("/api/v1/%s/telemetry", url.PathEscape(token)), body)
	return err
}

// DeleteTelemetry removes samples of keys between start and end. With
// rewriteLatest the server recomputes each key's latest value from what
// remains; without it the latest value is cleared. The call reports true
// whenever the server accepted it, whether or not anything was deleted.
func (d *Device) DeleteTelemetry(ctx context.Context, keys []string, start, end any, rewriteLatest bool) (bool, error) {
	if len(keys) == 0 {
		return false, ErrEmptyKeys
	}
	startMs, err := epochMillis(start)
	if err != nil {
		return false, fmt.Errorf("start: %w", err)
	}
	endMs, err := epochMillis(end)
	if err != nil {
		return false, fmt.Errorf("end: %w", err)
	}
	return d.deleteSeries(ctx, url.Values{
		"keys":                   {joinKeys(keys)},
		"startTs":                {strconv.FormatInt(startMs, 10)},
		"endTs":                  {strconv.FormatInt(endMs, 10)},
		"rewriteLatestIfDeleted": {strconv.FormatBool(rewriteLatest)},
		"deleteAllDataForKeys":   {"false"},
	})
}

// DeleteAllTelemetry removes every sample of keys.
func (d *Device) DeleteAllTelemetry(ctx context.Context, keys ...string) (bool, error) {
	if len(keys) == 0 {
		return false, ErrEmptyKeys
	}
	return d.deleteSeries(ctx, url.Values{
		"keys":                 {joinKeys(keys)},
		"deleteAllDataForKeys": {"true"},
	})
}

func (d *Device) deleteSeries(ctx context.Context, q url.Values) (bool, error) {
	c, err := d.client()
	if err != nil {
		return false, err
	}
	return c.delete(ctx, withQuery(d.timeseriesPath()+"/timeseries/delete", q))
}

