package thingsboard

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// TelemetryWrite is one device's share of a batched telemetry write.
type TelemetryWrite struct {
	Device *Device        // Target device, bound to a client
	Values map[string]any // Key/value pairs to record
	TS     any            // Optional timestamp; nil lets the server stamp it
}

// BatchResult contains the result of one device's write.
type BatchResult struct {
	DeviceID Id    // The device
	Error    error // Error if the write failed, nil on success
}

// BatchTelemetryResult contains one device's latest telemetry.
type BatchTelemetryResult struct {
	DeviceID  Id              // The device
	Telemetry TelemetrySeries // Latest samples per key (nil on error)
	Error     error           // Error if the read failed
}

// BatchConfig configures batch execution behavior.
type BatchConfig struct {
	// MaxConcurrent is the maximum number of concurrent API calls.
	// Defaults to 10 if not specified.
	MaxConcurrent int

	// StopOnError determines whether to skip the remaining devices once a
	// call fails. Default is false (continue processing all).
	StopOnError bool
}

// DefaultBatchConfig returns sensible defaults for batch operations.
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		MaxConcurrent: 10,
		StopOnError:   false,
	}
}

func (cfg *BatchConfig) limit() int {
	if cfg == nil || cfg.MaxConcurrent <= 0 {
		return 10
	}
	return cfg.MaxConcurrent
}

// runBatch calls fn for every index with at most cfg.MaxConcurrent calls in
// flight. Indexes skipped after a stop or cancellation get skip's error.
func runBatch(ctx context.Context, n int, cfg *BatchConfig, fn func(ctx context.Context, i int) error, skip func(i int, err error)) {
	var stopped atomic.Bool
	g := new(errgroup.Group)
	g.SetLimit(cfg.limit())

	for i := range n {
		if err := ctx.Err(); err != nil {
			skip(i, err)
			continue
		}
		g.Go(func() error {
			if stopped.Load() {
				skip(i, context.Canceled)
				return nil
			}
			if err := ctx.Err(); err != nil {
				skip(i, err)
				return nil
			}
			if err := fn(ctx, i); err != nil && cfg != nil && cfg.StopOnError {
				stopped.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// GetLatestTelemetryBatch reads the latest values of keys from several
// devices concurrently. Results are in input order.
//
// Example:
//
//	results := client.GetLatestTelemetryBatch(ctx, devices, []string{"temperature"}, nil)
//	for _, r := range results {
//	    if r.Error == nil {
//	        latest, _ := r.Telemetry.Latest("temperature")
//	        fmt.Printf("%s: %v\n", r.DeviceID, latest.Value)
//	    }
//	}
func (c *Client) GetLatestTelemetryBatch(ctx context.Context, devices []*Device, keys []string, cfg *BatchConfig) []BatchTelemetryResult {
	if len(devices) == 0 {
		return nil
	}

	results := make([]BatchTelemetryResult, len(devices))
	runBatch(ctx, len(devices), cfg,
		func(ctx context.Context, i int) error {
			d := devices[i]
			if d == nil {
				results[i] = BatchTelemetryResult{Error: ErrEmptyID}
				return results[i].Error
			}
			series, err := d.GetLatestTelemetry(ctx, keys...)
			results[i] = BatchTelemetryResult{DeviceID: d.ID, Telemetry: series, Error: err}
			return err
		},
		func(i int, err error) {
			var id Id
			if devices[i] != nil {
				id = devices[i].ID
			}
			results[i] = BatchTelemetryResult{DeviceID: id, Error: err}
		},
	)
	return results
}

// SendTelemetryBatch writes telemetry for several devices concurrently.
// Each device's access token is fetched on first use.
func (c *Client) SendTelemetryBatch(ctx context.Context, writes []TelemetryWrite, cfg *BatchConfig) []BatchResult {
	if len(writes) == 0 {
		return nil
	}

	results := make([]BatchResult, len(writes))
	runBatch(ctx, len(writes), cfg,
		func(ctx context.Context, i int) error {
			w := writes[i]
			if w.Device == nil {
				results[i] = BatchResult{Error: ErrEmptyID}
				return results[i].Error
			}
			err := w.Device.SendTelemetry(ctx, w.Values, w.TS)
			results[i] = BatchResult{DeviceID: w.Device.ID, Error: err}
			return err
		},
		func(i int, err error) {
			var id Id
			if writes[i].Device != nil {
				id = writes[i].Device.ID
			}
			results[i] = BatchResult{DeviceID: id, Error: err}
		},
	)
	return results
}
