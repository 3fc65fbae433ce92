package thingsboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Timestamp is a point in time that travels as epoch milliseconds.
type Timestamp struct {
	time.Time
}

// TimestampFromMillis converts epoch milliseconds.
func TimestampFromMillis(ms int64) Timestamp {
	return Timestamp{time.UnixMilli(ms)}
}

// Millis returns the epoch milliseconds, or 0 for the zero Timestamp.
func (t Timestamp) Millis() int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, t.UnixMilli(), 10), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBadTimestamp, truncatePreview(data))
	}
	*t = TimestampFromMillis(int64(f))
	return nil
}

// Timelike is the set of values accepted wherever the API wants an epoch
// millisecond timestamp.
type Timelike interface {
	~int | ~int32 | ~int64 | ~float64 | time.Time | Timestamp
}

// PrepareTS converts ts to epoch milliseconds. Integers are assumed to be
// milliseconds already and pass through unchanged, so PrepareTS is
// idempotent. Times are truncated to the millisecond.
func PrepareTS[T Timelike](ts T) int64 {
	ms, _ := epochMillis(ts)
	return ms
}

// epochMillis is the untyped form of PrepareTS used for option structs.
func epochMillis(v any) (int64, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UnixMilli(), nil
	case *time.Time:
		if x == nil {
			return 0, ErrBadTimestamp
		}
		return x.UnixMilli(), nil
	case Timestamp:
		return x.UnixMilli(), nil
	case *Timestamp:
		if x == nil {
			return 0, ErrBadTimestamp
		}
		return x.UnixMilli(), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrBadTimestamp, err)
		}
		return int64(f), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, ErrBadTimestamp
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, ErrBadTimestamp
		}
		return int64(f), nil
	}
	return 0, fmt.Errorf("%w: %T", ErrBadTimestamp, v)
}
