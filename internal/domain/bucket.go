package domain

import (
	"encoding/json"
	"fmt"
)

// Bucket is a days-past-due delinquency bucket. The zero value is
// BucketCurrent and the constants are ordered from best to worst.
type Bucket int

const (
	BucketCurrent Bucket = iota
	Bucket1To30
	Bucket31To60
	Bucket61To90
	Bucket91To180
	Bucket180Plus
)

// NumBuckets is the size of the closed bucket enumeration.
const NumBuckets = 6

var bucketLabels = [NumBuckets]string{"Current", "1-30", "31-60", "61-90", "91-180", "180+"}

// Buckets returns every bucket in ascending delinquency order.
func Buckets() []Bucket {
	return []Bucket{BucketCurrent, Bucket1To30, Bucket31To60, Bucket61To90, Bucket91To180, Bucket180Plus}
}

// String returns the display label, e.g. "31-60".
func (b Bucket) String() string {
	if b < 0 || int(b) >= NumBuckets {
		return fmt.Sprintf("Bucket(%d)", int(b))
	}
	return bucketLabels[b]
}

// Valid reports whether b is one of the six defined buckets.
func (b Bucket) Valid() bool {
	return b >= BucketCurrent && b <= Bucket180Plus
}

// ParseBucket maps a display label back to its Bucket.
func ParseBucket(label string) (Bucket, error) {
	for i, l := range bucketLabels {
		if l == label {
			return Bucket(i), nil
		}
	}
	return 0, fmt.Errorf("unknown dpd bucket %q: %w", label, ErrInvalidInput)
}

// MarshalText implements encoding.TextMarshaler so buckets can be used as
// JSON object keys.
func (b Bucket) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("marshal bucket %d: %w", int(b), ErrInvalidInput)
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Bucket) UnmarshalText(text []byte) error {
	parsed, err := ParseBucket(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Distribution holds one balance amount per bucket. Because it is a fixed
// array every bucket is always present, including empty ones.
type Distribution [NumBuckets]float64

// Total returns the sum across all buckets.
func (d Distribution) Total() float64 {
	var t float64
	for _, v := range d {
		t += v
	}
	return t
}

// Get returns the balance in bucket b.
func (d Distribution) Get(b Bucket) float64 {
	return d[b]
}

// MarshalJSON renders the distribution as an object keyed by bucket label
// so chart consumers receive every key.
func (d Distribution) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, NumBuckets)
	for i, v := range d {
		m[bucketLabels[i]] = v
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts the object form produced by MarshalJSON. Missing
// labels decode as zero.
func (d *Distribution) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out Distribution
	for label, v := range m {
		b, err := ParseBucket(label)
		if err != nil {
			return err
		}
		out[b] = v
	}
	*d = out
	return nil
}
