package mock

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/atomic"
	"gopkg.in/yaml.v3"
)

// Times is the remaining-match budget of an expectation. The counter is
// atomic so the store can decrement it without taking the store-wide lock.
type Times struct {
	remaining *atomic.Int64
	unlimited bool
}

// Unlimited returns a Times that never exhausts.
func Unlimited() *Times {
	return &Times{remaining: atomic.NewInt64(0), unlimited: true}
}

// Once returns a Times allowing exactly one match.
func Once() *Times {
	return Exactly(1)
}

// Exactly returns a Times allowing n matches. Negative n is treated as zero.
func Exactly(n int) *Times {
	if n < 0 {
		n = 0
	}
	return &Times{remaining: atomic.NewInt64(int64(n))}
}

// IsUnlimited reports whether the budget never exhausts.
func (t *Times) IsUnlimited() bool {
	return t == nil || t.unlimited
}

// Remaining returns the remaining match count, 0 for unlimited budgets.
func (t *Times) Remaining() int {
	if t.IsUnlimited() {
		return 0
	}
	return int(t.remaining.Load())
}

// Spent reports whether a limited budget has reached zero.
func (t *Times) Spent() bool {
	return !t.IsUnlimited() && t.remaining.Load() <= 0
}

// Decrement consumes one match from a limited budget. It never goes below
// zero and reports whether a decrement happened.
func (t *Times) Decrement() bool {
	if t.IsUnlimited() {
		return false
	}
	for {
		current := t.remaining.Load()
		if current <= 0 {
			return false
		}
		if t.remaining.CompareAndSwap(current, current-1) {
			return true
		}
	}
}

type timesJSON struct {
	RemainingTimes int  `json:"remainingTimes,omitempty"`
	Unlimited      bool `json:"unlimited,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (t *Times) MarshalJSON() ([]byte, error) {
	return json.Marshal(timesJSON{RemainingTimes: t.Remaining(), Unlimited: t.IsUnlimited()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Times) UnmarshalJSON(data []byte) error {
	var raw timesJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Unlimited {
		*t = *Unlimited()
		return nil
	}
	if raw.RemainingTimes < 0 {
		return fmt.Errorf("remainingTimes must not be negative, got %d", raw.RemainingTimes)
	}
	*t = *Exactly(raw.RemainingTimes)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler for initializer files.
func (t *Times) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		RemainingTimes int  `yaml:"remainingTimes"`
		Unlimited      bool `yaml:"unlimited"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Unlimited {
		*t = *Unlimited()
		return nil
	}
	if raw.RemainingTimes < 0 {
		return fmt.Errorf("remainingTimes must not be negative, got %d", raw.RemainingTimes)
	}
	*t = *Exactly(raw.RemainingTimes)
	return nil
}

func (t *Times) String() string {
	if t.IsUnlimited() {
		return "unlimited"
	}
	return fmt.Sprintf("%d remaining", t.Remaining())
}

// TimeToLive is the wall-clock expiry window of an expectation. The end date
// is fixed at construction so the check is a plain instant comparison.
type TimeToLive struct {
	ttl       time.Duration
	endDate   time.Time
	unlimited bool
}

// TTLUnlimited returns a TimeToLive that never expires.
func TTLUnlimited() *TimeToLive {
	return &TimeToLive{unlimited: true}
}

// TTLExactly returns a TimeToLive expiring d after now.
func TTLExactly(d time.Duration) *TimeToLive {
	return &TimeToLive{ttl: d, endDate: time.Now().Add(d)}
}

// IsUnlimited reports whether the window never closes.
func (t *TimeToLive) IsUnlimited() bool {
	return t == nil || t.unlimited
}

// EndDate returns the absolute expiry instant; the zero time for unlimited.
func (t *TimeToLive) EndDate() time.Time {
	if t.IsUnlimited() {
		return time.Time{}
	}
	return t.endDate
}

// Expired reports whether now is strictly after the end date.
func (t *TimeToLive) Expired(now time.Time) bool {
	return !t.IsUnlimited() && now.After(t.endDate)
}

type ttlJSON struct {
	TimeToLiveMillis int64 `json:"timeToLiveMillis,omitempty"`
	Unlimited        bool  `json:"unlimited,omitempty"`
	EndDate          int64 `json:"endDate,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (t *TimeToLive) MarshalJSON() ([]byte, error) {
	out := ttlJSON{Unlimited: t.IsUnlimited()}
	if !t.IsUnlimited() {
		out.TimeToLiveMillis = t.ttl.Milliseconds()
		out.EndDate = t.endDate.UnixMilli()
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. The end date is recomputed from
// now so a replayed definition gets a fresh window.
func (t *TimeToLive) UnmarshalJSON(data []byte) error {
	var raw ttlJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Unlimited {
		*t = *TTLUnlimited()
		return nil
	}
	*t = *TTLExactly(time.Duration(raw.TimeToLiveMillis) * time.Millisecond)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler. As with JSON, the end date is
// recomputed from now.
func (t *TimeToLive) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		TimeToLiveMillis int64 `yaml:"timeToLiveMillis"`
		Unlimited        bool  `yaml:"unlimited"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Unlimited {
		*t = *TTLUnlimited()
		return nil
	}
	*t = *TTLExactly(time.Duration(raw.TimeToLiveMillis) * time.Millisecond)
	return nil
}

func (t *TimeToLive) String() string {
	if t.IsUnlimited() {
		return "unlimited"
	}
	return fmt.Sprintf("until %s", t.endDate.Format(time.RFC3339Nano))
}
