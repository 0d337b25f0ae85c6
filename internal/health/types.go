package health

import (
	"bytes"
	"encoding/json"
	"time"
)

// Status is the overall verdict of a health evaluation.
type Status string

// Overall statuses, ordered by severity.
const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
	StatusError    Status = "error"
)

// CheckStatus is the outcome of a single check.
type CheckStatus string

// Per-check statuses.
const (
	CheckOK       CheckStatus = "ok"
	CheckWarning  CheckStatus = "warning"
	CheckCritical CheckStatus = "critical"
	CheckError    CheckStatus = "error"
)

// Check is a single named measurement compared against its threshold.
type Check struct {
	Name      string      `json:"-"`
	Value     float64     `json:"value"`
	Threshold float64     `json:"threshold"`
	Status    CheckStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
}

// CheckList preserves evaluation order while marshaling to a JSON object
// keyed by check name, the shape external probes consume.
type CheckList []Check

// MarshalJSON implements json.Marshaler.
func (cl CheckList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range cl {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. Order is not recoverable from
// JSON objects; entries come back in decode order.
func (cl *CheckList) UnmarshalJSON(data []byte) error {
	var m map[string]Check
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*cl = (*cl)[:0]
	for name, c := range m {
		c.Name = name
		*cl = append(*cl, c)
	}
	return nil
}

// Result is the outcome of one health evaluation cycle.
type Result struct {
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	Checks    CheckList `json:"checks"`
	Issues    []string  `json:"issues"`
}

// severity orders statuses for aggregation. A check that could not be
// measured degrades the verdict but is not critical on its own.
func severity(s CheckStatus) int {
	switch s {
	case CheckCritical:
		return 2
	case CheckWarning, CheckError:
		return 1
	default:
		return 0
	}
}
