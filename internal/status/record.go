package status

import (
	"encoding/json"
	"time"
)

// Status is the watcher's last-known classification of the product.
type Status string

const (
	StatusMonitoring Status = "monitoring"
	StatusComingSoon Status = "coming_soon"
	StatusAvailable  Status = "available"
	StatusOutOfStock Status = "out_of_stock"
	StatusUnknown    Status = "unknown"
	StatusError      Status = "error"
	StatusStopped    Status = "stopped"
	StatusPurchased  Status = "purchased"
)

var known = map[Status]bool{
	StatusMonitoring: true,
	StatusComingSoon: true,
	StatusAvailable:  true,
	StatusOutOfStock: true,
	StatusUnknown:    true,
	StatusError:      true,
	StatusStopped:    true,
	StatusPurchased:  true,
}

// UnmarshalJSON maps any unrecognized status string to StatusUnknown so a
// reader never fails on a record written by a newer watcher.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	st := Status(raw)
	if !known[st] {
		st = StatusUnknown
	}
	*s = st
	return nil
}

// Terminal reports whether the watcher stops after writing this status.
func (s Status) Terminal() bool {
	return s == StatusPurchased || s == StatusStopped
}

// Record is the serialized snapshot of the watcher's last-known product state.
// It is overwritten in full on every poll and consumed by the buyer process.
type Record struct {
	ProductID    string         `json:"product_id"`
	ProductName  string         `json:"product_name"`
	ProductURL   string         `json:"product_url"`
	Location     string         `json:"location,omitempty"`
	Status       Status         `json:"status"`
	Timestamp    time.Time      `json:"timestamp"`
	QueryCount   int            `json:"query_count"`
	Details      map[string]any `json:"details"`
	ActionNeeded bool           `json:"action_needed"`
}

// NewRecord builds a record with the timestamp set and the action_needed
// invariant applied (true exactly when the product is available).
func NewRecord(productID, productName, productURL string, st Status, queryCount int, details map[string]any) *Record {
	if details == nil {
		details = map[string]any{}
	}
	return &Record{
		ProductID:    productID,
		ProductName:  productName,
		ProductURL:   productURL,
		Status:       st,
		Timestamp:    time.Now(),
		QueryCount:   queryCount,
		Details:      details,
		ActionNeeded: st == StatusAvailable,
	}
}
