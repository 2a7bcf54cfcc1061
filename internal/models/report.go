package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Report columns, in the order the dashboard renders them.
const (
	ReportStatus      = "status"
	ReportCategory    = "category"
	ReportSeverity    = "severity"
	ReportAssignee    = "assignee"
	ReportCloseReason = "close_reason"
)

// GroupCount is one (value, count) pair of a grouping query. It marshals
// as {"<field>": value, "count": n} so each group keys its rows by the
// column it was grouped on.
type GroupCount struct {
	Field string
	Value *string
	Count int64
}

func (g GroupCount) MarshalJSON() ([]byte, error) {
	field, err := json.Marshal(g.Field)
	if err != nil {
		return nil, err
	}
	value, err := json.Marshal(g.Value)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{%s:%s,"count":%d}`, field, value, g.Count)
	return buf.Bytes(), nil
}

func (g *GroupCount) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, msg := range raw {
		if key == "count" {
			if err := json.Unmarshal(msg, &g.Count); err != nil {
				return fmt.Errorf("decode count: %w", err)
			}
			continue
		}
		g.Field = key
		if err := json.Unmarshal(msg, &g.Value); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
	}
	return nil
}

// Reports aggregates issue counts for dashboards.
type Reports struct {
	Status      []GroupCount `json:"status"`
	Category    []GroupCount `json:"category"`
	Severity    []GroupCount `json:"severity"`
	Assignee    []GroupCount `json:"assignee"`
	CloseReason []GroupCount `json:"close_reason"`
}
