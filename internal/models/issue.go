package models

// Well-known issue statuses. Other values are stored as given.
const (
	StatusOpen     = "Open"
	StatusReopened = "Reopened"
	StatusClosed   = "Closed"
)

// Issue is a tracked problem or ticket. Text fields are nullable in the
// issues table, so they are pointers here and marshal as JSON null.
type Issue struct {
	ID          int64      `json:"id"`
	Subject     *string    `json:"subject"`
	Category    *string    `json:"category"`
	Status      *string    `json:"status"`
	Severity    *string    `json:"severity"`
	Reporter    *string    `json:"reporter"`
	Assignee    *string    `json:"assignee"`
	Description *string    `json:"description"`
	CloseReason *string    `json:"close_reason"`
	CreatedDate *CivilTime `json:"created_date"`
	LastUpdate  *CivilTime `json:"last_update"`
}

// IssueUpdate carries the mutable column set rewritten by an update.
// Subject, reporter and created_date are never part of it.
type IssueUpdate struct {
	Status      *string `json:"status"`
	Category    *string `json:"category"`
	Severity    *string `json:"severity"`
	Assignee    *string `json:"assignee"`
	Description *string `json:"description"`
	CloseReason *string `json:"close_reason"`
}

// Normalize applies the close-reason and description rules in place and
// returns the receiver. A close reason survives only when the status is
// Closed; description falls back to the empty string.
func (u *IssueUpdate) Normalize() *IssueUpdate {
	status := StringValue(u.Status)
	if status == StatusReopened {
		u.CloseReason = nil
	}
	if status != StatusClosed {
		u.CloseReason = nil
	}

	if u.Description == nil {
		u.Description = String("")
	}
	return u
}

// String returns a pointer to s.
func String(s string) *string { return &s }

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
