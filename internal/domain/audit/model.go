package audit

import (
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionSubmit   Action = "submit"
	ActionApprove  Action = "approve"
	ActionDeny     Action = "deny"
	ActionUseVisit Action = "use_visit"
	ActionRenew    Action = "renew"
	ActionAppeal   Action = "appeal"
	ActionCancel   Action = "cancel"
	ActionDelete   Action = "delete"
	ActionView     Action = "view"
	ActionExport   Action = "export"
)

const (
	CategoryLifecycle    = "lifecycle"
	CategoryModification = "modification"
	CategoryWorkflow     = "workflow"
	CategoryDecision     = "decision"
	CategoryAccess       = "access"
)

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// ResourceAuthorization is the default audited resource.
const ResourceAuthorization = "authorization_request"

var actionCategories = map[Action]string{
	ActionCreate:   CategoryLifecycle,
	ActionRenew:    CategoryLifecycle,
	ActionDelete:   CategoryLifecycle,
	ActionUpdate:   CategoryModification,
	ActionSubmit:   CategoryWorkflow,
	ActionCancel:   CategoryWorkflow,
	ActionUseVisit: CategoryWorkflow,
	ActionApprove:  CategoryDecision,
	ActionDeny:     CategoryDecision,
	ActionAppeal:   CategoryDecision,
	ActionView:     CategoryAccess,
	ActionExport:   CategoryAccess,
}

var actionSeverities = map[Action]string{
	ActionDelete:  SeverityHigh,
	ActionCancel:  SeverityHigh,
	ActionDeny:    SeverityMedium,
	ActionAppeal:  SeverityMedium,
	ActionApprove: SeverityMedium,
}

// Category returns the fixed category for an action. Unlisted actions are
// treated as modifications.
func (a Action) Category() string {
	if c, ok := actionCategories[a]; ok {
		return c
	}
	return CategoryModification
}

func (a Action) Severity() string {
	if s, ok := actionSeverities[a]; ok {
		return s
	}
	return SeverityLow
}

func (a Action) Valid() bool {
	_, ok := actionCategories[a]
	return ok
}

// Entry maps to authorization_audit_logs. Rows are append-only.
type Entry struct {
	ID              uuid.UUID              `db:"id" json:"id"`
	AuthorizationID string                 `db:"authorization_id" json:"authorization_id"`
	ResourceType    string                 `db:"resource_type" json:"resource_type"`
	UserID          string                 `db:"user_id" json:"user_id"`
	UserEmail       string                 `db:"user_email" json:"user_email"`
	UserName        string                 `db:"user_name" json:"user_name"`
	Action          Action                 `db:"action" json:"action"`
	ActionCategory  string                 `db:"action_category" json:"action_category"`
	Severity        string                 `db:"severity" json:"severity"`
	OldValues       map[string]interface{} `db:"old_values" json:"old_values,omitempty"`
	NewValues       map[string]interface{} `db:"new_values" json:"new_values,omitempty"`
	OldStatus       *string                `db:"old_status" json:"old_status,omitempty"`
	NewStatus       *string                `db:"new_status" json:"new_status,omitempty"`
	Notes           *string                `db:"notes" json:"notes,omitempty"`
	Reason          *string                `db:"reason" json:"reason,omitempty"`
	UserAgent       *string                `db:"user_agent" json:"user_agent,omitempty"`
	CompanyID       *string                `db:"company_id" json:"company_id,omitempty"`
	CreatedAt       time.Time              `db:"created_at" json:"created_at"`
}

// Options carries the optional parts of an audit entry.
type Options struct {
	ResourceType string                 `json:"resource_type,omitempty"`
	OldValues    map[string]interface{} `json:"old_values,omitempty"`
	NewValues    map[string]interface{} `json:"new_values,omitempty"`
	OldStatus    string                 `json:"old_status,omitempty"`
	NewStatus    string                 `json:"new_status,omitempty"`
	Notes        string                 `json:"notes,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
}

// Filter narrows Query. Zero fields are ignored.
type Filter struct {
	AuthorizationID string
	UserID          string
	Action          Action
	Category        string
	From            *time.Time
	To              *time.Time
	Limit           int
	Offset          int
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
