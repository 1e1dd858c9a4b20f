package audit

import "testing"

func TestAction_CategoryAndSeverity(t *testing.T) {
	tests := []struct {
		action   Action
		category string
		severity string
	}{
		{ActionCreate, CategoryLifecycle, SeverityLow},
		{ActionRenew, CategoryLifecycle, SeverityLow},
		{ActionDelete, CategoryLifecycle, SeverityHigh},
		{ActionUpdate, CategoryModification, SeverityLow},
		{ActionSubmit, CategoryWorkflow, SeverityLow},
		{ActionUseVisit, CategoryWorkflow, SeverityLow},
		{ActionCancel, CategoryWorkflow, SeverityHigh},
		{ActionApprove, CategoryDecision, SeverityMedium},
		{ActionDeny, CategoryDecision, SeverityMedium},
		{ActionAppeal, CategoryDecision, SeverityMedium},
		{ActionView, CategoryAccess, SeverityLow},
		{ActionExport, CategoryAccess, SeverityLow},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			if got := tt.action.Category(); got != tt.category {
				t.Errorf("Category() = %q, want %q", got, tt.category)
			}
			if got := tt.action.Severity(); got != tt.severity {
				t.Errorf("Severity() = %q, want %q", got, tt.severity)
			}
		})
	}
}

func TestAction_Valid(t *testing.T) {
	if !ActionUseVisit.Valid() {
		t.Error("use_visit should be valid")
	}
	if Action("archive").Valid() {
		t.Error("archive should not be valid")
	}
}
