package insight

// DenialRecord is the flattened denial+claim shape sent for batch triage.
type DenialRecord struct {
	DenialID       string   `json:"denialId"`
	ClaimID        string   `json:"claimId,omitempty"`
	DenialCode     string   `json:"denialCode"`
	DenialReason   string   `json:"denialReason"`
	DeniedAmount   float64  `json:"deniedAmount"`
	PayerName      string   `json:"payerName,omitempty"`
	ProcedureCodes []string `json:"procedureCodes"`
	DiagnosisCodes []string `json:"diagnosisCodes"`
	DenialDate     string   `json:"denialDate,omitempty"`
}

// QueueItem is one ranked entry of a triage plan.
type QueueItem struct {
	DenialID           string  `json:"denialId"`
	ClaimID            string  `json:"claimId,omitempty"`
	Priority           string  `json:"priority"`
	Rationale          string  `json:"rationale"`
	SuccessProbability float64 `json:"successProbability"`
	EstimatedRecovery  float64 `json:"estimatedRecovery"`
	NextBestAction     string  `json:"nextBestAction"`
}

// Cluster groups denials that share a root cause.
type Cluster struct {
	Label                string   `json:"label"`
	DenialCodes          []string `json:"denialCodes"`
	Count                int      `json:"count"`
	EstimatedRecoverable float64  `json:"estimatedRecoverable"`
	Suggestions          []string `json:"suggestions"`
}

// TriageResult is regenerated on every call and never stored.
type TriageResult struct {
	Queue    []QueueItem `json:"queue"`
	Clusters []Cluster   `json:"clusters"`
}

const (
	displayQueue       = 10
	displayClusters    = 6
	displayClusterCode = 4
	displaySuggestions = 3
	displayActions     = 8
)

// ForDisplay returns a copy truncated to what the triage dashboard shows.
func (r TriageResult) ForDisplay() TriageResult {
	out := TriageResult{Queue: head(r.Queue, displayQueue)}
	for _, c := range head(r.Clusters, displayClusters) {
		c.DenialCodes = head(c.DenialCodes, displayClusterCode)
		c.Suggestions = head(c.Suggestions, displaySuggestions)
		out.Clusters = append(out.Clusters, c)
	}
	if out.Clusters == nil {
		out.Clusters = []Cluster{}
	}
	return out
}

// Analysis is the per-denial root-cause view.
type Analysis struct {
	DenialID            string   `json:"denialId"`
	ClaimID             string   `json:"claimId,omitempty"`
	RecoveryProbability float64  `json:"recoveryProbability"`
	RecoveryAmount      float64  `json:"recoveryAmount"`
	Appealable          bool     `json:"appealable"`
	RootCause           string   `json:"rootCause"`
	Actions             []string `json:"actions"`
}

// ForDisplay caps the recommended actions list.
func (a Analysis) ForDisplay() Analysis {
	a.Actions = head(a.Actions, displayActions)
	return a
}

// AppealRequest asks for a draft letter for one denial.
type AppealRequest struct {
	DenialID   string                 `json:"denialId"`
	ClaimID    string                 `json:"claimId,omitempty"`
	AppealType string                 `json:"appealType"`
	ActorID    string                 `json:"userId"`
	Context    map[string]interface{} `json:"analysisContext,omitempty"`
}

// AppealDraft is the letter returned by the drafting capability.
type AppealDraft struct {
	WorkflowID   string `json:"workflowId,omitempty"`
	AppealLetter string `json:"appealLetter"`
}

func head[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
