package task

// Task type names routed through asynq.
const (
	EnforcementAuditTask = "eligibility:audit"
)

// EnforcementAuditPayload mirrors an eligibility decision for the audit log.
type EnforcementAuditPayload struct {
	UserID        string `json:"user_id"`
	CampaignID    string `json:"campaign_id"`
	Outcome       string `json:"outcome"`
	Tier          string `json:"tier"`
	Attempts      int    `json:"attempts"`
	RetryAfterSec int64  `json:"retry_after_sec"`
	DecidedAtUnix int64  `json:"decided_at_unix"`
}
