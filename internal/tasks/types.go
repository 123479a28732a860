package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeConsistencyAudit = "model:consistency_audit"
	TypePurgeDeleted     = "model:purge_deleted"
)

// ConsistencyAuditPayload scopes an audit pass. Empty fields widen the
// scope: no project id audits every project of the org, no org id audits the
// whole store.
type ConsistencyAuditPayload struct {
	OrgID     string `json:"org_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

func NewConsistencyAuditTask(payload ConsistencyAuditPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeConsistencyAudit, data), nil
}

// PurgeDeletedPayload controls the hard removal of entities that have been
// soft-deleted for longer than the retention window.
type PurgeDeletedPayload struct {
	OlderThanDays int `json:"older_than_days"`
}

func NewPurgeDeletedTask(payload PurgeDeletedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePurgeDeleted, data), nil
}
