package store

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/eventflow/types"
)

// ArtifactRow persists one artifact identity. The (namespace, type, name)
// triple is unique; ID is the surrogate key event rows point at. Identities
// never change once written.
type ArtifactRow struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Namespace string    `gorm:"size:64;not null;uniqueIndex:idx_artifact_identity" json:"namespace"`
	Type      string    `gorm:"size:64;not null;uniqueIndex:idx_artifact_identity" json:"type"`
	Name      string    `gorm:"size:255;not null;uniqueIndex:idx_artifact_identity" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (ArtifactRow) TableName() string {
	return "artifacts"
}

// Artifact converts the row back into its domain form, ID included.
func (r ArtifactRow) Artifact() types.Artifact {
	return types.Artifact{
		ID:        r.ID,
		Namespace: types.ArtifactNamespace(r.Namespace),
		Type:      types.ArtifactType(r.Type),
		Name:      r.Name,
	}
}

// EventRow persists one recorded event. SourceID is the idempotency key:
// inserting a row whose sourceId already exists is skipped, never an error.
type EventRow struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Time        time.Time `gorm:"not null;index:idx_event_time" json:"time"`
	Type        string    `gorm:"size:64;not null;index:idx_event_type" json:"type"`
	TypeVersion int       `gorm:"not null;default:1" json:"type_version"`
	ToID        int64     `gorm:"not null;index:idx_event_to" json:"to_id"`
	FromID      *int64    `gorm:"index:idx_event_from" json:"from_id,omitempty"`
	Amount      float64   `gorm:"not null;default:0" json:"amount"`
	SourceID    string    `gorm:"size:128;not null;uniqueIndex:idx_event_source" json:"source_id"`
	Details     []byte    `json:"details,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (EventRow) TableName() string {
	return "events"
}

// newEventRow maps a domain event onto its storage row. Artifact references
// must already be resolved to store IDs.
func newEventRow(ev *types.Event, toID int64, fromID *int64) EventRow {
	return EventRow{
		Time:        ev.Time.UTC(),
		Type:        string(ev.Type),
		TypeVersion: ev.TypeVersion,
		ToID:        toID,
		FromID:      fromID,
		Amount:      ev.Amount,
		SourceID:    ev.SourceID,
		Details:     ev.Details,
	}
}

// CheckpointRow persists one progress marker. Rows are append-only; the
// newest row per name is the live checkpoint, older rows stay as history.
type CheckpointRow struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null;index:idx_checkpoint_name" json:"name"`
	State     []byte    `gorm:"not null" json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CheckpointRow) TableName() string {
	return "checkpoints"
}

// DecodeState unmarshals the checkpoint payload into v.
func (r CheckpointRow) DecodeState(v any) error {
	return json.Unmarshal(r.State, v)
}
