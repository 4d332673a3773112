package domain

import (
	"time"

	"github.com/google/uuid"
)

// Summaries for system-created versions. Checkpoints triggered by the agent
// tool carry the agent's own summary instead.
const (
	SummaryInitialVersion   = "Initial project setup"
	SummaryManualCheckpoint = "Manual checkpoint"
)

// Version binds one git commit, one backend snapshot and one secrets bundle.
// Rows are write-once: nothing updates a version after creation.
type Version struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProjectID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"project_id"`
	CommitHash string     `gorm:"column:commit_hash;not null" json:"commit_hash"`
	SnapshotID string     `gorm:"column:snapshot_id;not null" json:"snapshot_id"`
	MessageRef *uuid.UUID `gorm:"type:uuid;column:message_ref" json:"message_ref,omitempty"`
	Summary    string     `gorm:"column:summary;not null" json:"summary"`
	CreatedAt  time.Time  `gorm:"not null;default:now();index" json:"created_at"`
}

func (Version) TableName() string { return "version" }

// Secret holds the encrypted env-var bundle for exactly one version.
type Secret struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	VersionID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"version_id"`
	Ciphertext string    `gorm:"column:ciphertext;not null" json:"-"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Secret) TableName() string { return "secret" }
