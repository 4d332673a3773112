package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BackendType tags which database provider backs a project.
type BackendType string

const (
	BackendNeon BackendType = "neon"
)

func (b BackendType) String() string { return string(b) }

type Project struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Name             string         `gorm:"column:name;not null" json:"name"`
	RepoRef          string         `gorm:"column:repo_ref;not null" json:"repo_ref"`
	BackendType      BackendType    `gorm:"column:backend_type;not null;index" json:"backend_type"`
	BackendProjectID string         `gorm:"column:backend_project_id" json:"backend_project_id,omitempty"`
	ThreadRef        string         `gorm:"column:thread_ref" json:"thread_ref,omitempty"`
	CurrentVersionID *uuid.UUID     `gorm:"type:uuid;column:current_version_id;index" json:"current_version_id,omitempty"`
	Metadata         datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Project) TableName() string { return "project" }
