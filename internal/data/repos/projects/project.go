package projects

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/hatchpad/hatchpad-backend/internal/domain"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/dbctx"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/logger"
)

type ProjectRepo interface {
	Create(dbc dbctx.Context, projects []*types.Project) ([]*types.Project, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error)
	SetBackendProjectID(dbc dbctx.Context, id uuid.UUID, backendProjectID string) error
	// SetCurrentVersion is an unconditional last-write-wins pointer update.
	// Concurrent workflows racing on the same project are resolved by write
	// order, not rejected (see DeleteProject/CreateCheckpoint workflow docs).
	SetCurrentVersion(dbc dbctx.Context, id uuid.UUID, versionID *uuid.UUID) error
	// SetCurrentVersionIf updates the pointer only when it currently equals
	// expected. Returns false when the guard did not match.
	SetCurrentVersionIf(dbc dbctx.Context, id uuid.UUID, expected *uuid.UUID, next uuid.UUID) (bool, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type projectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return &projectRepo{
		db:  db,
		log: baseLog.With("repo", "ProjectRepo"),
	}
}

func (r *projectRepo) Create(dbc dbctx.Context, projects []*types.Project) ([]*types.Project, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(projects) == 0 {
		return []*types.Project{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

func (r *projectRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var project types.Project
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&project).Error
	if err != nil {
		return nil, err
	}
	if project.ID == uuid.Nil {
		return nil, nil
	}
	return &project, nil
}

func (r *projectRepo) SetBackendProjectID(dbc dbctx.Context, id uuid.UUID, backendProjectID string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Project{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"backend_project_id": backendProjectID,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *projectRepo) SetCurrentVersion(dbc dbctx.Context, id uuid.UUID, versionID *uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Project{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"current_version_id": versionID,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *projectRepo) SetCurrentVersionIf(dbc dbctx.Context, id uuid.UUID, expected *uuid.UUID, next uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Project{}).
		Where("id = ? AND current_version_id IS NOT DISTINCT FROM ?", id, expected).
		Updates(map[string]any{
			"current_version_id": next,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *projectRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Project{}).Error
}
