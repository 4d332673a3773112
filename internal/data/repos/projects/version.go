package projects

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/hatchpad/hatchpad-backend/internal/domain"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/dbctx"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/logger"
)

type VersionRepo interface {
	Create(dbc dbctx.Context, versions []*types.Version) ([]*types.Version, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Version, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Version, error)
	IDsByProject(dbc dbctx.Context, projectID uuid.UUID) ([]uuid.UUID, error)
	DeleteByProject(dbc dbctx.Context, projectID uuid.UUID) error
}

type versionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVersionRepo(db *gorm.DB, baseLog *logger.Logger) VersionRepo {
	return &versionRepo{
		db:  db,
		log: baseLog.With("repo", "VersionRepo"),
	}
}

func (r *versionRepo) Create(dbc dbctx.Context, versions []*types.Version) ([]*types.Version, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(versions) == 0 {
		return []*types.Version{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

func (r *versionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Version, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var version types.Version
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&version).Error
	if err != nil {
		return nil, err
	}
	if version.ID == uuid.Nil {
		return nil, nil
	}
	return &version, nil
}

func (r *versionRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Version, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Version
	if projectID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *versionRepo) IDsByProject(dbc dbctx.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	if projectID == uuid.Nil {
		return ids, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Version{}).
		Where("project_id = ?", projectID).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *versionRepo) DeleteByProject(dbc dbctx.Context, projectID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Delete(&types.Version{}).Error
}
