package projects

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/hatchpad/hatchpad-backend/internal/domain"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/dbctx"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/logger"
)

type SecretRepo interface {
	Create(dbc dbctx.Context, secret *types.Secret) (*types.Secret, error)
	GetByVersionID(dbc dbctx.Context, versionID uuid.UUID) (*types.Secret, error)
	DeleteByVersionIDs(dbc dbctx.Context, versionIDs []uuid.UUID) error
}

type secretRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSecretRepo(db *gorm.DB, baseLog *logger.Logger) SecretRepo {
	return &secretRepo{
		db:  db,
		log: baseLog.With("repo", "SecretRepo"),
	}
}

func (r *secretRepo) Create(dbc dbctx.Context, secret *types.Secret) (*types.Secret, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if secret == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(secret).Error; err != nil {
		return nil, err
	}
	return secret, nil
}

func (r *secretRepo) GetByVersionID(dbc dbctx.Context, versionID uuid.UUID) (*types.Secret, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if versionID == uuid.Nil {
		return nil, nil
	}
	var secret types.Secret
	err := transaction.WithContext(dbc.Ctx).
		Where("version_id = ?", versionID).
		Limit(1).
		Find(&secret).Error
	if err != nil {
		return nil, err
	}
	if secret.ID == uuid.Nil {
		return nil, nil
	}
	return &secret, nil
}

func (r *secretRepo) DeleteByVersionIDs(dbc dbctx.Context, versionIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(versionIDs) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("version_id IN ?", versionIDs).
		Delete(&types.Secret{}).Error
}
