package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/hatchpad/hatchpad-backend/internal/domain"
)

func SeedProject(tb testing.TB, ctx context.Context, tx *gorm.DB) *types.Project {
	tb.Helper()
	p := &types.Project{
		ID:               uuid.New(),
		OwnerUserID:      uuid.New(),
		Name:             "project",
		RepoRef:          "sandbox/repo",
		BackendType:      types.BackendNeon,
		BackendProjectID: "bk-" + uuid.NewString()[:8],
		ThreadRef:        "thread",
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	return p
}

func SeedVersion(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID uuid.UUID, summary string) *types.Version {
	tb.Helper()
	v := &types.Version{
		ID:         uuid.New(),
		ProjectID:  projectID,
		CommitHash: uuid.NewString(),
		SnapshotID: "snap-" + uuid.NewString()[:8],
		Summary:    summary,
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed version: %v", err)
	}
	return v
}

func SeedSecret(tb testing.TB, ctx context.Context, tx *gorm.DB, versionID uuid.UUID, ciphertext string) *types.Secret {
	tb.Helper()
	s := &types.Secret{
		ID:         uuid.New(),
		VersionID:  versionID,
		Ciphertext: ciphertext,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed secret: %v", err)
	}
	return s
}
