package projects

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/hatchpad/hatchpad-backend/internal/data/repos/testutil"
	types "github.com/hatchpad/hatchpad-backend/internal/domain"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/dbctx"
)

func TestVersionAndSecretRepo_DeleteOrder(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	versions := NewVersionRepo(db, testutil.Logger(t))
	secrets := NewSecretRepo(db, testutil.Logger(t))

	project := testutil.SeedProject(t, ctx, tx)
	v1 := testutil.SeedVersion(t, ctx, tx, project.ID, types.SummaryInitialVersion)
	v2 := testutil.SeedVersion(t, ctx, tx, project.ID, types.SummaryManualCheckpoint)
	testutil.SeedSecret(t, ctx, tx, v1.ID, "ct-1")
	testutil.SeedSecret(t, ctx, tx, v2.ID, "ct-2")

	ids, err := versions.IDsByProject(dbc, project.ID)
	if err != nil {
		t.Fatalf("IDsByProject: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("IDsByProject len = %d, want 2", len(ids))
	}

	if err := secrets.DeleteByVersionIDs(dbc, ids); err != nil {
		t.Fatalf("DeleteByVersionIDs: %v", err)
	}
	s, err := secrets.GetByVersionID(dbc, v1.ID)
	if err != nil {
		t.Fatalf("GetByVersionID: %v", err)
	}
	if s != nil {
		t.Fatalf("secret survived deletion: %+v", s)
	}

	if err := versions.DeleteByProject(dbc, project.ID); err != nil {
		t.Fatalf("DeleteByProject: %v", err)
	}
	left, err := versions.ListByProject(dbc, project.ID)
	if err != nil {
		t.Fatalf("ListByProject: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("ListByProject after delete = %d rows, want 0", len(left))
	}
}

func TestVersionRepo_EmptyProject(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	versions := NewVersionRepo(db, testutil.Logger(t))
	secrets := NewSecretRepo(db, testutil.Logger(t))

	ids, err := versions.IDsByProject(dbc, uuid.New())
	if err != nil {
		t.Fatalf("IDsByProject: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("IDsByProject = %v, want empty", ids)
	}

	// Deleting nothing is a no-op, not an error.
	if err := secrets.DeleteByVersionIDs(dbc, ids); err != nil {
		t.Fatalf("DeleteByVersionIDs with no ids: %v", err)
	}
}
