package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	types "github.com/hatchpad/hatchpad-backend/internal/domain"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/dbctx"
	apperrors "github.com/hatchpad/hatchpad-backend/internal/pkg/errors"
	"github.com/hatchpad/hatchpad-backend/internal/services"
)

type fakeVersioning struct {
	initErr     error
	checkpoints []*uuid.UUID
	versions    []*types.Version
	env         map[string]string
}

func (f *fakeVersioning) StartInitializeFirstVersion(dbc dbctx.Context, projectID uuid.UUID) (string, error) {
	if f.initErr != nil {
		return "", f.initErr
	}
	return "version-init-" + projectID.String(), nil
}

func (f *fakeVersioning) StartCreateCheckpoint(dbc dbctx.Context, projectID uuid.UUID, messageRef *uuid.UUID) (string, error) {
	f.checkpoints = append(f.checkpoints, messageRef)
	return "version-checkpoint-" + projectID.String(), nil
}

func (f *fakeVersioning) StartDeleteProject(dbc dbctx.Context, projectID uuid.UUID) (string, error) {
	return "project-delete-" + projectID.String(), nil
}

func (f *fakeVersioning) ListVersions(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Version, error) {
	return f.versions, nil
}

func (f *fakeVersioning) GetProjectEnv(dbc dbctx.Context, projectID uuid.UUID) (map[string]string, error) {
	return f.env, nil
}

type fakeRestore struct {
	result services.RestoreResult
	err    error
}

func (f *fakeRestore) Restore(dbc dbctx.Context, projectID, versionID uuid.UUID) (services.RestoreResult, error) {
	return f.result, f.err
}

func newTestRouter(versioning *fakeVersioning, restore *fakeRestore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewVersionsHandler(versioning, restore)
	api := router.Group("/api")
	api.POST("/projects/:id/versions/initialize", h.InitializeFirstVersion)
	api.POST("/projects/:id/versions/checkpoint", h.CreateCheckpoint)
	api.POST("/projects/:id/versions/:versionId/restore", h.RestoreVersion)
	api.GET("/projects/:id/versions", h.ListVersions)
	api.GET("/projects/:id/env", h.GetProjectEnv)
	api.DELETE("/projects/:id", h.DeleteProject)
	return router
}

func TestInitializeFirstVersion_Accepted(t *testing.T) {
	router := newTestRouter(&fakeVersioning{}, &fakeRestore{})
	projectID := uuid.New()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+projectID.String()+"/versions/initialize", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "version-init-"+projectID.String(), body["workflow_id"])
}

func TestInitializeFirstVersion_ConflictOnSecondStart(t *testing.T) {
	versioning := &fakeVersioning{initErr: fmt.Errorf("already started: %w", apperrors.ErrConflict)}
	router := newTestRouter(versioning, &fakeRestore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+uuid.NewString()+"/versions/initialize", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestInitializeFirstVersion_BadProjectID(t *testing.T) {
	router := newTestRouter(&fakeVersioning{}, &fakeRestore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/projects/not-a-uuid/versions/initialize", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateCheckpoint_PassesMessageRef(t *testing.T) {
	versioning := &fakeVersioning{}
	router := newTestRouter(versioning, &fakeRestore{})
	messageRef := uuid.New()

	payload := fmt.Sprintf(`{"message_ref":%q}`, messageRef)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+uuid.NewString()+"/versions/checkpoint", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, versioning.checkpoints, 1)
	require.NotNil(t, versioning.checkpoints[0])
	require.Equal(t, messageRef, *versioning.checkpoints[0])
}

func TestCreateCheckpoint_EmptyBodyIsValid(t *testing.T) {
	versioning := &fakeVersioning{}
	router := newTestRouter(versioning, &fakeRestore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+uuid.NewString()+"/versions/checkpoint", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, versioning.checkpoints, 1)
	require.Nil(t, versioning.checkpoints[0])
}

func TestRestoreVersion_NotFound(t *testing.T) {
	restore := &fakeRestore{err: fmt.Errorf("version missing: %w", apperrors.ErrNotFound)}
	router := newTestRouter(&fakeVersioning{}, restore)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+uuid.NewString()+"/versions/"+uuid.NewString()+"/restore", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRestoreVersion_ReturnsHandle(t *testing.T) {
	versionID := uuid.New()
	restore := &fakeRestore{result: services.RestoreResult{
		VersionID:    versionID,
		CommitHash:   "abc123",
		EphemeralURL: "https://demo.preview.test",
	}}
	router := newTestRouter(&fakeVersioning{}, restore)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+uuid.NewString()+"/versions/"+versionID.String()+"/restore", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Restored services.RestoreResult `json:"restored"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, versionID, body.Restored.VersionID)
	require.Equal(t, "https://demo.preview.test", body.Restored.EphemeralURL)
}

func TestGetProjectEnv(t *testing.T) {
	versioning := &fakeVersioning{env: map[string]string{"DATABASE_URL": "postgres://demo"}}
	router := newTestRouter(versioning, &fakeRestore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/projects/"+uuid.NewString()+"/env", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Env map[string]string `json:"env"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "postgres://demo", body.Env["DATABASE_URL"])
}

func TestDeleteProject_Accepted(t *testing.T) {
	router := newTestRouter(&fakeVersioning{}, &fakeRestore{})
	projectID := uuid.New()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/projects/"+projectID.String(), nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
}
