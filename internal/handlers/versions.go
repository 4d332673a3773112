package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hatchpad/hatchpad-backend/internal/pkg/dbctx"
	"github.com/hatchpad/hatchpad-backend/internal/services"
)

type VersionsHandler struct {
	versioning services.VersioningService
	restore    services.RestoreService
}

func NewVersionsHandler(versioning services.VersioningService, restore services.RestoreService) *VersionsHandler {
	return &VersionsHandler{versioning: versioning, restore: restore}
}

// POST /api/projects/:id/versions/initialize
func (h *VersionsHandler) InitializeFirstVersion(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	workflowID, err := h.versioning.StartInitializeFirstVersion(dbctx.Context{Ctx: c.Request.Context()}, projectID)
	if err != nil {
		RespondServiceError(c, "initialize_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"workflow_id": workflowID})
}

// POST /api/projects/:id/versions/checkpoint
func (h *VersionsHandler) CreateCheckpoint(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	var body struct {
		MessageRef *uuid.UUID `json:"message_ref"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
			return
		}
	}
	workflowID, err := h.versioning.StartCreateCheckpoint(dbctx.Context{Ctx: c.Request.Context()}, projectID, body.MessageRef)
	if err != nil {
		RespondServiceError(c, "checkpoint_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"workflow_id": workflowID})
}

// POST /api/projects/:id/versions/:versionId/restore
func (h *VersionsHandler) RestoreVersion(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	versionID, err := uuid.Parse(c.Param("versionId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_version_id", err)
		return
	}
	result, err := h.restore.Restore(dbctx.Context{Ctx: c.Request.Context()}, projectID, versionID)
	if err != nil {
		RespondServiceError(c, "restore_failed", err)
		return
	}
	RespondOK(c, gin.H{"restored": result})
}

// GET /api/projects/:id/versions
func (h *VersionsHandler) ListVersions(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	versions, err := h.versioning.ListVersions(dbctx.Context{Ctx: c.Request.Context()}, projectID)
	if err != nil {
		RespondServiceError(c, "list_versions_failed", err)
		return
	}
	RespondOK(c, gin.H{"versions": versions})
}

// GET /api/projects/:id/env
func (h *VersionsHandler) GetProjectEnv(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	env, err := h.versioning.GetProjectEnv(dbctx.Context{Ctx: c.Request.Context()}, projectID)
	if err != nil {
		RespondServiceError(c, "env_resolve_failed", err)
		return
	}
	RespondOK(c, gin.H{"env": env})
}

// DELETE /api/projects/:id
func (h *VersionsHandler) DeleteProject(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	workflowID, err := h.versioning.StartDeleteProject(dbctx.Context{Ctx: c.Request.Context()}, projectID)
	if err != nil {
		RespondServiceError(c, "delete_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"workflow_id": workflowID})
}
