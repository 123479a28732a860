package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/modelry/modelry/internal/database/models"
	"github.com/modelry/modelry/internal/store"
	"gorm.io/gorm"
)

type Handler struct {
	db           *gorm.DB
	logger       *slog.Logger
	elements     *store.ElementStore
	defaultOrgID string
}

func NewHandler(db *gorm.DB, logger *slog.Logger, defaultOrgID string) *Handler {
	return &Handler{
		db:           db,
		logger:       logger,
		elements:     store.NewElementStore(db, logger),
		defaultOrgID: defaultOrgID,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeConsistencyAudit, h.HandleConsistencyAudit)
	mux.HandleFunc(TypePurgeDeleted, h.HandlePurgeDeleted)
}

// HandleConsistencyAudit walks the scoped projects and verifies the element
// tree/graph invariants, logging every violation. Violations are reported,
// not repaired; dangling state indicates either a crashed cascade or a bug,
// and an operator should look before anything is rewritten.
func (h *Handler) HandleConsistencyAudit(ctx context.Context, t *asynq.Task) error {
	var payload ConsistencyAuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	projects, err := h.scopedProjects(ctx, payload)
	if err != nil {
		return err
	}

	total := 0
	for _, proj := range projects {
		violations, err := h.elements.Audit(ctx, proj.OrgID, proj.ID)
		if err != nil {
			h.logger.Error("audit failed", "project", proj.QualifiedID(), "error", err)
			continue
		}
		for _, v := range violations {
			h.logger.Warn("consistency violation",
				"element", v.Element,
				"problem", v.Problem,
			)
		}
		total += len(violations)
	}

	h.logger.Info("consistency audit finished",
		"projects", len(projects),
		"violations", total,
	)
	return nil
}

// HandlePurgeDeleted hard-removes entities soft-deleted before the retention
// cutoff. Purging an organization or project cascades to everything beneath
// it regardless of the children's own deleted_at, the same way the stores'
// hard-delete paths do; org soft deletion marks only the org row, so its
// projects and elements may still be live when the retention clock runs out.
// The default organization is never touched.
func (h *Handler) HandlePurgeDeleted(ctx context.Context, t *asynq.Task) error {
	var payload PurgeDeletedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.OlderThanDays <= 0 {
		return fmt.Errorf("older_than_days must be positive, got %d", payload.OlderThanDays)
	}

	cutoff := time.Now().AddDate(0, 0, -payload.OlderThanDays)

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var elements, projects, orgs int64

		var orgIDs []string
		if err := tx.Unscoped().Model(&models.Organization{}).
			Where("deleted_at IS NOT NULL AND deleted_at < ? AND id <> ?", cutoff, h.defaultOrgID).
			Pluck("id", &orgIDs).Error; err != nil {
			return err
		}
		if len(orgIDs) > 0 {
			res := tx.Unscoped().Where("org_id IN ?", orgIDs).Delete(&models.Element{})
			if res.Error != nil {
				return res.Error
			}
			elements += res.RowsAffected

			res = tx.Unscoped().Where("org_id IN ?", orgIDs).Delete(&models.Project{})
			if res.Error != nil {
				return res.Error
			}
			projects += res.RowsAffected

			res = tx.Unscoped().Where("id IN ?", orgIDs).Delete(&models.Organization{})
			if res.Error != nil {
				return res.Error
			}
			orgs = res.RowsAffected
		}

		var stale []models.Project
		if err := tx.Unscoped().
			Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
			Find(&stale).Error; err != nil {
			return err
		}
		for i := range stale {
			proj := &stale[i]
			res := tx.Unscoped().
				Where("org_id = ? AND project_id = ?", proj.OrgID, proj.ID).
				Delete(&models.Element{})
			if res.Error != nil {
				return res.Error
			}
			elements += res.RowsAffected

			if err := tx.Unscoped().Delete(proj).Error; err != nil {
				return err
			}
			projects++
		}

		res := tx.Unscoped().
			Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
			Delete(&models.Element{})
		if res.Error != nil {
			return res.Error
		}
		elements += res.RowsAffected

		h.logger.Info("purged soft-deleted entities",
			"cutoff", cutoff,
			"elements", elements,
			"projects", projects,
			"organizations", orgs,
		)
		return nil
	})
}

func (h *Handler) scopedProjects(ctx context.Context, payload ConsistencyAuditPayload) ([]models.Project, error) {
	query := h.db.WithContext(ctx).Model(&models.Project{})
	if payload.OrgID != "" {
		query = query.Where("org_id = ?", payload.OrgID)
		if payload.ProjectID != "" {
			query = query.Where("id = ?", payload.ProjectID)
		}
	}

	var projects []models.Project
	if err := query.Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return projects, nil
}
