package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coursehub/asset-service/internal/models"
)

// ErrNotFound is returned when no catalog record exists for an
// entity/purpose pair. Callers match it with errors.Is.
var ErrNotFound = errors.New("asset not found")

// assetRepository implements catalog operations for published assets
type assetRepository struct {
	db *sql.DB
}

// NewAssetRepository creates a new asset catalog repository
func NewAssetRepository(db *sql.DB) *assetRepository {
	return &assetRepository{
		db: db,
	}
}

// Upsert inserts the catalog record for a published asset, replacing any
// prior record for the same (entity, purpose). The primary key on
// (course_id, module_id, class_id, purpose) enforces the
// at-most-one-asset-per-purpose invariant at the database level.
func (r *assetRepository) Upsert(ctx context.Context, asset *models.Asset) error {
	query := `
		INSERT INTO assets (course_id, module_id, class_id, purpose, path, content_type, category, size, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			path = VALUES(path),
			content_type = VALUES(content_type),
			category = VALUES(category),
			size = VALUES(size),
			url = VALUES(url),
			uploaded_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(ctx, query,
		asset.CourseID,
		asset.ModuleID,
		asset.ClassID,
		asset.Purpose,
		asset.Path,
		asset.ContentType,
		asset.Category,
		asset.Size,
		asset.URL,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert asset: %w", err)
	}

	return nil
}

// GetByEntityPurpose retrieves the catalog record for an entity/purpose pair
func (r *assetRepository) GetByEntityPurpose(ctx context.Context, entity models.EntityPath, purpose models.AssetPurpose) (*models.Asset, error) {
	query := `
		SELECT path, content_type, category, size, url, uploaded_at
		FROM assets
		WHERE course_id = ? AND module_id = ? AND class_id = ? AND purpose = ?
		LIMIT 1
	`

	asset := &models.Asset{
		CourseID: entity.CourseID,
		ModuleID: entity.ModuleID,
		ClassID:  entity.ClassID,
		Purpose:  purpose,
	}
	err := r.db.QueryRowContext(ctx, query, entity.CourseID, entity.ModuleID, entity.ClassID, purpose).Scan(
		&asset.Path,
		&asset.ContentType,
		&asset.Category,
		&asset.Size,
		&asset.URL,
		&asset.UploadedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	return asset, nil
}

// DeleteByEntity deletes catalog records for an entity and everything
// below it in the hierarchy: a course-scoped path deletes all rows of
// the course, a module-scoped path all rows of the module, a
// class-scoped path the rows of that class. Deleting an entity that has
// no assets is not an error.
func (r *assetRepository) DeleteByEntity(ctx context.Context, entity models.EntityPath) error {
	query := `DELETE FROM assets WHERE course_id = ?`
	args := []any{entity.CourseID}

	if entity.ModuleID != "" {
		query += ` AND module_id = ?`
		args = append(args, entity.ModuleID)
	}
	if entity.ClassID != "" {
		query += ` AND class_id = ?`
		args = append(args, entity.ClassID)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete assets: %w", err)
	}

	return nil
}
