package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/coursehub/asset-service/internal/models"
	"github.com/coursehub/asset-service/internal/repositories"
	"github.com/coursehub/asset-service/internal/sniff"
	"github.com/coursehub/asset-service/internal/storage"
)

// Sentinel errors for user-correctable upload failures. Handlers map
// these to 4xx responses; anything else is an internal fault that is
// logged and surfaced generically.
var (
	ErrInvalidFileType = errors.New("file type is not allowed for this purpose")
	ErrFileTooLarge    = errors.New("file exceeds the maximum allowed size")
	ErrMissingFile     = errors.New("no file content provided")
	ErrNotFound        = errors.New("asset not found")
)

// Storage defines the interface for asset persistence on disk
type Storage interface {
	// WriteAtomic streams r to a temp file and atomically publishes it
	// at relPath, enforcing maxSize while streaming
	WriteAtomic(relPath string, r io.Reader, maxSize int64) (int64, error)

	// Open opens a stored asset for reading
	Open(relPath string) (io.ReadCloser, error)

	// OpenFile opens a stored asset as *os.File for http.ServeContent
	OpenFile(relPath string) (*os.File, error)

	// Remove deletes a single stored asset
	Remove(relPath string) error

	// RemoveDir deletes an entity's directory subtree
	RemoveDir(relDir string) error
}

// AssetRepository defines the interface for the asset catalog
type AssetRepository interface {
	Upsert(ctx context.Context, asset *models.Asset) error
	GetByEntityPurpose(ctx context.Context, entity models.EntityPath, purpose models.AssetPurpose) (*models.Asset, error)
	DeleteByEntity(ctx context.Context, entity models.EntityPath) error
}

// AssetService handles the upload pipeline (sniff, validate, resolve,
// persist) and serving of published assets.
type AssetService struct {
	assetRepo AssetRepository
	storage   Storage
	baseURL   string
}

// NewAssetService creates a new asset service
func NewAssetService(assetRepo AssetRepository, storage Storage, baseURL string) *AssetService {
	return &AssetService{
		assetRepo: assetRepo,
		storage:   storage,
		baseURL:   baseURL,
	}
}

// PublishAsset runs the full ingestion pipeline for one upload: sniff
// the true content type from the leading bytes, validate it against the
// purpose, resolve the canonical path, stream to disk with an atomic
// publish, and record the accepted category in the catalog.
//
// filename is only consulted for the narrow safe-text carve-out and the
// dangerous-extension check; the stored path and content type come from
// the sniffed signature.
func (s *AssetService) PublishAsset(ctx context.Context, entity models.EntityPath, purpose models.AssetPurpose, filename string, r io.Reader, maxSize int64) (*models.Asset, error) {
	br := bufio.NewReaderSize(r, sniff.HeaderSize)

	header, err := br.Peek(sniff.HeaderSize)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read stream header: %w", err)
	}
	if len(header) == 0 {
		return nil, ErrMissingFile
	}

	res := sniff.Detect(header)

	contentType, ext, err := validateUpload(purpose, filename, res)
	if err != nil {
		return nil, err
	}

	relPath, err := storage.ResolvePath(entity, purpose, ext)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage path: %w", err)
	}

	// A format change moves the canonical path (cover.png becomes
	// cover.jpg), so the prior record is needed to reclaim the old file
	// after the replacement is published.
	prior, err := s.assetRepo.GetByEntityPurpose(ctx, entity, purpose)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up prior asset: %w", err)
	}

	size, err := s.storage.WriteAtomic(relPath, br, maxSize)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, ErrFileTooLarge
		}
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	category := res.Category
	if category == models.CategoryUnknown {
		// Accepted under the safe-text carve-out; stored as a document.
		category = models.CategoryDocument
	}

	asset := &models.Asset{
		CourseID:    entity.CourseID,
		ModuleID:    entity.ModuleID,
		ClassID:     entity.ClassID,
		Purpose:     purpose,
		Path:        relPath,
		ContentType: contentType,
		Category:    category,
		Size:        size,
		URL:         s.downloadURL(entity, purpose),
	}

	if err := s.assetRepo.Upsert(ctx, asset); err != nil {
		// Cleanup: remove the published file if cataloging fails
		s.storage.Remove(relPath)
		return nil, fmt.Errorf("failed to catalog asset: %w", err)
	}

	// At most one stored file exists per entity and purpose. A same-path
	// replacement was already handled by the atomic rename; a prior file
	// in a different format is removed now that the catalog points at
	// the new one.
	if prior != nil && prior.Path != relPath {
		s.storage.Remove(prior.Path)
	}

	return asset, nil
}

// OpenAsset opens a published asset for serving, together with its
// catalog record. The record carries the content type accepted at write
// time, which is what the response content type must be derived from.
func (s *AssetService) OpenAsset(ctx context.Context, entity models.EntityPath, purpose models.AssetPurpose) (*os.File, *models.Asset, error) {
	asset, err := s.GetAsset(ctx, entity, purpose)
	if err != nil {
		return nil, nil, err
	}

	file, err := s.storage.OpenFile(asset.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to open asset: %w", err)
	}

	return file, asset, nil
}

// GetAsset retrieves the catalog record for an entity/purpose pair
func (s *AssetService) GetAsset(ctx context.Context, entity models.EntityPath, purpose models.AssetPurpose) (*models.Asset, error) {
	asset, err := s.assetRepo.GetByEntityPurpose(ctx, entity, purpose)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return asset, nil
}

// RemoveEntityAssets removes every asset at or below the entity in the
// course hierarchy, on disk and in the catalog. Called by the course
// CRUD layer when a course, module or class is deleted (cascade).
func (s *AssetService) RemoveEntityAssets(ctx context.Context, entity models.EntityPath) error {
	dir, err := storage.EntityDir(entity)
	if err != nil {
		return fmt.Errorf("failed to resolve entity directory: %w", err)
	}

	if err := s.storage.RemoveDir(dir); err != nil {
		return fmt.Errorf("failed to remove entity assets: %w", err)
	}

	if err := s.assetRepo.DeleteByEntity(ctx, entity); err != nil {
		return fmt.Errorf("failed to remove asset records: %w", err)
	}

	return nil
}

// downloadURL builds the public download URL for an entity/purpose pair
func (s *AssetService) downloadURL(entity models.EntityPath, purpose models.AssetPurpose) string {
	switch purpose {
	case models.PurposeCourseCover:
		return fmt.Sprintf("%s/api/v1/courses/%s/cover", s.baseURL, entity.CourseID)
	case models.PurposeCourseIntroVideo:
		return fmt.Sprintf("%s/api/v1/courses/%s/intro", s.baseURL, entity.CourseID)
	case models.PurposeLessonVideo:
		return fmt.Sprintf("%s/api/v1/courses/%s/modules/%s/classes/%s/video", s.baseURL, entity.CourseID, entity.ModuleID, entity.ClassID)
	case models.PurposeLessonMaterial:
		return fmt.Sprintf("%s/api/v1/courses/%s/modules/%s/classes/%s/material", s.baseURL, entity.CourseID, entity.ModuleID, entity.ClassID)
	default:
		return ""
	}
}
