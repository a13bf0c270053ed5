package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coursehub/asset-service/internal/models"
	"github.com/coursehub/asset-service/internal/repositories"
	"github.com/coursehub/asset-service/internal/sniff"
	"github.com/coursehub/asset-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngBytes  = append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, []byte("fake image body")...)
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("fake image body")...)
	mp4Bytes  = append([]byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}, []byte("fake video body")...)
	pdfBytes  = []byte("%PDF-1.7 fake document body")
	mzBytes   = append([]byte{0x4D, 0x5A, 0x90, 0x00}, []byte("fake executable body")...)
)

// mockAssetRepository is a mock implementation of AssetRepository
type mockAssetRepository struct {
	asset        *models.Asset
	getErr       error
	upsertErr    error
	deleteErr    error
	upserted     *models.Asset
	deleteCalled bool
	deletedPath  models.EntityPath
}

func (m *mockAssetRepository) Upsert(ctx context.Context, asset *models.Asset) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = asset
	m.asset = asset
	return nil
}

func (m *mockAssetRepository) GetByEntityPurpose(ctx context.Context, entity models.EntityPath, purpose models.AssetPurpose) (*models.Asset, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.asset == nil {
		return nil, repositories.ErrNotFound
	}
	return m.asset, nil
}

func (m *mockAssetRepository) DeleteByEntity(ctx context.Context, entity models.EntityPath) error {
	m.deleteCalled = true
	m.deletedPath = entity
	return m.deleteErr
}

// mockStorage is a mock implementation of Storage
type mockStorage struct {
	writeErr        error
	written         map[string][]byte
	removeCalled    bool
	removedPath     string
	removeDirErr    error
	removeDirCalled bool
	removedDir      string
}

func (m *mockStorage) WriteAtomic(relPath string, r io.Reader, maxSize int64) (int64, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return 0, err
	}
	if int64(len(data)) > maxSize {
		return 0, storage.ErrTooLarge
	}
	if m.written == nil {
		m.written = make(map[string][]byte)
	}
	m.written[relPath] = data
	return int64(len(data)), nil
}

func (m *mockStorage) Open(relPath string) (io.ReadCloser, error) {
	data, ok := m.written[relPath]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (m *mockStorage) OpenFile(relPath string) (*os.File, error) {
	return nil, os.ErrNotExist
}

func (m *mockStorage) Remove(relPath string) error {
	m.removeCalled = true
	m.removedPath = relPath
	return nil
}

func (m *mockStorage) RemoveDir(relDir string) error {
	m.removeDirCalled = true
	m.removedDir = relDir
	return m.removeDirErr
}

func TestNewAssetService(t *testing.T) {
	repo := &mockAssetRepository{}
	store := &mockStorage{}

	svc := NewAssetService(repo, store, "http://example.com")

	assert.NotNil(t, svc)
	assert.Equal(t, repo, svc.assetRepo)
	assert.Equal(t, store, svc.storage)
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name                string
		purpose             models.AssetPurpose
		filename            string
		prefix              []byte
		expectedError       bool
		expectedContentType string
		expectedExt         string
	}{
		{
			name:                "png accepted for cover",
			purpose:             models.PurposeCourseCover,
			filename:            "photo.png",
			prefix:              pngBytes,
			expectedContentType: "image/png",
			expectedExt:         ".png",
		},
		{
			name:                "png accepted for cover despite wrong extension",
			purpose:             models.PurposeCourseCover,
			filename:            "photo.mp4",
			prefix:              pngBytes,
			expectedContentType: "image/png",
			expectedExt:         ".png",
		},
		{
			name:                "jpeg accepted for cover with no extension",
			purpose:             models.PurposeCourseCover,
			filename:            "photo",
			prefix:              jpegBytes,
			expectedContentType: "image/jpeg",
			expectedExt:         ".jpg",
		},
		{
			name:                "mp4 accepted for intro video",
			purpose:             models.PurposeCourseIntroVideo,
			filename:            "intro.mp4",
			prefix:              mp4Bytes,
			expectedContentType: "video/mp4",
			expectedExt:         ".mp4",
		},
		{
			name:                "mp4 accepted for lesson video",
			purpose:             models.PurposeLessonVideo,
			filename:            "lecture.mov",
			prefix:              mp4Bytes,
			expectedContentType: "video/mp4",
			expectedExt:         ".mp4",
		},
		{
			name:                "pdf accepted for lesson material",
			purpose:             models.PurposeLessonMaterial,
			filename:            "notes.pdf",
			prefix:              pdfBytes,
			expectedContentType: "application/pdf",
			expectedExt:         ".pdf",
		},
		{
			name:                "plain text with txt extension accepted for material",
			purpose:             models.PurposeLessonMaterial,
			filename:            "notes.txt",
			prefix:              []byte("just some notes"),
			expectedContentType: "text/plain",
			expectedExt:         ".txt",
		},
		{
			name:                "markdown accepted for material",
			purpose:             models.PurposeLessonMaterial,
			filename:            "README.md",
			prefix:              []byte("# heading"),
			expectedContentType: "text/markdown",
			expectedExt:         ".md",
		},
		{
			name:          "plain text named png rejected for cover",
			purpose:       models.PurposeCourseCover,
			filename:      "photo.png",
			prefix:        []byte("not really an image"),
			expectedError: true,
		},
		{
			name:          "plain text rejected for video purpose",
			purpose:       models.PurposeLessonVideo,
			filename:      "video.txt",
			prefix:        []byte("not a video"),
			expectedError: true,
		},
		{
			name:          "unknown content with unsafe extension rejected for material",
			purpose:       models.PurposeLessonMaterial,
			filename:      "archive.zip",
			prefix:        []byte("random bytes"),
			expectedError: true,
		},
		{
			name:          "executable rejected for cover",
			purpose:       models.PurposeCourseCover,
			filename:      "photo.jpg",
			prefix:        mzBytes,
			expectedError: true,
		},
		{
			name:          "pdf rejected for image purpose",
			purpose:       models.PurposeCourseCover,
			filename:      "doc.pdf",
			prefix:        pdfBytes,
			expectedError: true,
		},
		{
			name:          "image rejected for video purpose",
			purpose:       models.PurposeLessonVideo,
			filename:      "frame.png",
			prefix:        pngBytes,
			expectedError: true,
		},
		{
			name:          "dangerous extension rejected even with valid image bytes",
			purpose:       models.PurposeCourseCover,
			filename:      "photo.exe",
			prefix:        pngBytes,
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := sniff.Detect(tt.prefix)

			contentType, ext, err := validateUpload(tt.purpose, tt.filename, res)

			if tt.expectedError {
				assert.ErrorIs(t, err, ErrInvalidFileType)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedContentType, contentType)
			assert.Equal(t, tt.expectedExt, ext)
		})
	}
}

func TestValidateUpload_ExecutableRejectedForEveryPurpose(t *testing.T) {
	purposes := []models.AssetPurpose{
		models.PurposeCourseCover,
		models.PurposeCourseIntroVideo,
		models.PurposeLessonVideo,
		models.PurposeLessonMaterial,
	}
	res := sniff.Detect(mzBytes)

	for _, purpose := range purposes {
		t.Run(string(purpose), func(t *testing.T) {
			_, _, err := validateUpload(purpose, "innocent.jpg", res)
			assert.ErrorIs(t, err, ErrInvalidFileType)
		})
	}
}

func TestAssetService_PublishAsset(t *testing.T) {
	tests := []struct {
		name          string
		entity        models.EntityPath
		purpose       models.AssetPurpose
		filename      string
		content       []byte
		maxSize       int64
		repo          *mockAssetRepository
		storage       *mockStorage
		expectedError error
		checkAsset    func(t *testing.T, asset *models.Asset)
	}{
		{
			name:     "png cover published",
			entity:   models.CoursePath("c1"),
			purpose:  models.PurposeCourseCover,
			filename: "anything.bin",
			content:  pngBytes,
			maxSize:  1 << 20,
			repo:     &mockAssetRepository{},
			storage:  &mockStorage{},
			checkAsset: func(t *testing.T, asset *models.Asset) {
				assert.Equal(t, filepath.Join("courses", "c1", "cover.png"), asset.Path)
				assert.Equal(t, "image/png", asset.ContentType)
				assert.Equal(t, models.CategoryImage, asset.Category)
				assert.Equal(t, int64(len(pngBytes)), asset.Size)
				assert.Equal(t, "http://example.com/api/v1/courses/c1/cover", asset.URL)
			},
		},
		{
			name:     "lesson video published",
			entity:   models.LessonPath("c1", "m1", "cl1"),
			purpose:  models.PurposeLessonVideo,
			filename: "lecture.mp4",
			content:  mp4Bytes,
			maxSize:  1 << 20,
			repo:     &mockAssetRepository{},
			storage:  &mockStorage{},
			checkAsset: func(t *testing.T, asset *models.Asset) {
				assert.Equal(t, filepath.Join("courses", "c1", "modules", "m1", "classes", "cl1", "video.mp4"), asset.Path)
				assert.Equal(t, "video/mp4", asset.ContentType)
				assert.Equal(t, models.CategoryVideo, asset.Category)
			},
		},
		{
			name:     "text material stored as document",
			entity:   models.LessonPath("c1", "m1", "cl1"),
			purpose:  models.PurposeLessonMaterial,
			filename: "notes.txt",
			content:  []byte("plain text notes"),
			maxSize:  1 << 20,
			repo:     &mockAssetRepository{},
			storage:  &mockStorage{},
			checkAsset: func(t *testing.T, asset *models.Asset) {
				assert.Equal(t, filepath.Join("courses", "c1", "modules", "m1", "classes", "cl1", "material.txt"), asset.Path)
				assert.Equal(t, "text/plain", asset.ContentType)
				assert.Equal(t, models.CategoryDocument, asset.Category)
			},
		},
		{
			name:          "executable rejected",
			entity:        models.CoursePath("c1"),
			purpose:       models.PurposeCourseCover,
			filename:      "photo.jpg",
			content:       mzBytes,
			maxSize:       1 << 20,
			repo:          &mockAssetRepository{},
			storage:       &mockStorage{},
			expectedError: ErrInvalidFileType,
		},
		{
			name:          "empty stream rejected",
			entity:        models.CoursePath("c1"),
			purpose:       models.PurposeCourseCover,
			filename:      "photo.png",
			content:       nil,
			maxSize:       1 << 20,
			repo:          &mockAssetRepository{},
			storage:       &mockStorage{},
			expectedError: ErrMissingFile,
		},
		{
			name:          "oversized stream rejected",
			entity:        models.CoursePath("c1"),
			purpose:       models.PurposeCourseCover,
			filename:      "photo.png",
			content:       pngBytes,
			maxSize:       4,
			repo:          &mockAssetRepository{},
			storage:       &mockStorage{},
			expectedError: ErrFileTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAssetService(tt.repo, tt.storage, "http://example.com")

			asset, err := svc.PublishAsset(context.Background(), tt.entity, tt.purpose, tt.filename, strings.NewReader(string(tt.content)), tt.maxSize)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, asset)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, asset)
			if tt.checkAsset != nil {
				tt.checkAsset(t, asset)
			}

			// The stored bytes are exactly the uploaded bytes
			assert.Equal(t, tt.content, tt.storage.written[asset.Path])
			// The catalog received the same record
			assert.Equal(t, asset, tt.repo.upserted)
		})
	}
}

func TestAssetService_PublishAsset_CleanupOnCatalogError(t *testing.T) {
	// The published file must not outlive a failed catalog write
	repo := &mockAssetRepository{upsertErr: errors.New("catalog failed")}
	store := &mockStorage{}
	svc := NewAssetService(repo, store, "http://example.com")

	_, err := svc.PublishAsset(context.Background(), models.CoursePath("c1"), models.PurposeCourseCover, "photo.png", strings.NewReader(string(pngBytes)), 1<<20)

	require.Error(t, err)
	assert.True(t, store.removeCalled, "Storage.Remove should be called when cataloging fails")
	assert.Equal(t, filepath.Join("courses", "c1", "cover.png"), store.removedPath)
}

func TestAssetService_PublishAsset_FormatChangeRemovesStaleFile(t *testing.T) {
	// Replacing a PNG cover with a JPEG moves the canonical path, so the
	// old file must not be left behind: one stored file per entity and
	// purpose at any time.
	base := t.TempDir()
	repo := &mockAssetRepository{}
	svc := NewAssetService(repo, storage.NewLocalStorage(base), "http://example.com")
	entity := models.CoursePath("c1")

	first, err := svc.PublishAsset(context.Background(), entity, models.PurposeCourseCover, "cover.png", strings.NewReader(string(pngBytes)), 1<<20)
	require.NoError(t, err)

	second, err := svc.PublishAsset(context.Background(), entity, models.PurposeCourseCover, "cover.jpg", strings.NewReader(string(jpegBytes)), 1<<20)
	require.NoError(t, err)
	require.NotEqual(t, first.Path, second.Path)

	entries, err := os.ReadDir(filepath.Join(base, "courses", "c1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cover.jpg", entries[0].Name())
}

func TestAssetService_PublishAsset_SameFormatKeepsSinglePath(t *testing.T) {
	repo := &mockAssetRepository{asset: &models.Asset{
		CourseID: "c1",
		Purpose:  models.PurposeCourseCover,
		Path:     filepath.Join("courses", "c1", "cover.png"),
	}}
	store := &mockStorage{}
	svc := NewAssetService(repo, store, "http://example.com")

	asset, err := svc.PublishAsset(context.Background(), models.CoursePath("c1"), models.PurposeCourseCover, "v2.png", strings.NewReader(string(pngBytes)), 1<<20)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join("courses", "c1", "cover.png"), asset.Path)
	// Same path: the atomic rename already replaced the file, nothing to remove
	assert.False(t, store.removeCalled)
}

func TestAssetService_GetAsset(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		want := &models.Asset{CourseID: "c1", Purpose: models.PurposeCourseCover, ContentType: "image/png"}
		svc := NewAssetService(&mockAssetRepository{asset: want}, &mockStorage{}, "http://example.com")

		got, err := svc.GetAsset(context.Background(), models.CoursePath("c1"), models.PurposeCourseCover)

		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("not found", func(t *testing.T) {
		svc := NewAssetService(&mockAssetRepository{}, &mockStorage{}, "http://example.com")

		_, err := svc.GetAsset(context.Background(), models.CoursePath("c1"), models.PurposeCourseCover)

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("repository error", func(t *testing.T) {
		svc := NewAssetService(&mockAssetRepository{getErr: errors.New("db down")}, &mockStorage{}, "http://example.com")

		_, err := svc.GetAsset(context.Background(), models.CoursePath("c1"), models.PurposeCourseCover)

		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestAssetService_RemoveEntityAssets(t *testing.T) {
	t.Run("removes subtree and catalog rows", func(t *testing.T) {
		repo := &mockAssetRepository{}
		store := &mockStorage{}
		svc := NewAssetService(repo, store, "http://example.com")
		entity := models.CoursePath("c1")

		err := svc.RemoveEntityAssets(context.Background(), entity)

		require.NoError(t, err)
		assert.True(t, store.removeDirCalled)
		assert.Equal(t, filepath.Join("courses", "c1"), store.removedDir)
		assert.True(t, repo.deleteCalled)
		assert.Equal(t, entity, repo.deletedPath)
	})

	t.Run("storage error propagates", func(t *testing.T) {
		repo := &mockAssetRepository{}
		store := &mockStorage{removeDirErr: errors.New("disk fault")}
		svc := NewAssetService(repo, store, "http://example.com")

		err := svc.RemoveEntityAssets(context.Background(), models.CoursePath("c1"))

		assert.Error(t, err)
		assert.False(t, repo.deleteCalled)
	})
}

// Round-trip against real local storage: bytes served back are byte-identical
// to the most recently published upload.
func TestAssetService_RoundTripWithLocalStorage(t *testing.T) {
	repo := &mockAssetRepository{}
	store := storage.NewLocalStorage(t.TempDir())
	svc := NewAssetService(repo, store, "http://example.com")
	entity := models.LessonPath("c1", "m1", "cl1")

	first, err := svc.PublishAsset(context.Background(), entity, models.PurposeLessonMaterial, "v1.pdf", strings.NewReader(string(pdfBytes)), 1<<20)
	require.NoError(t, err)

	// Re-upload replaces the first version at the same path
	second := append([]byte("%PDF-1.7 "), []byte("revised edition")...)
	updated, err := svc.PublishAsset(context.Background(), entity, models.PurposeLessonMaterial, "v2.pdf", strings.NewReader(string(second)), 1<<20)
	require.NoError(t, err)
	assert.Equal(t, first.Path, updated.Path)

	file, asset, err := svc.OpenAsset(context.Background(), entity, models.PurposeLessonMaterial)
	require.NoError(t, err)
	defer file.Close()

	got, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, second, got)
	assert.Equal(t, "application/pdf", asset.ContentType)
}
