package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	authMiddleware "github.com/coursehub/asset-service/internal/auth/middleware"
	"github.com/coursehub/asset-service/internal/config"
	"github.com/coursehub/asset-service/internal/models"
	"github.com/coursehub/asset-service/internal/services"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// multipartMemoryLimit is the in-memory threshold for multipart parsing;
// larger parts spill to disk.
const multipartMemoryLimit = 32 << 20

// multipartOverhead is the allowance for multipart framing and form
// fields on top of the file's own size cap.
const multipartOverhead = 1 << 20

// AssetService defines the interface for asset operations
type AssetService interface {
	// PublishAsset sniffs, validates and persists one upload, replacing
	// any prior asset for the same entity and purpose
	PublishAsset(ctx context.Context, entity models.EntityPath, purpose models.AssetPurpose, filename string, r io.Reader, maxSize int64) (*models.Asset, error)

	// OpenAsset opens a published asset and its catalog record
	OpenAsset(ctx context.Context, entity models.EntityPath, purpose models.AssetPurpose) (*os.File, *models.Asset, error)

	// GetAsset retrieves the catalog record for an entity/purpose pair
	GetAsset(ctx context.Context, entity models.EntityPath, purpose models.AssetPurpose) (*models.Asset, error)

	// RemoveEntityAssets removes all assets at or below the entity
	RemoveEntityAssets(ctx context.Context, entity models.EntityPath) error
}

// AccessChecker is the collaborator that decides ownership and
// enrollment. This service never queries course records itself.
type AccessChecker interface {
	// CanManage reports whether the requester may upload or replace
	// assets of the course
	CanManage(ctx context.Context, userID int, courseID string) (bool, error)

	// CanView reports whether the requester may download assets of the
	// course
	CanView(ctx context.Context, userID int, courseID string) (bool, error)
}

// AssetHandler handles asset-related HTTP requests
type AssetHandler struct {
	BaseHandler
	assetService AssetService
	access       AccessChecker
	limits       config.UploadConfig
}

// NewAssetHandler creates a new asset handler
func NewAssetHandler(assetService AssetService, access AccessChecker, limits config.UploadConfig, logger *zap.Logger) *AssetHandler {
	return &AssetHandler{
		BaseHandler:  BaseHandler{Logger: logger},
		assetService: assetService,
		access:       access,
		limits:       limits,
	}
}

// coursePath extracts the course-scoped entity path from the URL
func coursePath(r *http.Request) models.EntityPath {
	return models.CoursePath(chi.URLParam(r, "courseID"))
}

// lessonPath extracts the lesson-scoped entity path from the URL
func lessonPath(r *http.Request) models.EntityPath {
	return models.LessonPath(
		chi.URLParam(r, "courseID"),
		chi.URLParam(r, "moduleID"),
		chi.URLParam(r, "classID"),
	)
}

// UploadCourseCover handles POST /courses/{courseID}/cover
// @Summary Upload course cover image
// @Description Upload a cover image for a course. The file's true type is sniffed from its bytes; only images are accepted. Replaces any existing cover.
// @Tags assets
// @Accept multipart/form-data
// @Produce json
// @Param courseID path string true "Course ID"
// @Param coverImage formData file true "Cover image"
// @Success 201 {object} models.Asset
// @Failure 400 {object} map[string]string "Invalid file type or size"
// @Failure 401 {object} map[string]string "Authentication required"
// @Failure 403 {object} map[string]string "Not allowed to manage this course"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /courses/{courseID}/cover [post]
func (h *AssetHandler) UploadCourseCover(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, coursePath(r), models.PurposeCourseCover, "coverImage", h.limits.MaxCoverSize)
}

// UploadCourseIntro handles POST /courses/{courseID}/intro
func (h *AssetHandler) UploadCourseIntro(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, coursePath(r), models.PurposeCourseIntroVideo, "file", h.limits.MaxIntroSize)
}

// UploadLessonVideo handles POST /courses/{courseID}/modules/{moduleID}/classes/{classID}/video
func (h *AssetHandler) UploadLessonVideo(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, lessonPath(r), models.PurposeLessonVideo, "file", h.limits.MaxVideoSize)
}

// UploadLessonMaterial handles POST /courses/{courseID}/modules/{moduleID}/classes/{classID}/material
func (h *AssetHandler) UploadLessonMaterial(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, lessonPath(r), models.PurposeLessonMaterial, "file", h.limits.MaxMaterialSize)
}

// upload runs the shared multipart upload flow for all purposes
func (h *AssetHandler) upload(w http.ResponseWriter, r *http.Request, entity models.EntityPath, purpose models.AssetPurpose, field string, maxSize int64) {
	userID, _ := authMiddleware.GetUserID(r.Context())

	allowed, err := h.access.CanManage(r.Context(), userID, entity.CourseID)
	if err != nil {
		h.Logger.Error("access check failed", zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "failed to check access")
		return
	}
	if !allowed {
		h.RespondError(w, http.StatusForbidden, "not allowed to manage this course")
		return
	}

	// Bound the body at this purpose's cap so an oversized upload is
	// refused without reading the whole stream; the router-level limit
	// only knows the largest cap across all purposes.
	limit := maxSize + multipartOverhead
	if r.ContentLength > limit {
		h.RespondError(w, http.StatusRequestEntityTooLarge, services.ErrFileTooLarge.Error())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.RespondError(w, http.StatusRequestEntityTooLarge, services.ErrFileTooLarge.Error())
			return
		}
		h.Logger.Info("failed to parse multipart form", zap.Error(err))
		h.RespondError(w, http.StatusBadRequest, "failed to parse request")
		return
	}

	file, fileHeader, err := r.FormFile(field)
	if err != nil {
		h.RespondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	asset, err := h.assetService.PublishAsset(r.Context(), entity, purpose, fileHeader.Filename, file, maxSize)
	if err != nil {
		h.respondServiceError(w, err, "upload")
		return
	}

	h.RespondJSON(w, http.StatusCreated, asset)
}

// DownloadCourseCover handles GET /courses/{courseID}/cover
// @Summary Download course cover image
// @Description Stream the stored cover image. The content type is the one recorded when the upload was accepted.
// @Tags assets
// @Produce application/octet-stream
// @Param courseID path string true "Course ID"
// @Success 200 "File content"
// @Failure 401 {object} map[string]string "Authentication required"
// @Failure 403 {object} map[string]string "Not allowed to view this course"
// @Failure 404 {object} map[string]string "Asset not found"
// @Router /courses/{courseID}/cover [get]
func (h *AssetHandler) DownloadCourseCover(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, coursePath(r), models.PurposeCourseCover)
}

// DownloadCourseIntro handles GET /courses/{courseID}/intro
func (h *AssetHandler) DownloadCourseIntro(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, coursePath(r), models.PurposeCourseIntroVideo)
}

// DownloadLessonVideo handles GET /courses/{courseID}/modules/{moduleID}/classes/{classID}/video
func (h *AssetHandler) DownloadLessonVideo(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, lessonPath(r), models.PurposeLessonVideo)
}

// DownloadLessonMaterial handles GET /courses/{courseID}/modules/{moduleID}/classes/{classID}/material
func (h *AssetHandler) DownloadLessonMaterial(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, lessonPath(r), models.PurposeLessonMaterial)
}

// serve streams a published asset with range support. The response
// content type comes from the catalog record made at write time, never
// from the filename.
func (h *AssetHandler) serve(w http.ResponseWriter, r *http.Request, entity models.EntityPath, purpose models.AssetPurpose) {
	if !h.authorizeView(w, r, entity.CourseID) {
		return
	}

	file, asset, err := h.assetService.OpenAsset(r.Context(), entity, purpose)
	if err != nil {
		h.respondServiceError(w, err, "download")
		return
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		h.Logger.Error("failed to stat asset file", zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "failed to open file")
		return
	}

	// ServeContent keeps a pre-set Content-Type and handles range
	// requests, which video playback depends on.
	w.Header().Set("Content-Type", asset.ContentType)
	http.ServeContent(w, r, filepath.Base(asset.Path), fileInfo.ModTime(), file)
}

// GetCourseCoverMeta handles GET /courses/{courseID}/cover/meta
func (h *AssetHandler) GetCourseCoverMeta(w http.ResponseWriter, r *http.Request) {
	h.meta(w, r, coursePath(r), models.PurposeCourseCover)
}

// GetCourseIntroMeta handles GET /courses/{courseID}/intro/meta
func (h *AssetHandler) GetCourseIntroMeta(w http.ResponseWriter, r *http.Request) {
	h.meta(w, r, coursePath(r), models.PurposeCourseIntroVideo)
}

// GetLessonVideoMeta handles GET /courses/{courseID}/modules/{moduleID}/classes/{classID}/video/meta
func (h *AssetHandler) GetLessonVideoMeta(w http.ResponseWriter, r *http.Request) {
	h.meta(w, r, lessonPath(r), models.PurposeLessonVideo)
}

// GetLessonMaterialMeta handles GET /courses/{courseID}/modules/{moduleID}/classes/{classID}/material/meta
func (h *AssetHandler) GetLessonMaterialMeta(w http.ResponseWriter, r *http.Request) {
	h.meta(w, r, lessonPath(r), models.PurposeLessonMaterial)
}

// meta is gated like downloads: the catalog record exposes the asset's
// URL, size and type, which enrollment-restricted deployments must not
// leak to non-viewers.
func (h *AssetHandler) meta(w http.ResponseWriter, r *http.Request, entity models.EntityPath, purpose models.AssetPurpose) {
	if !h.authorizeView(w, r, entity.CourseID) {
		return
	}

	asset, err := h.assetService.GetAsset(r.Context(), entity, purpose)
	if err != nil {
		h.respondServiceError(w, err, "metadata")
		return
	}

	h.RespondJSON(w, http.StatusOK, asset)
}

// authorizeView runs the CanView check and writes the response on
// failure. Returns true when the request may proceed.
func (h *AssetHandler) authorizeView(w http.ResponseWriter, r *http.Request, courseID string) bool {
	userID, _ := authMiddleware.GetUserID(r.Context())

	allowed, err := h.access.CanView(r.Context(), userID, courseID)
	if err != nil {
		h.Logger.Error("access check failed", zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "failed to check access")
		return false
	}
	if !allowed {
		h.RespondError(w, http.StatusForbidden, "not allowed to view this course")
		return false
	}
	return true
}

// RemoveCourseAssets handles DELETE /courses/{courseID}/assets
// @Summary Remove all assets of a course
// @Description Cascade cleanup called by the course CRUD service when a course is deleted. Requires API key authentication.
// @Tags assets
// @Param courseID path string true "Course ID"
// @Param X-API-Key header string true "API Key"
// @Success 204 "Assets removed"
// @Failure 401 {object} map[string]string "Authentication required"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /courses/{courseID}/assets [delete]
func (h *AssetHandler) RemoveCourseAssets(w http.ResponseWriter, r *http.Request) {
	h.removeAssets(w, r, coursePath(r))
}

// RemoveModuleAssets handles DELETE /courses/{courseID}/modules/{moduleID}/assets
func (h *AssetHandler) RemoveModuleAssets(w http.ResponseWriter, r *http.Request) {
	entity := models.EntityPath{
		CourseID: chi.URLParam(r, "courseID"),
		ModuleID: chi.URLParam(r, "moduleID"),
	}
	h.removeAssets(w, r, entity)
}

// RemoveClassAssets handles DELETE /courses/{courseID}/modules/{moduleID}/classes/{classID}/assets
func (h *AssetHandler) RemoveClassAssets(w http.ResponseWriter, r *http.Request) {
	h.removeAssets(w, r, lessonPath(r))
}

func (h *AssetHandler) removeAssets(w http.ResponseWriter, r *http.Request, entity models.EntityPath) {
	if err := h.assetService.RemoveEntityAssets(r.Context(), entity); err != nil {
		h.Logger.Error("failed to remove entity assets",
			zap.String("course_id", entity.CourseID),
			zap.String("module_id", entity.ModuleID),
			zap.String("class_id", entity.ClassID),
			zap.Error(err),
		)
		h.RespondError(w, http.StatusInternalServerError, "failed to remove assets")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// respondServiceError maps service errors to HTTP responses. User-correctable
// rejections surface their reason; internal faults are logged and returned
// generically without filesystem details.
func (h *AssetHandler) respondServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, services.ErrInvalidFileType),
		errors.Is(err, services.ErrFileTooLarge),
		errors.Is(err, services.ErrMissingFile):
		h.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		h.RespondError(w, http.StatusNotFound, "asset not found")
	default:
		h.Logger.Error("asset operation failed", zap.String("op", op), zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
