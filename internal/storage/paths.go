package storage

import (
	"fmt"
	"path/filepath"

	"github.com/coursehub/asset-service/internal/models"
)

// ResolvePath maps an entity path and purpose to the canonical storage
// location, relative to the storage base path. It is a pure function of
// its inputs: re-resolving for the same identifiers and purpose always
// yields the same path, which is what makes overwrite-on-reupload
// well-defined.
//
// ext is the canonical extension of the accepted content (including the
// leading dot), never the client-supplied one.
//
// Layout:
//
//	courses/{courseID}/cover{ext}
//	courses/{courseID}/intro{ext}
//	courses/{courseID}/modules/{moduleID}/classes/{classID}/video{ext}
//	courses/{courseID}/modules/{moduleID}/classes/{classID}/material{ext}
func ResolvePath(entity models.EntityPath, purpose models.AssetPurpose, ext string) (string, error) {
	if entity.CourseID == "" {
		return "", fmt.Errorf("course id is required")
	}
	if purpose.LessonScoped() && (entity.ModuleID == "" || entity.ClassID == "") {
		return "", fmt.Errorf("module id and class id are required for purpose %q", purpose)
	}
	if !purpose.LessonScoped() && (entity.ModuleID != "" || entity.ClassID != "") {
		return "", fmt.Errorf("purpose %q is course-scoped", purpose)
	}

	switch purpose {
	case models.PurposeCourseCover:
		return filepath.Join("courses", entity.CourseID, "cover"+ext), nil
	case models.PurposeCourseIntroVideo:
		return filepath.Join("courses", entity.CourseID, "intro"+ext), nil
	case models.PurposeLessonVideo:
		return filepath.Join(classDir(entity), "video"+ext), nil
	case models.PurposeLessonMaterial:
		return filepath.Join(classDir(entity), "material"+ext), nil
	default:
		return "", fmt.Errorf("unknown asset purpose %q", purpose)
	}
}

// EntityDir returns the directory subtree holding all assets of the
// entity, relative to the storage base path. Removing this directory
// removes every asset at or below the entity, which is what cascade
// deletion of a course, module or class relies on.
func EntityDir(entity models.EntityPath) (string, error) {
	if entity.CourseID == "" {
		return "", fmt.Errorf("course id is required")
	}
	if entity.ClassID != "" && entity.ModuleID == "" {
		return "", fmt.Errorf("class id without module id")
	}

	switch {
	case entity.ClassID != "":
		return classDir(entity), nil
	case entity.ModuleID != "":
		return filepath.Join("courses", entity.CourseID, "modules", entity.ModuleID), nil
	default:
		return filepath.Join("courses", entity.CourseID), nil
	}
}

func classDir(entity models.EntityPath) string {
	return filepath.Join("courses", entity.CourseID, "modules", entity.ModuleID, "classes", entity.ClassID)
}
