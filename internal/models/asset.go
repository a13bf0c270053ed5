package models

import "time"

// AssetPurpose identifies what an uploaded file is used for.
// The purpose determines which content categories are accepted
// and where the file is stored on disk.
type AssetPurpose string

const (
	PurposeCourseCover      AssetPurpose = "course_cover"
	PurposeCourseIntroVideo AssetPurpose = "course_intro_video"
	PurposeLessonVideo      AssetPurpose = "lesson_video"
	PurposeLessonMaterial   AssetPurpose = "lesson_material"
)

// Valid reports whether the purpose is one of the known asset purposes.
func (p AssetPurpose) Valid() bool {
	switch p {
	case PurposeCourseCover, PurposeCourseIntroVideo, PurposeLessonVideo, PurposeLessonMaterial:
		return true
	default:
		return false
	}
}

// LessonScoped reports whether assets of this purpose belong to a class
// inside a module, as opposed to the course itself.
func (p AssetPurpose) LessonScoped() bool {
	return p == PurposeLessonVideo || p == PurposeLessonMaterial
}

// ContentCategory is the canonical classification of an uploaded byte
// stream, derived from its leading bytes rather than client metadata.
type ContentCategory string

const (
	CategoryImage      ContentCategory = "image"
	CategoryVideo      ContentCategory = "video"
	CategoryDocument   ContentCategory = "document"
	CategoryUnknown    ContentCategory = "unknown"
	CategoryDisallowed ContentCategory = "disallowed"
)

// EntityPath identifies which node of the course hierarchy an asset
// belongs to. ModuleID and ClassID are set only for lesson-scoped
// assets; course-scoped assets use CourseID alone.
type EntityPath struct {
	CourseID string `json:"courseId"`
	ModuleID string `json:"moduleId,omitempty"`
	ClassID  string `json:"classId,omitempty"`
}

// CoursePath returns an EntityPath scoped to a course.
func CoursePath(courseID string) EntityPath {
	return EntityPath{CourseID: courseID}
}

// LessonPath returns an EntityPath scoped to a class within a module.
func LessonPath(courseID, moduleID, classID string) EntityPath {
	return EntityPath{CourseID: courseID, ModuleID: moduleID, ClassID: classID}
}

// Asset represents a published asset record in the catalog.
// At most one asset exists per (EntityPath, AssetPurpose) at any time;
// a new accepted upload for the same pair replaces the prior record.
type Asset struct {
	CourseID    string          `json:"courseId" db:"course_id"`
	ModuleID    string          `json:"moduleId,omitempty" db:"module_id"`
	ClassID     string          `json:"classId,omitempty" db:"class_id"`
	Purpose     AssetPurpose    `json:"purpose" db:"purpose"`
	Path        string          `json:"-" db:"path"`
	ContentType string          `json:"contentType" db:"content_type"`
	Category    ContentCategory `json:"category" db:"category"`
	Size        int64           `json:"size" db:"size"`
	URL         string          `json:"url" db:"url"`
	UploadedAt  time.Time       `json:"uploadedAt" db:"uploaded_at"`
}

// EntityPath returns the hierarchy node the asset belongs to.
func (a *Asset) EntityPath() EntityPath {
	return EntityPath{CourseID: a.CourseID, ModuleID: a.ModuleID, ClassID: a.ClassID}
}
