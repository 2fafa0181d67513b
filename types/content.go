package types

import "time"

// Index is a top-level content category owned by a trainer or crm user.
type Index struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedBy   int64     `json:"created_by" db:"created_by"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CourseCount int       `json:"course_count" db:"-"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Course is a unit of content under an Index. CreatedBy always equals the
// owning Index's CreatedBy.
type Course struct {
	ID           int64     `json:"id" db:"id"`
	IndexID      int64     `json:"index_id" db:"index_id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	ThumbnailURL string    `json:"thumbnail_url" db:"thumbnail_url"`
	CreatedBy    int64     `json:"created_by" db:"created_by"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// IndexFilter narrows index listings. Zero-valued fields do not filter.
type IndexFilter struct {
	IDs        []int64
	OwnerID    *int64
	ActiveOnly bool
}

// CourseFilter narrows course listings. Zero-valued fields do not filter.
type CourseFilter struct {
	IDs        []int64
	IndexIDs   []int64
	OwnerID    *int64
	ActiveOnly bool
}

// Section is an ordered grouping of lectures within a course.
type Section struct {
	ID         int64     `json:"id" db:"id"`
	CourseID   int64     `json:"course_id" db:"course_id"`
	Title      string    `json:"title" db:"title"`
	OrderIndex int       `json:"order_index" db:"order_index"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Lecture is the atomic learning unit. It carries exactly one video source:
// a YouTube URL or a stored video object.
type Lecture struct {
	ID               int64     `json:"id" db:"id"`
	SectionID        int64     `json:"section_id" db:"section_id"`
	Title            string    `json:"title" db:"title"`
	Description      string    `json:"description" db:"description"`
	YouTubeURL       *string   `json:"youtube_url" db:"youtube_url"`
	VideoStoragePath *string   `json:"video_storage_path" db:"video_storage_path"`
	VideoMimeType    *string   `json:"video_mime_type" db:"video_mime_type"`
	OrderIndex       int       `json:"order_index" db:"order_index"`
	DurationSeconds  int       `json:"duration_seconds" db:"duration_seconds"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// HasVideo reports whether a video source is set.
func (l Lecture) HasVideo() bool {
	return (l.YouTubeURL != nil && *l.YouTubeURL != "") || (l.VideoStoragePath != nil && *l.VideoStoragePath != "")
}

// LectureRef is the slice of a lecture needed for progress rollups.
type LectureRef struct {
	ID              int64 `json:"id" db:"id"`
	CourseID        int64 `json:"course_id" db:"course_id"`
	DurationSeconds int   `json:"duration_seconds" db:"duration_seconds"`
}

// LectureFile is a downloadable attachment on a lecture.
type LectureFile struct {
	ID          int64     `json:"id" db:"id"`
	LectureID   int64     `json:"lecture_id" db:"lecture_id"`
	FileName    string    `json:"file_name" db:"file_name"`
	StoragePath string    `json:"storage_path" db:"storage_path"`
	FileSize    int64     `json:"file_size" db:"file_size"`
	FileType    string    `json:"file_type" db:"file_type"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ContentTrace is the ownership chain of a section, lecture or file, resolved
// up to its course and index.
type ContentTrace struct {
	IndexID      int64 `json:"index_id"`
	CourseID     int64 `json:"course_id"`
	SectionID    int64 `json:"section_id,omitempty"`
	LectureID    int64 `json:"lecture_id,omitempty"`
	OwnerID      int64 `json:"owner_id"`
	CourseActive bool  `json:"course_active"`
}

// CourseDetail is a course with its full section/lecture/file tree.
type CourseDetail struct {
	Course
	ThumbnailLink string          `json:"thumbnail_link,omitempty"`
	Index         Index           `json:"index"`
	Sections      []SectionDetail `json:"sections"`
}

// IndexDetail is an index with the courses the caller may see.
type IndexDetail struct {
	Index
	Courses []Course `json:"courses"`
}

// SectionDetail is a section with its ordered lectures.
type SectionDetail struct {
	Section
	Lectures []LectureDetail `json:"lectures"`
}

// LectureDetail is a lecture with files, playback URL and the caller's progress.
type LectureDetail struct {
	Lecture
	VideoURL string           `json:"video_url,omitempty"`
	Files    []LectureFile    `json:"files"`
	Progress *LectureProgress `json:"progress,omitempty"`
}
