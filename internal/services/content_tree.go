package services

import (
	"context"
	"net/url"
	"strings"

	"github.com/lumen-lms/apiserver/internal/access"
	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/storage"
	"github.com/lumen-lms/apiserver/internal/store"
	"github.com/lumen-lms/apiserver/types"
)

type SectionInput struct {
	CourseID   int64  `json:"course_id" validate:"required,gt=0"`
	Title      string `json:"title" validate:"required,max=200"`
	OrderIndex int    `json:"order_index" validate:"gte=0"`
}

type SectionPatch struct {
	Title      *string `json:"title" validate:"omitempty,min=1,max=200"`
	OrderIndex *int    `json:"order_index" validate:"omitempty,gt=0"`
}

type LectureInput struct {
	SectionID        int64  `json:"section_id" validate:"required,gt=0"`
	Title            string `json:"title" validate:"required,max=200"`
	Description      string `json:"description" validate:"max=10000"`
	YouTubeURL       string `json:"youtube_url" validate:"omitempty,url"`
	VideoStoragePath string `json:"video_storage_path"`
	VideoMimeType    string `json:"video_mime_type"`
	DurationSeconds  int    `json:"duration_seconds" validate:"gte=0"`
	OrderIndex       int    `json:"order_index" validate:"gte=0"`
}

// LecturePatch edits a lecture. Setting one video source clears the other;
// an empty string clears a source.
type LecturePatch struct {
	Title            *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description      *string `json:"description" validate:"omitempty,max=10000"`
	YouTubeURL       *string `json:"youtube_url"`
	VideoStoragePath *string `json:"video_storage_path"`
	VideoMimeType    *string `json:"video_mime_type"`
	DurationSeconds  *int    `json:"duration_seconds" validate:"omitempty,gte=0"`
	OrderIndex       *int    `json:"order_index" validate:"omitempty,gt=0"`
}

var youtubeHosts = map[string]struct{}{
	"youtube.com":              {},
	"www.youtube.com":          {},
	"m.youtube.com":            {},
	"youtu.be":                 {},
	"youtube-nocookie.com":     {},
	"www.youtube-nocookie.com": {},
}

func validateYouTubeURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return apperr.Validation("youtube_url must be a valid URL")
	}
	if _, ok := youtubeHosts[strings.ToLower(u.Hostname())]; !ok {
		return apperr.Validation("youtube_url must point to YouTube")
	}
	return nil
}

// validateVideo enforces a single video source on a lecture.
func validateVideo(lecture types.Lecture) error {
	yt := lecture.YouTubeURL != nil && *lecture.YouTubeURL != ""
	stored := lecture.VideoStoragePath != nil && *lecture.VideoStoragePath != ""
	if yt && stored {
		return apperr.Validation("a lecture has either a youtube_url or an uploaded video, not both")
	}
	if yt {
		return validateYouTubeURL(*lecture.YouTubeURL)
	}
	if stored && !storage.HasPrefix(*lecture.VideoStoragePath, storage.PrefixVideos) {
		return apperr.Validation("video_storage_path must reference an uploaded video")
	}
	return nil
}

// checkMediaOwner rejects a stored key that ownerID did not upload.
func checkMediaOwner(key, prefix string, ownerID int64, field string) error {
	if uploader, ok := storage.OwnerOf(key, prefix); !ok || uploader != ownerID {
		return apperr.Validation("%s must reference an upload of the course owner", field)
	}
	return nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func (s *ContentService) CreateSection(ctx context.Context, actor types.User, in SectionInput) (types.Section, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateStruct(in); err != nil {
		return types.Section{}, err
	}
	course, err := s.courses.Get(ctx, in.CourseID)
	if err != nil {
		return types.Section{}, lookupErr(err, "course")
	}
	if err := s.authorize(ctx, actor, access.ActionCreate, access.CourseNode(course), course.ID); err != nil {
		return types.Section{}, err
	}
	section, err := s.sections.Create(ctx, types.Section{
		CourseID:   course.ID,
		Title:      in.Title,
		OrderIndex: in.OrderIndex,
	})
	if err != nil {
		return types.Section{}, storeErr(err, "section", "order_index is already used in this course")
	}
	s.activity.Record(ctx, actor.ID, ActivityCreate, "section", section.ID, map[string]any{"course_id": course.ID})
	return section, nil
}

func (s *ContentService) UpdateSection(ctx context.Context, actor types.User, id int64, patch SectionPatch) (types.Section, error) {
	if err := validateStruct(patch); err != nil {
		return types.Section{}, err
	}
	trace, err := s.sections.Trace(ctx, id)
	if err != nil {
		return types.Section{}, lookupErr(err, "section")
	}
	if err := s.authorize(ctx, actor, access.ActionUpdate, access.TracedNode(access.KindSection, id, trace), trace.CourseID); err != nil {
		return types.Section{}, err
	}
	section, err := s.sections.Get(ctx, id)
	if err != nil {
		return types.Section{}, lookupErr(err, "section")
	}
	if patch.Title != nil {
		section.Title = strings.TrimSpace(*patch.Title)
		if section.Title == "" {
			return types.Section{}, apperr.Validation("title is required")
		}
	}
	if patch.OrderIndex != nil {
		section.OrderIndex = *patch.OrderIndex
	}
	updated, err := s.sections.Update(ctx, section)
	if err != nil {
		return types.Section{}, storeErr(err, "section", "order_index is already used in this course")
	}
	s.activity.Record(ctx, actor.ID, ActivityUpdate, "section", updated.ID, nil)
	return updated, nil
}

func (s *ContentService) DeleteSection(ctx context.Context, actor types.User, id int64) error {
	trace, err := s.sections.Trace(ctx, id)
	if err != nil {
		return lookupErr(err, "section")
	}
	if err := s.authorize(ctx, actor, access.ActionDelete, access.TracedNode(access.KindSection, id, trace), trace.CourseID); err != nil {
		return err
	}
	keys := s.storagePaths(ctx, store.ScopeSection, id)
	if err := s.sections.Delete(ctx, id); err != nil {
		return lookupErr(err, "section")
	}
	s.removeObjects(ctx, keys)
	s.activity.Record(ctx, actor.ID, ActivityDelete, "section", id, map[string]any{"course_id": trace.CourseID})
	return nil
}

func (s *ContentService) CreateLecture(ctx context.Context, actor types.User, in LectureInput) (types.Lecture, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.YouTubeURL = strings.TrimSpace(in.YouTubeURL)
	if err := validateStruct(in); err != nil {
		return types.Lecture{}, err
	}
	trace, err := s.sections.Trace(ctx, in.SectionID)
	if err != nil {
		return types.Lecture{}, lookupErr(err, "section")
	}
	if err := s.authorize(ctx, actor, access.ActionCreate, access.TracedNode(access.KindSection, in.SectionID, trace), trace.CourseID); err != nil {
		return types.Lecture{}, err
	}

	lecture := types.Lecture{
		SectionID:        in.SectionID,
		Title:            in.Title,
		Description:      in.Description,
		YouTubeURL:       optional(in.YouTubeURL),
		VideoStoragePath: optional(in.VideoStoragePath),
		DurationSeconds:  in.DurationSeconds,
		OrderIndex:       in.OrderIndex,
	}
	if lecture.VideoStoragePath != nil {
		lecture.VideoMimeType = optional(in.VideoMimeType)
	}
	if err := validateVideo(lecture); err != nil {
		return types.Lecture{}, err
	}
	if lecture.VideoStoragePath != nil {
		if err := checkMediaOwner(*lecture.VideoStoragePath, storage.PrefixVideos, trace.OwnerID, "video_storage_path"); err != nil {
			return types.Lecture{}, err
		}
	}

	created, err := s.lectures.Create(ctx, lecture)
	if err != nil {
		return types.Lecture{}, storeErr(err, "lecture", "order_index is already used in this section")
	}
	s.activity.Record(ctx, actor.ID, ActivityCreate, "lecture", created.ID, map[string]any{"section_id": created.SectionID})
	return created, nil
}

func (s *ContentService) UpdateLecture(ctx context.Context, actor types.User, id int64, patch LecturePatch) (types.Lecture, error) {
	if err := validateStruct(patch); err != nil {
		return types.Lecture{}, err
	}
	if patch.YouTubeURL != nil && patch.VideoStoragePath != nil &&
		optional(*patch.YouTubeURL) != nil && optional(*patch.VideoStoragePath) != nil {
		return types.Lecture{}, apperr.Validation("a lecture has either a youtube_url or an uploaded video, not both")
	}
	trace, err := s.lectures.Trace(ctx, id)
	if err != nil {
		return types.Lecture{}, lookupErr(err, "lecture")
	}
	if err := s.authorize(ctx, actor, access.ActionUpdate, access.TracedNode(access.KindLecture, id, trace), trace.CourseID); err != nil {
		return types.Lecture{}, err
	}
	lecture, err := s.lectures.Get(ctx, id)
	if err != nil {
		return types.Lecture{}, lookupErr(err, "lecture")
	}

	oldVideo := ""
	if lecture.VideoStoragePath != nil {
		oldVideo = *lecture.VideoStoragePath
	}
	if patch.Title != nil {
		lecture.Title = strings.TrimSpace(*patch.Title)
		if lecture.Title == "" {
			return types.Lecture{}, apperr.Validation("title is required")
		}
	}
	if patch.Description != nil {
		lecture.Description = *patch.Description
	}
	if patch.YouTubeURL != nil {
		lecture.YouTubeURL = optional(*patch.YouTubeURL)
		if lecture.YouTubeURL != nil {
			lecture.VideoStoragePath = nil
			lecture.VideoMimeType = nil
		}
	}
	if patch.VideoStoragePath != nil {
		lecture.VideoStoragePath = optional(*patch.VideoStoragePath)
		if lecture.VideoStoragePath != nil {
			lecture.YouTubeURL = nil
		} else {
			lecture.VideoMimeType = nil
		}
	}
	if patch.VideoMimeType != nil && lecture.VideoStoragePath != nil {
		lecture.VideoMimeType = optional(*patch.VideoMimeType)
	}
	if patch.DurationSeconds != nil {
		lecture.DurationSeconds = *patch.DurationSeconds
	}
	if patch.OrderIndex != nil {
		lecture.OrderIndex = *patch.OrderIndex
	}
	if err := validateVideo(lecture); err != nil {
		return types.Lecture{}, err
	}
	if lecture.VideoStoragePath != nil && *lecture.VideoStoragePath != oldVideo {
		if err := checkMediaOwner(*lecture.VideoStoragePath, storage.PrefixVideos, trace.OwnerID, "video_storage_path"); err != nil {
			return types.Lecture{}, err
		}
	}

	updated, err := s.lectures.Update(ctx, lecture)
	if err != nil {
		return types.Lecture{}, storeErr(err, "lecture", "order_index is already used in this section")
	}
	if oldVideo != "" && (updated.VideoStoragePath == nil || *updated.VideoStoragePath != oldVideo) {
		s.removeObjects(ctx, []string{oldVideo})
	}
	s.activity.Record(ctx, actor.ID, ActivityUpdate, "lecture", updated.ID, nil)
	return updated, nil
}

func (s *ContentService) DeleteLecture(ctx context.Context, actor types.User, id int64) error {
	trace, err := s.lectures.Trace(ctx, id)
	if err != nil {
		return lookupErr(err, "lecture")
	}
	if err := s.authorize(ctx, actor, access.ActionDelete, access.TracedNode(access.KindLecture, id, trace), trace.CourseID); err != nil {
		return err
	}
	keys := s.storagePaths(ctx, store.ScopeLecture, id)
	if err := s.lectures.Delete(ctx, id); err != nil {
		return lookupErr(err, "lecture")
	}
	s.removeObjects(ctx, keys)
	s.activity.Record(ctx, actor.ID, ActivityDelete, "lecture", id, map[string]any{"course_id": trace.CourseID})
	return nil
}
