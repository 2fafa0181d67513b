package services

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/lumen-lms/apiserver/internal/access"
	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/storage"
	"github.com/lumen-lms/apiserver/internal/store"
	"github.com/lumen-lms/apiserver/types"
)

// Upload is a file received from a client.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

func (u Upload) check() error {
	if strings.TrimSpace(u.Name) == "" {
		return apperr.Validation("file name is required")
	}
	if u.Size == 0 || u.Body == nil {
		return apperr.Validation("file is empty")
	}
	return nil
}

// StoredObject describes an object written by an upload.
type StoredObject struct {
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}

// DownloadLink is a signed, expiring download URL.
type DownloadLink struct {
	URL       string    `json:"url"`
	FileName  string    `json:"file_name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UploadFile stores an attachment and records it on a lecture actor owns.
func (s *ContentService) UploadFile(ctx context.Context, actor types.User, lectureID int64, upload Upload) (types.LectureFile, error) {
	if lectureID <= 0 {
		return types.LectureFile{}, apperr.Validation("lecture_id is required")
	}
	if err := upload.check(); err != nil {
		return types.LectureFile{}, err
	}
	trace, err := s.lectures.Trace(ctx, lectureID)
	if err != nil {
		return types.LectureFile{}, lookupErr(err, "lecture")
	}
	if err := s.authorize(ctx, actor, access.ActionCreate, access.TracedNode(access.KindLecture, lectureID, trace), trace.CourseID); err != nil {
		return types.LectureFile{}, err
	}

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := storage.NewKey(storage.PrefixFiles, upload.Name)
	if err := s.objects.Put(ctx, key, upload.Body, upload.Size, contentType); err != nil {
		return types.LectureFile{}, apperr.Dependency(err, "failed to store file")
	}
	file, err := s.files.Create(ctx, types.LectureFile{
		LectureID:   lectureID,
		FileName:    upload.Name,
		StoragePath: key,
		FileSize:    upload.Size,
		FileType:    contentType,
	})
	if err != nil {
		s.removeObjects(ctx, []string{key})
		return types.LectureFile{}, storeErr(err, "file", "file already exists")
	}
	s.activity.Record(ctx, actor.ID, ActivityUpload, "file", file.ID, map[string]any{"lecture_id": lectureID, "size": upload.Size})
	return file, nil
}

// DeleteFile removes an attachment row and its object.
func (s *ContentService) DeleteFile(ctx context.Context, actor types.User, id int64) error {
	trace, err := s.files.Trace(ctx, id)
	if err != nil {
		return lookupErr(err, "file")
	}
	if err := s.authorize(ctx, actor, access.ActionDelete, access.TracedNode(access.KindFile, id, trace), trace.CourseID); err != nil {
		return err
	}
	file, err := s.files.Get(ctx, id)
	if err != nil {
		return lookupErr(err, "file")
	}
	if err := s.files.Delete(ctx, id); err != nil {
		return lookupErr(err, "file")
	}
	s.removeObjects(ctx, []string{file.StoragePath})
	s.activity.Record(ctx, actor.ID, ActivityDelete, "file", id, map[string]any{"file_name": file.FileName})
	return nil
}

// DownloadFile signs a time-limited URL for an attachment actor may read and
// records the download.
func (s *ContentService) DownloadFile(ctx context.Context, actor types.User, id int64) (DownloadLink, error) {
	trace, err := s.files.Trace(ctx, id)
	if err != nil {
		return DownloadLink{}, lookupErr(err, "file")
	}
	if err := s.authorize(ctx, actor, access.ActionRead, access.TracedNode(access.KindFile, id, trace), trace.CourseID); err != nil {
		return DownloadLink{}, err
	}
	file, err := s.files.Get(ctx, id)
	if err != nil {
		return DownloadLink{}, lookupErr(err, "file")
	}
	link, err := s.objects.PresignGet(ctx, file.StoragePath, s.signedTTL, file.FileName)
	if err != nil {
		return DownloadLink{}, apperr.Dependency(err, "failed to sign download link")
	}
	s.activity.Record(ctx, actor.ID, ActivityDownload, "file", file.ID, map[string]any{"lecture_id": file.LectureID})
	return DownloadLink{URL: link, FileName: file.FileName, ExpiresAt: time.Now().Add(s.signedTTL)}, nil
}

// UploadThumbnail stores a course image for an author.
func (s *ContentService) UploadThumbnail(ctx context.Context, actor types.User, upload Upload) (StoredObject, error) {
	if !strings.HasPrefix(upload.ContentType, "image/") {
		return StoredObject{}, apperr.Validation("thumbnail must be an image")
	}
	obj, err := s.uploadMedia(ctx, actor, storage.PrefixThumbnails, upload)
	if err != nil {
		return StoredObject{}, err
	}
	obj.URL = s.thumbnailLink(ctx, obj.Path)
	return obj, nil
}

// UploadVideo stores a lecture video for an author. The returned path is
// then set as a lecture's video_storage_path.
func (s *ContentService) UploadVideo(ctx context.Context, actor types.User, upload Upload) (StoredObject, error) {
	if !strings.HasPrefix(upload.ContentType, "video/") {
		return StoredObject{}, apperr.Validation("video must have a video content type")
	}
	return s.uploadMedia(ctx, actor, storage.PrefixVideos, upload)
}

func (s *ContentService) uploadMedia(ctx context.Context, actor types.User, prefix string, upload Upload) (StoredObject, error) {
	if !actor.Role.IsAuthor() {
		return StoredObject{}, apperr.Forbidden("only trainers and crm users can upload content")
	}
	if err := upload.check(); err != nil {
		return StoredObject{}, err
	}
	key := storage.NewOwnedKey(prefix, actor.ID, upload.Name)
	if err := s.objects.Put(ctx, key, upload.Body, upload.Size, upload.ContentType); err != nil {
		return StoredObject{}, apperr.Dependency(err, "failed to store upload")
	}
	s.activity.Record(ctx, actor.ID, ActivityUpload, prefix, 0, map[string]any{"path": key, "size": upload.Size})
	return StoredObject{Path: key}, nil
}

// validateThumbnail accepts an empty value, a thumbnail ownerID uploaded or
// an absolute http(s) URL.
func validateThumbnail(v string, ownerID int64) error {
	if v == "" {
		return nil
	}
	if storage.HasPrefix(v, storage.PrefixThumbnails) {
		return checkMediaOwner(v, storage.PrefixThumbnails, ownerID, "thumbnail_url")
	}
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Validation("thumbnail_url must be an uploaded thumbnail or an http(s) URL")
	}
	return nil
}

func (s *ContentService) thumbnailLink(ctx context.Context, v string) string {
	if !storage.HasPrefix(v, storage.PrefixThumbnails) {
		return v
	}
	link, err := s.objects.PresignGet(ctx, v, s.signedTTL, "")
	if err != nil {
		s.log.Warn("failed to sign thumbnail", "path", v, "error", err)
		return ""
	}
	return link
}

func (s *ContentService) videoURL(ctx context.Context, lecture types.Lecture) string {
	if lecture.YouTubeURL != nil && *lecture.YouTubeURL != "" {
		return *lecture.YouTubeURL
	}
	if lecture.VideoStoragePath == nil || *lecture.VideoStoragePath == "" {
		return ""
	}
	link, err := s.objects.PresignGet(ctx, *lecture.VideoStoragePath, s.signedTTL, "")
	if err != nil {
		s.log.Warn("failed to sign video", "lecture_id", lecture.ID, "error", err)
		return ""
	}
	return link
}

// storagePaths collects the objects under a node before its rows cascade.
func (s *ContentService) storagePaths(ctx context.Context, scope store.Scope, id int64) []string {
	keys, err := s.files.StoragePaths(ctx, scope, id)
	if err != nil {
		s.log.Warn("failed to collect storage paths", "scope", scope, "id", id, "error", err)
		return nil
	}
	return keys
}

// ownedObjects collects every object referenced by content ownerID owns.
func (s *ContentService) ownedObjects(ctx context.Context, ownerID int64) []string {
	indexes, err := s.indexes.List(ctx, types.IndexFilter{OwnerID: &ownerID})
	if err != nil {
		s.log.Warn("failed to list owned indexes", "owner_id", ownerID, "error", err)
		return nil
	}
	var keys []string
	for _, index := range indexes {
		keys = append(keys, s.storagePaths(ctx, store.ScopeIndex, index.ID)...)
	}
	return keys
}

// removeObjects deletes objects no remaining row references, logging
// failures. Callers delete the referencing rows first.
func (s *ContentService) removeObjects(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	live, err := s.files.Referenced(ctx, keys)
	if err != nil {
		s.log.Warn("failed to check object references, keeping objects", "count", len(keys), "error", err)
		return
	}
	inUse := make(map[string]struct{}, len(live))
	for _, key := range live {
		inUse[key] = struct{}{}
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := inUse[key]; ok {
			continue
		}
		if err := s.objects.Delete(ctx, key); err != nil {
			s.log.Warn("failed to delete object", "path", key, "error", err)
		}
	}
}
