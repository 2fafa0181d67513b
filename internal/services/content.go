package services

import (
	"context"
	"strings"
	"time"

	"github.com/lumen-lms/apiserver/internal/access"
	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/internal/storage"
	"github.com/lumen-lms/apiserver/internal/store"
	"github.com/lumen-lms/apiserver/types"
)

type IndexInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	IsActive    *bool  `json:"is_active"`
}

type IndexPatch struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	IsActive    *bool   `json:"is_active"`
}

type CourseInput struct {
	IndexID      int64  `json:"index_id" validate:"required,gt=0"`
	Title        string `json:"title" validate:"required,max=200"`
	Description  string `json:"description" validate:"max=10000"`
	ThumbnailURL string `json:"thumbnail_url" validate:"max=1000"`
	IsActive     *bool  `json:"is_active"`
}

type CoursePatch struct {
	IndexID      *int64  `json:"index_id" validate:"omitempty,gt=0"`
	Title        *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description  *string `json:"description" validate:"omitempty,max=10000"`
	ThumbnailURL *string `json:"thumbnail_url" validate:"omitempty,max=1000"`
	IsActive     *bool   `json:"is_active"`
}

// ContentService manages the index, course, section, lecture and file tree
// and the objects it references.
type ContentService struct {
	indexes     IndexRepository
	courses     CourseRepository
	sections    SectionRepository
	lectures    LectureRepository
	files       FileRepository
	progress    ProgressRepository
	assignments *AssignmentService
	objects     storage.ObjectStorage
	signedTTL   time.Duration
	activity    *ActivityService
	log         *logger.Logger
}

func NewContentService(
	indexes IndexRepository,
	courses CourseRepository,
	sections SectionRepository,
	lectures LectureRepository,
	files FileRepository,
	progress ProgressRepository,
	assignments *AssignmentService,
	objects storage.ObjectStorage,
	signedTTL time.Duration,
	activity *ActivityService,
	log *logger.Logger,
) *ContentService {
	return &ContentService{
		indexes:     indexes,
		courses:     courses,
		sections:    sections,
		lectures:    lectures,
		files:       files,
		progress:    progress,
		assignments: assignments,
		objects:     objects,
		signedTTL:   signedTTL,
		activity:    activity,
		log:         log.With("component", "content"),
	}
}

// authorize evaluates the content rules for actor. courseID is the course the
// node belongs to; zero for an index, whose visibility comes from the
// learner's index set instead.
func (s *ContentService) authorize(ctx context.Context, actor types.User, action access.Action, node access.Node, courseID int64) error {
	assigned := false
	if actor.Role.IsLearner() {
		res, err := s.assignments.Resolve(ctx, actor.ID)
		if err != nil {
			return err
		}
		if node.Kind == access.KindIndex {
			assigned = res.CanSeeIndex(node.ID)
		} else {
			assigned = res.HasCourse(courseID)
		}
	}
	return access.CanAccessContent(access.ActorOf(actor), action, node, assigned).Err()
}

// ListIndexes returns the indexes visible to actor.
func (s *ContentService) ListIndexes(ctx context.Context, actor types.User) ([]types.Index, error) {
	var filter types.IndexFilter
	switch {
	case actor.Role == types.RoleAdmin:
	case actor.Role.IsAuthor():
		filter.OwnerID = &actor.ID
	case actor.Role.IsLearner():
		res, err := s.assignments.Resolve(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		filter.IDs = res.VisibleIndexIDs()
		filter.ActiveOnly = true
	default:
		return nil, apperr.Forbidden("you cannot view content")
	}
	indexes, err := s.indexes.List(ctx, filter)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list indexes")
	}
	return indexes, nil
}

// GetIndex returns an index with the courses actor may see under it.
func (s *ContentService) GetIndex(ctx context.Context, actor types.User, id int64) (types.IndexDetail, error) {
	index, err := s.indexes.Get(ctx, id)
	if err != nil {
		return types.IndexDetail{}, lookupErr(err, "index")
	}
	if err := s.authorize(ctx, actor, access.ActionRead, access.IndexNode(index), 0); err != nil {
		return types.IndexDetail{}, err
	}

	courses, err := s.courses.List(ctx, types.CourseFilter{IndexIDs: []int64{id}})
	if err != nil {
		return types.IndexDetail{}, apperr.Internal(err, "failed to list courses")
	}
	if actor.Role.IsLearner() {
		res, err := s.assignments.Resolve(ctx, actor.ID)
		if err != nil {
			return types.IndexDetail{}, err
		}
		visible := courses[:0]
		for _, course := range courses {
			if res.HasCourse(course.ID) {
				visible = append(visible, course)
			}
		}
		courses = visible
	}
	index.CourseCount = len(courses)
	return types.IndexDetail{Index: index, Courses: courses}, nil
}

// CreateIndex creates an index owned by actor.
func (s *ContentService) CreateIndex(ctx context.Context, actor types.User, in IndexInput) (types.Index, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return types.Index{}, err
	}
	if err := access.CanCreateIndex(access.ActorOf(actor)).Err(); err != nil {
		return types.Index{}, err
	}
	index, err := s.indexes.Create(ctx, types.Index{
		Name:        in.Name,
		Description: in.Description,
		CreatedBy:   actor.ID,
		IsActive:    in.IsActive == nil || *in.IsActive,
	})
	if err != nil {
		return types.Index{}, storeErr(err, "index", "index already exists")
	}
	s.activity.Record(ctx, actor.ID, ActivityCreate, "index", index.ID, map[string]any{"name": index.Name})
	return index, nil
}

func (s *ContentService) UpdateIndex(ctx context.Context, actor types.User, id int64, patch IndexPatch) (types.Index, error) {
	if err := validateStruct(patch); err != nil {
		return types.Index{}, err
	}
	index, err := s.indexes.Get(ctx, id)
	if err != nil {
		return types.Index{}, lookupErr(err, "index")
	}
	if err := s.authorize(ctx, actor, access.ActionUpdate, access.IndexNode(index), 0); err != nil {
		return types.Index{}, err
	}
	if patch.Name != nil {
		index.Name = strings.TrimSpace(*patch.Name)
		if index.Name == "" {
			return types.Index{}, apperr.Validation("name is required")
		}
	}
	if patch.Description != nil {
		index.Description = *patch.Description
	}
	if patch.IsActive != nil {
		index.IsActive = *patch.IsActive
	}
	updated, err := s.indexes.Update(ctx, index)
	if err != nil {
		return types.Index{}, lookupErr(err, "index")
	}
	s.activity.Record(ctx, actor.ID, ActivityUpdate, "index", updated.ID, nil)
	return updated, nil
}

// DeleteIndex removes the index with everything under it.
func (s *ContentService) DeleteIndex(ctx context.Context, actor types.User, id int64) error {
	index, err := s.indexes.Get(ctx, id)
	if err != nil {
		return lookupErr(err, "index")
	}
	if err := s.authorize(ctx, actor, access.ActionDelete, access.IndexNode(index), 0); err != nil {
		return err
	}
	keys := s.storagePaths(ctx, store.ScopeIndex, id)
	if err := s.indexes.Delete(ctx, id); err != nil {
		return lookupErr(err, "index")
	}
	s.removeObjects(ctx, keys)
	s.activity.Record(ctx, actor.ID, ActivityDelete, "index", id, map[string]any{"name": index.Name})
	return nil
}

// ListCourses returns the courses visible to actor, optionally under one index.
func (s *ContentService) ListCourses(ctx context.Context, actor types.User, indexID *int64) ([]types.Course, error) {
	if actor.Role.IsLearner() {
		res, err := s.assignments.Resolve(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		courses := make([]types.Course, 0, len(res.Courses))
		for _, course := range res.Courses {
			if indexID == nil || course.IndexID == *indexID {
				courses = append(courses, course)
			}
		}
		return courses, nil
	}

	var filter types.CourseFilter
	switch {
	case actor.Role == types.RoleAdmin:
	case actor.Role.IsAuthor():
		filter.OwnerID = &actor.ID
	default:
		return nil, apperr.Forbidden("you cannot view content")
	}
	if indexID != nil {
		filter.IndexIDs = []int64{*indexID}
	}
	courses, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list courses")
	}
	return courses, nil
}

// CreateCourse adds a course under an index actor owns. The course inherits
// the index owner.
func (s *ContentService) CreateCourse(ctx context.Context, actor types.User, in CourseInput) (types.Course, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.ThumbnailURL = strings.TrimSpace(in.ThumbnailURL)
	if err := validateStruct(in); err != nil {
		return types.Course{}, err
	}
	index, err := s.indexes.Get(ctx, in.IndexID)
	if err != nil {
		return types.Course{}, lookupErr(err, "index")
	}
	if err := s.authorize(ctx, actor, access.ActionCreate, access.IndexNode(index), 0); err != nil {
		return types.Course{}, err
	}
	if err := validateThumbnail(in.ThumbnailURL, index.CreatedBy); err != nil {
		return types.Course{}, err
	}
	course, err := s.courses.Create(ctx, types.Course{
		IndexID:      index.ID,
		Title:        in.Title,
		Description:  in.Description,
		ThumbnailURL: in.ThumbnailURL,
		CreatedBy:    index.CreatedBy,
		IsActive:     in.IsActive == nil || *in.IsActive,
	})
	if err != nil {
		return types.Course{}, storeErr(err, "course", "course already exists")
	}
	s.activity.Record(ctx, actor.ID, ActivityCreate, "course", course.ID, map[string]any{"title": course.Title})
	return course, nil
}

// UpdateCourse edits a course. Moving it to another index requires owning
// that index too; a replaced stored thumbnail is deleted.
func (s *ContentService) UpdateCourse(ctx context.Context, actor types.User, id int64, patch CoursePatch) (types.Course, error) {
	if err := validateStruct(patch); err != nil {
		return types.Course{}, err
	}
	course, err := s.courses.Get(ctx, id)
	if err != nil {
		return types.Course{}, lookupErr(err, "course")
	}
	if err := s.authorize(ctx, actor, access.ActionUpdate, access.CourseNode(course), course.ID); err != nil {
		return types.Course{}, err
	}

	oldThumbnail := course.ThumbnailURL
	if patch.IndexID != nil && *patch.IndexID != course.IndexID {
		index, err := s.indexes.Get(ctx, *patch.IndexID)
		if err != nil {
			return types.Course{}, lookupErr(err, "index")
		}
		if err := s.authorize(ctx, actor, access.ActionUpdate, access.IndexNode(index), 0); err != nil {
			return types.Course{}, err
		}
		course.IndexID = index.ID
	}
	if patch.Title != nil {
		course.Title = strings.TrimSpace(*patch.Title)
		if course.Title == "" {
			return types.Course{}, apperr.Validation("title is required")
		}
	}
	if patch.Description != nil {
		course.Description = *patch.Description
	}
	if patch.ThumbnailURL != nil {
		thumb := strings.TrimSpace(*patch.ThumbnailURL)
		if thumb != oldThumbnail {
			if err := validateThumbnail(thumb, course.CreatedBy); err != nil {
				return types.Course{}, err
			}
		}
		course.ThumbnailURL = thumb
	}
	if patch.IsActive != nil {
		course.IsActive = *patch.IsActive
	}

	updated, err := s.courses.Update(ctx, course)
	if err != nil {
		return types.Course{}, lookupErr(err, "course")
	}
	if oldThumbnail != updated.ThumbnailURL && storage.HasPrefix(oldThumbnail, storage.PrefixThumbnails) {
		s.removeObjects(ctx, []string{oldThumbnail})
	}
	s.activity.Record(ctx, actor.ID, ActivityUpdate, "course", updated.ID, nil)
	return updated, nil
}

func (s *ContentService) DeleteCourse(ctx context.Context, actor types.User, id int64) error {
	course, err := s.courses.Get(ctx, id)
	if err != nil {
		return lookupErr(err, "course")
	}
	if err := s.authorize(ctx, actor, access.ActionDelete, access.CourseNode(course), course.ID); err != nil {
		return err
	}
	keys := s.storagePaths(ctx, store.ScopeCourse, id)
	if err := s.courses.Delete(ctx, id); err != nil {
		return lookupErr(err, "course")
	}
	s.removeObjects(ctx, keys)
	s.activity.Record(ctx, actor.ID, ActivityDelete, "course", id, map[string]any{"title": course.Title})
	return nil
}

// GetCourse returns the course tree. Stored videos and thumbnails get
// short-lived signed links; learners also see their own progress.
func (s *ContentService) GetCourse(ctx context.Context, actor types.User, id int64) (types.CourseDetail, error) {
	course, err := s.courses.Get(ctx, id)
	if err != nil {
		return types.CourseDetail{}, lookupErr(err, "course")
	}
	if err := s.authorize(ctx, actor, access.ActionRead, access.CourseNode(course), course.ID); err != nil {
		return types.CourseDetail{}, err
	}
	index, err := s.indexes.Get(ctx, course.IndexID)
	if err != nil {
		return types.CourseDetail{}, lookupErr(err, "index")
	}
	sections, err := s.sections.ListByCourse(ctx, course.ID)
	if err != nil {
		return types.CourseDetail{}, apperr.Internal(err, "failed to list sections")
	}
	lectures, err := s.lectures.ListByCourse(ctx, course.ID)
	if err != nil {
		return types.CourseDetail{}, apperr.Internal(err, "failed to list lectures")
	}

	lectureIDs := make([]int64, len(lectures))
	for i, lecture := range lectures {
		lectureIDs[i] = lecture.ID
	}
	filesByLecture := make(map[int64][]types.LectureFile)
	progressByLecture := make(map[int64]types.LectureProgress)
	if len(lectureIDs) > 0 {
		files, err := s.files.ListByLectures(ctx, lectureIDs)
		if err != nil {
			return types.CourseDetail{}, apperr.Internal(err, "failed to list files")
		}
		for _, file := range files {
			filesByLecture[file.LectureID] = append(filesByLecture[file.LectureID], file)
		}
		if actor.Role.IsLearner() {
			rows, err := s.progress.ListForUser(ctx, actor.ID, lectureIDs)
			if err != nil {
				return types.CourseDetail{}, apperr.Internal(err, "failed to load progress")
			}
			for _, row := range rows {
				progressByLecture[row.LectureID] = row
			}
		}
	}

	lecturesBySection := make(map[int64][]types.LectureDetail)
	for _, lecture := range lectures {
		detail := types.LectureDetail{
			Lecture:  lecture,
			VideoURL: s.videoURL(ctx, lecture),
			Files:    filesByLecture[lecture.ID],
		}
		if detail.Files == nil {
			detail.Files = []types.LectureFile{}
		}
		if row, ok := progressByLecture[lecture.ID]; ok {
			detail.Progress = &row
		}
		lecturesBySection[lecture.SectionID] = append(lecturesBySection[lecture.SectionID], detail)
	}

	out := types.CourseDetail{
		Course:        course,
		ThumbnailLink: s.thumbnailLink(ctx, course.ThumbnailURL),
		Index:         index,
		Sections:      make([]types.SectionDetail, 0, len(sections)),
	}
	for _, section := range sections {
		items := lecturesBySection[section.ID]
		if items == nil {
			items = []types.LectureDetail{}
		}
		out.Sections = append(out.Sections, types.SectionDetail{Section: section, Lectures: items})
	}
	return out, nil
}
