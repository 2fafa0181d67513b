package memdb

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lumen-lms/apiserver/internal/store"
	"github.com/lumen-lms/apiserver/types"
)

type Indexes struct{ db *DB }

func (db *DB) Indexes() *Indexes { return &Indexes{db: db} }

func (db *DB) withCourseCount(index types.Index) types.Index {
	index.CourseCount = 0
	for _, course := range db.courses {
		if course.IndexID == index.ID {
			index.CourseCount++
		}
	}
	return index
}

func (r *Indexes) List(ctx context.Context, filter types.IndexFilter) ([]types.Index, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]types.Index, 0)
	for _, id := range sortedKeys(r.db.indexes) {
		index := r.db.indexes[id]
		if filter.IDs != nil && !contains(filter.IDs, id) {
			continue
		}
		if filter.OwnerID != nil && index.CreatedBy != *filter.OwnerID {
			continue
		}
		if filter.ActiveOnly && !index.IsActive {
			continue
		}
		out = append(out, r.db.withCourseCount(index))
	}
	return out, nil
}

func (r *Indexes) Get(ctx context.Context, id int64) (types.Index, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	index, ok := r.db.indexes[id]
	if !ok {
		return types.Index{}, errNotFound
	}
	return r.db.withCourseCount(index), nil
}

func (r *Indexes) Create(ctx context.Context, index types.Index) (types.Index, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[index.CreatedBy]; !ok {
		return types.Index{}, errConflict
	}
	now := r.db.now()
	index.ID = r.db.nextID()
	index.CreatedAt = now
	index.UpdatedAt = now
	index.CourseCount = 0
	r.db.indexes[index.ID] = index
	return index, nil
}

func (r *Indexes) Update(ctx context.Context, index types.Index) (types.Index, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.indexes[index.ID]
	if !ok {
		return types.Index{}, errNotFound
	}
	existing.Name = index.Name
	existing.Description = index.Description
	existing.IsActive = index.IsActive
	existing.UpdatedAt = r.db.now()
	r.db.indexes[index.ID] = existing
	return r.db.withCourseCount(existing), nil
}

func (r *Indexes) Delete(ctx context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.indexes[id]; !ok {
		return errNotFound
	}
	r.db.cascadeIndex(id)
	return nil
}

type Courses struct{ db *DB }

func (db *DB) Courses() *Courses { return &Courses{db: db} }

func (r *Courses) List(ctx context.Context, filter types.CourseFilter) ([]types.Course, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]types.Course, 0)
	for _, id := range sortedKeys(r.db.courses) {
		course := r.db.courses[id]
		if filter.IDs != nil && !contains(filter.IDs, id) {
			continue
		}
		if filter.IndexIDs != nil && !contains(filter.IndexIDs, course.IndexID) {
			continue
		}
		if filter.OwnerID != nil && course.CreatedBy != *filter.OwnerID {
			continue
		}
		if filter.ActiveOnly && !course.IsActive {
			continue
		}
		out = append(out, course)
	}
	return out, nil
}

func (r *Courses) Get(ctx context.Context, id int64) (types.Course, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	course, ok := r.db.courses[id]
	if !ok {
		return types.Course{}, errNotFound
	}
	return course, nil
}

func (r *Courses) Create(ctx context.Context, course types.Course) (types.Course, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.indexes[course.IndexID]; !ok {
		return types.Course{}, errConflict
	}
	now := r.db.now()
	course.ID = r.db.nextID()
	course.CreatedAt = now
	course.UpdatedAt = now
	r.db.courses[course.ID] = course
	return course, nil
}

func (r *Courses) Update(ctx context.Context, course types.Course) (types.Course, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.courses[course.ID]
	if !ok {
		return types.Course{}, errNotFound
	}
	if _, ok := r.db.indexes[course.IndexID]; !ok {
		return types.Course{}, errConflict
	}
	course.CreatedBy = existing.CreatedBy
	course.CreatedAt = existing.CreatedAt
	course.UpdatedAt = r.db.now()
	r.db.courses[course.ID] = course
	return course, nil
}

func (r *Courses) Delete(ctx context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.courses[id]; !ok {
		return errNotFound
	}
	r.db.cascadeCourse(id)
	return nil
}

type Sections struct{ db *DB }

func (db *DB) Sections() *Sections { return &Sections{db: db} }

func (db *DB) sortedSections(courseID int64) []types.Section {
	out := make([]types.Section, 0)
	for _, section := range db.sections {
		if section.CourseID == courseID {
			out = append(out, section)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Sections) ListByCourse(ctx context.Context, courseID int64) ([]types.Section, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.sortedSections(courseID), nil
}

func (r *Sections) Get(ctx context.Context, id int64) (types.Section, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	section, ok := r.db.sections[id]
	if !ok {
		return types.Section{}, errNotFound
	}
	return section, nil
}

func (db *DB) sectionOrderTaken(section types.Section) bool {
	for _, other := range db.sections {
		if other.ID != section.ID && other.CourseID == section.CourseID && other.OrderIndex == section.OrderIndex {
			return true
		}
	}
	return false
}

func (r *Sections) Create(ctx context.Context, section types.Section) (types.Section, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.courses[section.CourseID]; !ok {
		return types.Section{}, errConflict
	}
	section.ID = 0
	if section.OrderIndex <= 0 {
		last := 0
		for _, other := range r.db.sections {
			if other.CourseID == section.CourseID && other.OrderIndex > last {
				last = other.OrderIndex
			}
		}
		section.OrderIndex = last + 1
	}
	if r.db.sectionOrderTaken(section) {
		return types.Section{}, errConflict
	}
	now := r.db.now()
	section.ID = r.db.nextID()
	section.CreatedAt = now
	section.UpdatedAt = now
	r.db.sections[section.ID] = section
	return section, nil
}

func (r *Sections) Update(ctx context.Context, section types.Section) (types.Section, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.sections[section.ID]
	if !ok {
		return types.Section{}, errNotFound
	}
	existing.Title = section.Title
	existing.OrderIndex = section.OrderIndex
	if r.db.sectionOrderTaken(existing) {
		return types.Section{}, errConflict
	}
	existing.UpdatedAt = r.db.now()
	r.db.sections[section.ID] = existing
	return existing, nil
}

func (r *Sections) Delete(ctx context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.sections[id]; !ok {
		return errNotFound
	}
	r.db.cascadeSection(id)
	return nil
}

func (r *Sections) Trace(ctx context.Context, id int64) (types.ContentTrace, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	section, ok := r.db.sections[id]
	if !ok {
		return types.ContentTrace{}, errNotFound
	}
	course := r.db.courses[section.CourseID]
	return types.ContentTrace{
		IndexID:      course.IndexID,
		CourseID:     course.ID,
		SectionID:    section.ID,
		OwnerID:      course.CreatedBy,
		CourseActive: course.IsActive,
	}, nil
}

type Lectures struct{ db *DB }

func (db *DB) Lectures() *Lectures { return &Lectures{db: db} }

func (r *Lectures) ListByCourse(ctx context.Context, courseID int64) ([]types.Lecture, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]types.Lecture, 0)
	for _, section := range r.db.sortedSections(courseID) {
		var lectures []types.Lecture
		for _, lecture := range r.db.lectures {
			if lecture.SectionID == section.ID {
				lectures = append(lectures, lecture)
			}
		}
		sort.Slice(lectures, func(i, j int) bool {
			if lectures[i].OrderIndex != lectures[j].OrderIndex {
				return lectures[i].OrderIndex < lectures[j].OrderIndex
			}
			return lectures[i].ID < lectures[j].ID
		})
		out = append(out, lectures...)
	}
	return out, nil
}

func (r *Lectures) ListRefs(ctx context.Context, courseIDs []int64) ([]types.LectureRef, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]types.LectureRef, 0)
	for _, id := range sortedKeys(r.db.lectures) {
		lecture := r.db.lectures[id]
		section := r.db.sections[lecture.SectionID]
		if contains(courseIDs, section.CourseID) {
			out = append(out, types.LectureRef{ID: lecture.ID, CourseID: section.CourseID, DurationSeconds: lecture.DurationSeconds})
		}
	}
	return out, nil
}

func (r *Lectures) Get(ctx context.Context, id int64) (types.Lecture, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	lecture, ok := r.db.lectures[id]
	if !ok {
		return types.Lecture{}, errNotFound
	}
	return lecture, nil
}

func (db *DB) checkLecture(lecture types.Lecture) error {
	if lecture.YouTubeURL != nil && lecture.VideoStoragePath != nil {
		return fmt.Errorf("lectures_single_video_source violated")
	}
	for _, other := range db.lectures {
		if other.ID != lecture.ID && other.SectionID == lecture.SectionID && other.OrderIndex == lecture.OrderIndex {
			return errConflict
		}
	}
	return nil
}

func (r *Lectures) Create(ctx context.Context, lecture types.Lecture) (types.Lecture, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.sections[lecture.SectionID]; !ok {
		return types.Lecture{}, errConflict
	}
	lecture.ID = 0
	if lecture.OrderIndex <= 0 {
		last := 0
		for _, other := range r.db.lectures {
			if other.SectionID == lecture.SectionID && other.OrderIndex > last {
				last = other.OrderIndex
			}
		}
		lecture.OrderIndex = last + 1
	}
	if err := r.db.checkLecture(lecture); err != nil {
		return types.Lecture{}, err
	}
	now := r.db.now()
	lecture.ID = r.db.nextID()
	lecture.CreatedAt = now
	lecture.UpdatedAt = now
	r.db.lectures[lecture.ID] = lecture
	return lecture, nil
}

func (r *Lectures) Update(ctx context.Context, lecture types.Lecture) (types.Lecture, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.lectures[lecture.ID]
	if !ok {
		return types.Lecture{}, errNotFound
	}
	lecture.SectionID = existing.SectionID
	lecture.CreatedAt = existing.CreatedAt
	if err := r.db.checkLecture(lecture); err != nil {
		return types.Lecture{}, err
	}
	lecture.UpdatedAt = r.db.now()
	r.db.lectures[lecture.ID] = lecture
	return lecture, nil
}

func (r *Lectures) Delete(ctx context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.lectures[id]; !ok {
		return errNotFound
	}
	r.db.cascadeLecture(id)
	return nil
}

func (db *DB) traceLecture(lecture types.Lecture) types.ContentTrace {
	section := db.sections[lecture.SectionID]
	course := db.courses[section.CourseID]
	return types.ContentTrace{
		IndexID:      course.IndexID,
		CourseID:     course.ID,
		SectionID:    section.ID,
		LectureID:    lecture.ID,
		OwnerID:      course.CreatedBy,
		CourseActive: course.IsActive,
	}
}

func (r *Lectures) Trace(ctx context.Context, id int64) (types.ContentTrace, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	lecture, ok := r.db.lectures[id]
	if !ok {
		return types.ContentTrace{}, errNotFound
	}
	return r.db.traceLecture(lecture), nil
}

type Files struct{ db *DB }

func (db *DB) Files() *Files { return &Files{db: db} }

func (r *Files) ListByLectures(ctx context.Context, lectureIDs []int64) ([]types.LectureFile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]types.LectureFile, 0)
	for _, id := range sortedKeys(r.db.files) {
		if file := r.db.files[id]; contains(lectureIDs, file.LectureID) {
			out = append(out, file)
		}
	}
	return out, nil
}

func (r *Files) Get(ctx context.Context, id int64) (types.LectureFile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	file, ok := r.db.files[id]
	if !ok {
		return types.LectureFile{}, errNotFound
	}
	return file, nil
}

func (r *Files) Create(ctx context.Context, file types.LectureFile) (types.LectureFile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.lectures[file.LectureID]; !ok {
		return types.LectureFile{}, errConflict
	}
	file.ID = r.db.nextID()
	file.CreatedAt = r.db.now()
	r.db.files[file.ID] = file
	return file, nil
}

func (r *Files) Delete(ctx context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.files[id]; !ok {
		return errNotFound
	}
	delete(r.db.files, id)
	return nil
}

func (r *Files) Trace(ctx context.Context, id int64) (types.ContentTrace, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	file, ok := r.db.files[id]
	if !ok {
		return types.ContentTrace{}, errNotFound
	}
	return r.db.traceLecture(r.db.lectures[file.LectureID]), nil
}

func (r *Files) StoragePaths(ctx context.Context, scope store.Scope, id int64) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var match func(trace types.ContentTrace) bool
	switch scope {
	case store.ScopeIndex:
		match = func(t types.ContentTrace) bool { return t.IndexID == id }
	case store.ScopeCourse:
		match = func(t types.ContentTrace) bool { return t.CourseID == id }
	case store.ScopeSection:
		match = func(t types.ContentTrace) bool { return t.SectionID == id }
	case store.ScopeLecture:
		match = func(t types.ContentTrace) bool { return t.LectureID == id }
	default:
		return nil, fmt.Errorf("unknown scope %q", scope)
	}

	paths := make([]string, 0)
	for _, lid := range sortedKeys(r.db.lectures) {
		lecture := r.db.lectures[lid]
		if lecture.VideoStoragePath != nil && match(r.db.traceLecture(lecture)) {
			paths = append(paths, *lecture.VideoStoragePath)
		}
	}
	for _, fid := range sortedKeys(r.db.files) {
		file := r.db.files[fid]
		if match(r.db.traceLecture(r.db.lectures[file.LectureID])) {
			paths = append(paths, file.StoragePath)
		}
	}
	if scope == store.ScopeIndex || scope == store.ScopeCourse {
		for _, cid := range sortedKeys(r.db.courses) {
			course := r.db.courses[cid]
			if !strings.HasPrefix(course.ThumbnailURL, "thumbnails/") {
				continue
			}
			if match(types.ContentTrace{IndexID: course.IndexID, CourseID: course.ID}) {
				paths = append(paths, course.ThumbnailURL)
			}
		}
	}
	return paths, nil
}

func (r *Files) Referenced(ctx context.Context, keys []string) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	wanted := make(map[string]bool, len(keys))
	for _, key := range keys {
		wanted[key] = false
	}
	mark := func(key string) {
		if _, ok := wanted[key]; ok {
			wanted[key] = true
		}
	}
	for _, lecture := range r.db.lectures {
		if lecture.VideoStoragePath != nil {
			mark(*lecture.VideoStoragePath)
		}
	}
	for _, file := range r.db.files {
		mark(file.StoragePath)
	}
	for _, course := range r.db.courses {
		mark(course.ThumbnailURL)
	}

	live := make([]string, 0)
	for key, used := range wanted {
		if used {
			live = append(live, key)
		}
	}
	sort.Strings(live)
	return live, nil
}
