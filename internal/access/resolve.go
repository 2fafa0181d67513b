package access

import (
	"sort"

	"github.com/lumen-lms/apiserver/types"
)

// Resolution is a learner's effective course set.
type Resolution struct {
	Courses []types.Course

	byID    map[int64]int
	indexes map[int64]struct{}
}

// Resolve unions the directly assigned courses with the courses inherited
// through index assignments. Each course appears once and inactive courses
// are dropped. Courses are ordered by id.
func Resolve(direct []types.Course, assignedIndexIDs []int64, inherited []types.Course) Resolution {
	res := Resolution{
		Courses: make([]types.Course, 0, len(direct)+len(inherited)),
		byID:    make(map[int64]int, len(direct)+len(inherited)),
		indexes: make(map[int64]struct{}, len(assignedIndexIDs)),
	}
	for _, id := range assignedIndexIDs {
		res.indexes[id] = struct{}{}
	}

	seen := make(map[int64]struct{}, len(direct)+len(inherited))
	add := func(course types.Course) {
		if _, dup := seen[course.ID]; dup {
			return
		}
		seen[course.ID] = struct{}{}
		if !course.IsActive {
			return
		}
		res.Courses = append(res.Courses, course)
	}
	for _, course := range direct {
		add(course)
	}
	for _, course := range inherited {
		if _, ok := res.indexes[course.IndexID]; !ok {
			continue
		}
		add(course)
	}

	sort.Slice(res.Courses, func(i, j int) bool { return res.Courses[i].ID < res.Courses[j].ID })
	for i, course := range res.Courses {
		res.byID[course.ID] = i
	}
	return res
}

// HasCourse reports whether the course is in the resolved set.
func (r Resolution) HasCourse(id int64) bool {
	_, ok := r.byID[id]
	return ok
}

// Course returns the resolved course with id.
func (r Resolution) Course(id int64) (types.Course, bool) {
	i, ok := r.byID[id]
	if !ok {
		return types.Course{}, false
	}
	return r.Courses[i], true
}

// CanSeeIndex reports whether the learner holds an index assignment for id
// or reaches at least one active course under it.
func (r Resolution) CanSeeIndex(id int64) bool {
	if _, ok := r.indexes[id]; ok {
		return true
	}
	for _, course := range r.Courses {
		if course.IndexID == id {
			return true
		}
	}
	return false
}

// CourseIDs returns the resolved course ids in ascending order.
func (r Resolution) CourseIDs() []int64 {
	ids := make([]int64, len(r.Courses))
	for i, course := range r.Courses {
		ids[i] = course.ID
	}
	return ids
}

// IndexIDs returns the distinct index ids of the resolved courses.
func (r Resolution) IndexIDs() []int64 {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, course := range r.Courses {
		if _, ok := seen[course.IndexID]; ok {
			continue
		}
		seen[course.IndexID] = struct{}{}
		ids = append(ids, course.IndexID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// VisibleIndexIDs returns the assigned indexes together with the indexes of
// resolved courses, ascending.
func (r Resolution) VisibleIndexIDs() []int64 {
	ids := r.IndexIDs()
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for id := range r.indexes {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
