package services

import (
	"context"
	"strings"
	"testing"

	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upload(name, contentType, body string) Upload {
	return Upload{Name: name, ContentType: contentType, Size: int64(len(body)), Body: strings.NewReader(body)}
}

func TestCourseOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trainerA := h.seedUser(t, "tina", types.RoleTrainer, &h.admin)
	trainerB := h.seedUser(t, "theo", types.RoleTrainer, &h.admin)
	_, course := h.course(t, trainerA, "Go")

	_, err := h.content.UpdateCourse(ctx, trainerB, course.ID, CoursePatch{Title: ptr("Hijacked")})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	stored, err := h.db.Courses().Get(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go", stored.Title)
	assert.Equal(t, trainerA.ID, stored.CreatedBy)

	err = h.content.DeleteCourse(ctx, trainerB, course.ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = h.content.UpdateCourse(ctx, h.admin, course.ID, CoursePatch{Title: ptr("Admin edit")})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization), "admins read but never author")

	_, err = h.content.CreateIndex(ctx, h.admin, IndexInput{Name: "Admin index"})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	updated, err := h.content.UpdateCourse(ctx, trainerA, course.ID, CoursePatch{Title: ptr("Go 2"), IsActive: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "Go 2", updated.Title)
	assert.False(t, updated.IsActive)
}

func TestMoveCourseRequiresTargetIndex(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trainerA := h.seedUser(t, "tina", types.RoleTrainer, &h.admin)
	trainerB := h.seedUser(t, "theo", types.RoleTrainer, &h.admin)
	_, course := h.course(t, trainerA, "Go")
	foreign, _ := h.course(t, trainerB, "Rust")
	own, err := h.content.CreateIndex(ctx, trainerA, IndexInput{Name: "Backend"})
	require.NoError(t, err)

	_, err = h.content.UpdateCourse(ctx, trainerA, course.ID, CoursePatch{IndexID: &foreign.ID})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	moved, err := h.content.UpdateCourse(ctx, trainerA, course.ID, CoursePatch{IndexID: &own.ID})
	require.NoError(t, err)
	assert.Equal(t, own.ID, moved.IndexID)
}

func TestAuthorListsOnlyOwnContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trainerA := h.seedUser(t, "tina", types.RoleTrainer, &h.admin)
	crm := h.seedUser(t, "cora", types.RoleCRM, &h.admin)
	h.course(t, trainerA, "Go")
	h.course(t, crm, "Sales")

	indexes, err := h.content.ListIndexes(ctx, trainerA)
	require.NoError(t, err)
	require.Len(t, indexes, 1)
	assert.Equal(t, "Go index", indexes[0].Name)
	assert.Equal(t, 1, indexes[0].CourseCount)

	courses, err := h.content.ListCourses(ctx, crm, nil)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "Sales", courses[0].Title)

	all, err := h.content.ListCourses(ctx, h.admin, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLearnerVisibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trainer := h.seedUser(t, "tina", types.RoleTrainer, &h.admin)
	learner := h.seedUser(t, "lena", types.RoleCandidate, &trainer)
	index, goCourse := h.course(t, trainer, "Go")
	hidden, err := h.content.CreateCourse(ctx, trainer, CourseInput{IndexID: index.ID, Title: "Draft", IsActive: ptr(false)})
	require.NoError(t, err)
	_, other := h.course(t, trainer, "Unassigned")

	_, err = h.assignments.Assign(ctx, trainer, AssignInput{UserID: learner.ID, CourseID: &goCourse.ID})
	require.NoError(t, err)
	_, err = h.assignments.Assign(ctx, trainer, AssignInput{UserID: learner.ID, IndexID: &index.ID})
	require.NoError(t, err)

	courses, err := h.content.ListCourses(ctx, learner, nil)
	require.NoError(t, err)
	require.Len(t, courses, 1, "a course reachable directly and via its index is listed once; inactive ones never")
	assert.Equal(t, goCourse.ID, courses[0].ID)

	_, err = h.content.GetCourse(ctx, learner, hidden.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = h.content.GetCourse(ctx, learner, other.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = h.content.UpdateCourse(ctx, learner, goCourse.ID, CoursePatch{Title: ptr("Mine")})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	detail, err := h.content.GetIndex(ctx, learner, index.ID)
	require.NoError(t, err)
	require.Len(t, detail.Courses, 1)
	assert.Equal(t, 1, detail.CourseCount)

	indexes, err := h.content.ListIndexes(ctx, learner)
	require.NoError(t, err)
	require.Len(t, indexes, 1)
	assert.Equal(t, index.ID, indexes[0].ID)

	listing, err := h.assignments.List(ctx, learner, nil)
	require.NoError(t, err)
	assert.Len(t, listing.Courses, 1)
	assert.Len(t, listing.Indexes, 1)
	assert.Len(t, listing.Resolved, 1)
}

func TestCourseDetail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trainer := h.seedUser(t, "tina", types.RoleTrainer, &h.admin)
	learner := h.seedUser(t, "lena", types.RoleCandidate, &trainer)
	_, course := h.course(t, trainer, "Go")
	section, err := h.content.CreateSection(ctx, trainer, SectionInput{CourseID: course.ID, Title: "Intro"})
	require.NoError(t, err)
	first := h.lecture(t, trainer, course.ID, section.ID, 100)

	video, err := h.content.UploadVideo(ctx, trainer, upload("intro.mp4", "video/mp4", "frames"))
	require.NoError(t, err)
	second, err := h.content.CreateLecture(ctx, trainer, LectureInput{
		SectionID:        section.ID,
		Title:            "Stored",
		VideoStoragePath: video.Path,
		VideoMimeType:    "video/mp4",
	})
	require.NoError(t, err)
	assert.Equal(t, first.OrderIndex+1, second.OrderIndex)

	_, err = h.content.UploadFile(ctx, trainer, first.ID, upload("slides.pdf", "application/pdf", "%PDF"))
	require.NoError(t, err)
	_, err = h.assignments.Assign(ctx, trainer, AssignInput{UserID: learner.ID, CourseID: &course.ID})
	require.NoError(t, err)
	_, err = h.progress.Record(ctx, learner, ProgressInput{LectureID: first.ID, TimeSpentSeconds: 30})
	require.NoError(t, err)

	detail, err := h.content.GetCourse(ctx, learner, course.ID)
	require.NoError(t, err)
	require.Len(t, detail.Sections, 1)
	lectures := detail.Sections[0].Lectures
	require.Len(t, lectures, 2)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", lectures[0].VideoURL)
	assert.True(t, strings.HasPrefix(lectures[1].VideoURL, "memory://test/videos/"), lectures[1].VideoURL)
	require.Len(t, lectures[0].Files, 1)
	assert.Empty(t, lectures[1].Files)
	require.NotNil(t, lectures[0].Progress)
	assert.Equal(t, int64(30), lectures[0].Progress.TimeSpentSeconds)
	assert.Nil(t, lectures[1].Progress)
}

func TestDeleteIndexCascades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trainer := h.seedUser(t, "tina", types.RoleTrainer, &h.admin)
	learner := h.seedUser(t, "lena", types.RoleCandidate, &trainer)
	index, err := h.content.CreateIndex(ctx, trainer, IndexInput{Name: "Backend"})
	require.NoError(t, err)

	thumb, err := h.content.UploadThumbnail(ctx, trainer, upload("cover.png", "image/png", "png"))
	require.NoError(t, err)
	for i, title := range []string{"Go", "SQL"} {
		in := CourseInput{IndexID: index.ID, Title: title}
		if i == 0 {
			in.ThumbnailURL = thumb.Path
		}
		course, err := h.content.CreateCourse(ctx, trainer, in)
		require.NoError(t, err)
		section, err := h.content.CreateSection(ctx, trainer, SectionInput{CourseID: course.ID, Title: "Part 1"})
		require.NoError(t, err)
		for j := 0; j < 2; j++ {
			lecture := h.lecture(t, trainer, course.ID, section.ID, 60)
			_, err := h.content.UploadFile(ctx, trainer, lecture.ID, upload("notes.txt", "text/plain", "notes"))
			require.NoError(t, err)
		}
	}
	_, err = h.assignments.Assign(ctx, trainer, AssignInput{UserID: learner.ID, IndexID: &index.ID})
	require.NoError(t, err)

	counts := h.db.Counts()
	assert.Equal(t, 2, counts.Courses)
	assert.Equal(t, 2, counts.Sections)
	assert.Equal(t, 4, counts.Lectures)
	assert.Equal(t, 4, counts.Files)
	assert.Len(t, h.objects.Keys(), 5)

	require.NoError(t, h.content.DeleteIndex(ctx, trainer, index.ID))

	counts = h.db.Counts()
	assert.Zero(t, counts.Indexes)
	assert.Zero(t, counts.Courses)
	assert.Zero(t, counts.Sections)
	assert.Zero(t, counts.Lectures)
	assert.Zero(t, counts.Files)
	assert.Zero(t, counts.IndexAssignments)
	assert.Empty(t, h.objects.Keys(), "stored objects are removed with their rows")

	_, err = h.content.GetIndex(ctx, trainer, index.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSectionAndLectureOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trainer := h.seedUser(t, "tina", types.RoleTrainer, &h.admin)
	_, course := h.course(t, trainer, "Go")

	first, err := h.content.CreateSection(ctx, trainer, SectionInput{CourseID: course.ID, Title: "One"})
	require.NoError(t, err)
	second, err := h.content.CreateSection(ctx, trainer, SectionInput{CourseID: course.ID, Title: "Two"})
	require.NoError(t, err)
	assert.Less(t, first.OrderIndex, second.OrderIndex)

	_, err = h.content.UpdateSection(ctx, trainer, second.ID, SectionPatch{OrderIndex: &first.OrderIndex})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	renamed, err := h.content.UpdateSection(ctx, trainer, second.ID, SectionPatch{Title: ptr("Second")})
	require.NoError(t, err)
	assert.Equal(t, "Second", renamed.Title)

	lecture := h.lecture(t, trainer, course.ID, first.ID, 60)
	_, err = h.content.CreateLecture(ctx, trainer, LectureInput{SectionID: first.ID, Title: "Clash", OrderIndex: lecture.OrderIndex})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	require.NoError(t, h.content.DeleteSection(ctx, trainer, first.ID))
	assert.Zero(t, h.db.Counts().Lectures)
}

func TestLectureVideoValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trainer := h.seedUser(t, "tina", types.RoleTrainer, &h.admin)
	_, course := h.course(t, trainer, "Go")
	section, err := h.content.CreateSection(ctx, trainer, SectionInput{CourseID: course.ID, Title: "One"})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   LectureInput
	}{
		{"not youtube", LectureInput{YouTubeURL: "https://vimeo.com/123"}},
		{"both sources", LectureInput{YouTubeURL: "https://youtu.be/abc", VideoStoragePath: "videos/x.mp4"}},
		{"foreign storage path", LectureInput{VideoStoragePath: "files/x.mp4"}},
		{"not a url", LectureInput{YouTubeURL: "youtube"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.SectionID = section.ID
			tt.in.Title = "Lecture"
			_, err := h.content.CreateLecture(ctx, trainer, tt.in)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}

	video, err := h.content.UploadVideo(ctx, trainer, upload("a.mp4", "video/mp4", "frames"))
	require.NoError(t, err)
	lecture, err := h.content.CreateLecture(ctx, trainer, LectureInput{SectionID: section.ID, Title: "Stored", VideoStoragePath: video.Path})
	require.NoError(t, err)

	switched, err := h.content.UpdateLecture(ctx, trainer, lecture.ID, LecturePatch{YouTubeURL: ptr("https://www.youtube.com/watch?v=xyz")})
	require.NoError(t, err)
	assert.Nil(t, switched.VideoStoragePath, "setting a youtube url clears the stored video")
	assert.NotContains(t, h.objects.Keys(), video.Path, "the replaced video is deleted")

	_, err = h.content.UploadVideo(ctx, trainer, upload("a.txt", "text/plain", "text"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = h.content.UploadThumbnail(ctx, h.admin, upload("a.png", "image/png", "png"))
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestMediaKeysBoundToUploader(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trainerA := h.seedUser(t, "tina", types.RoleTrainer, &h.admin)
	trainerB := h.seedUser(t, "theo", types.RoleTrainer, &h.admin)
	indexB, courseB := h.course(t, trainerB, "Rust")
	sectionB, err := h.content.CreateSection(ctx, trainerB, SectionInput{CourseID: courseB.ID, Title: "One"})
	require.NoError(t, err)

	video, err := h.content.UploadVideo(ctx, trainerA, upload("intro.mp4", "video/mp4", "frames"))
	require.NoError(t, err)
	thumb, err := h.content.UploadThumbnail(ctx, trainerA, upload("cover.png", "image/png", "png"))
	require.NoError(t, err)

	_, err = h.content.CreateLecture(ctx, trainerB, LectureInput{SectionID: sectionB.ID, Title: "Borrowed", VideoStoragePath: video.Path})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)

	lectureB := h.lecture(t, trainerB, courseB.ID, sectionB.ID, 60)
	_, err = h.content.UpdateLecture(ctx, trainerB, lectureB.ID, LecturePatch{VideoStoragePath: &video.Path})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)

	_, err = h.content.CreateCourse(ctx, trainerB, CourseInput{IndexID: indexB.ID, Title: "Cover", ThumbnailURL: thumb.Path})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
	_, err = h.content.UpdateCourse(ctx, trainerB, courseB.ID, CoursePatch{ThumbnailURL: &thumb.Path})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)

	require.NoError(t, h.content.DeleteLecture(ctx, trainerB, lectureB.ID))
	assert.Contains(t, h.objects.Keys(), video.Path)
	assert.Contains(t, h.objects.Keys(), thumb.Path)
}

func TestSharedVideoSurvivesUntilLastReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trainer := h.seedUser(t, "tina", types.RoleTrainer, &h.admin)
	_, course := h.course(t, trainer, "Go")
	section, err := h.content.CreateSection(ctx, trainer, SectionInput{CourseID: course.ID, Title: "One"})
	require.NoError(t, err)

	video, err := h.content.UploadVideo(ctx, trainer, upload("intro.mp4", "video/mp4", "frames"))
	require.NoError(t, err)
	first, err := h.content.CreateLecture(ctx, trainer, LectureInput{SectionID: section.ID, Title: "First", VideoStoragePath: video.Path})
	require.NoError(t, err)
	second, err := h.content.CreateLecture(ctx, trainer, LectureInput{SectionID: section.ID, Title: "Second", VideoStoragePath: video.Path})
	require.NoError(t, err)

	require.NoError(t, h.content.DeleteLecture(ctx, trainer, first.ID))
	assert.Contains(t, h.objects.Keys(), video.Path, "still used by the second lecture")

	_, err = h.content.UpdateLecture(ctx, trainer, second.ID, LecturePatch{VideoStoragePath: ptr("")})
	require.NoError(t, err)
	assert.NotContains(t, h.objects.Keys(), video.Path)
}

func TestUpdateLectureRejectsBothSources(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trainer := h.seedUser(t, "tina", types.RoleTrainer, &h.admin)
	_, course := h.course(t, trainer, "Go")
	section, err := h.content.CreateSection(ctx, trainer, SectionInput{CourseID: course.ID, Title: "One"})
	require.NoError(t, err)
	video, err := h.content.UploadVideo(ctx, trainer, upload("intro.mp4", "video/mp4", "frames"))
	require.NoError(t, err)
	lecture, err := h.content.CreateLecture(ctx, trainer, LectureInput{SectionID: section.ID, Title: "Stored", VideoStoragePath: video.Path})
	require.NoError(t, err)

	_, err = h.content.UpdateLecture(ctx, trainer, lecture.ID, LecturePatch{
		YouTubeURL:       ptr("https://youtu.be/abc"),
		VideoStoragePath: &video.Path,
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)

	stored, err := h.db.Lectures().Get(ctx, lecture.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.VideoStoragePath)
	assert.Nil(t, stored.YouTubeURL)
	assert.Contains(t, h.objects.Keys(), video.Path)
}

func TestDownloadFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trainer := h.seedUser(t, "tina", types.RoleTrainer, &h.admin)
	learner := h.seedUser(t, "lena", types.RoleCandidate, &trainer)
	stranger := h.seedUser(t, "sam", types.RoleCandidate, &trainer)
	_, course := h.course(t, trainer, "Go")
	lecture := h.lecture(t, trainer, course.ID, 0, 60)
	file, err := h.content.UploadFile(ctx, trainer, lecture.ID, upload("slides.pdf", "application/pdf", "%PDF"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), file.FileSize)
	_, err = h.assignments.Assign(ctx, trainer, AssignInput{UserID: learner.ID, CourseID: &course.ID})
	require.NoError(t, err)

	_, err = h.content.DownloadFile(ctx, stranger, file.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	link, err := h.content.DownloadFile(ctx, learner, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "slides.pdf", link.FileName)
	assert.Contains(t, link.URL, "filename=slides.pdf")
	assert.Contains(t, h.db.Activity().Actions(), ActivityDownload)

	_, err = h.content.UploadFile(ctx, learner, lecture.ID, upload("x.txt", "text/plain", "x"))
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	require.NoError(t, h.content.DeleteFile(ctx, trainer, file.ID))
	assert.Empty(t, h.objects.Keys())
}

func TestAssignmentRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trainerA := h.seedUser(t, "tina", types.RoleTrainer, &h.admin)
	trainerB := h.seedUser(t, "theo", types.RoleTrainer, &h.admin)
	mine := h.seedUser(t, "lena", types.RoleCandidate, &trainerA)
	theirs := h.seedUser(t, "bert", types.RoleCandidate, &trainerB)
	index, course := h.course(t, trainerA, "Go")

	_, err := h.assignments.Assign(ctx, trainerA, AssignInput{UserID: mine.ID})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = h.assignments.Assign(ctx, trainerA, AssignInput{UserID: mine.ID, CourseID: &course.ID, IndexID: &index.ID})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = h.assignments.Assign(ctx, trainerA, AssignInput{UserID: theirs.ID, CourseID: &course.ID})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	_, err = h.assignments.Assign(ctx, trainerB, AssignInput{UserID: theirs.ID, CourseID: &course.ID})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	res, err := h.assignments.Assign(ctx, trainerA, AssignInput{UserID: mine.ID, CourseID: &course.ID})
	require.NoError(t, err)
	require.NotNil(t, res.Course)
	assert.Equal(t, trainerA.ID, res.Course.AssignedBy)

	_, err = h.assignments.Assign(ctx, trainerA, AssignInput{UserID: mine.ID, CourseID: &course.ID})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "course is already assigned to this user", apperr.Message(err))

	byMe, err := h.assignments.List(ctx, trainerA, nil)
	require.NoError(t, err)
	assert.Len(t, byMe.Courses, 1)

	_, err = h.assignments.List(ctx, h.admin, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = h.assignments.List(ctx, mine, &theirs.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, h.assignments.Unassign(ctx, trainerA, AssignInput{UserID: mine.ID, CourseID: &course.ID}))
	err = h.assignments.Unassign(ctx, trainerA, AssignInput{UserID: mine.ID, CourseID: &course.ID})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	res2, err := h.assignments.Resolve(ctx, mine.ID)
	require.NoError(t, err)
	assert.Empty(t, res2.Courses)
}
