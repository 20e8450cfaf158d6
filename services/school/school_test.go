package school

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/edusys/core"
	"github.com/trezcool/edusys/core/session"
	"github.com/trezcool/edusys/services/gateway"
	"github.com/trezcool/edusys/tests"
	"github.com/trezcool/edusys/tests/stubapi"
)

func setup(t *testing.T, username string) (*Client, *stubapi.Server) {
	stub := stubapi.New(stubapi.Options{DisableReqLogs: true})
	require.NoError(t, stubapi.Seed(stub))
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	gw, err := gateway.New(srv.URL+stubapi.Prefix, testutil.NewLogger(t))
	require.NoError(t, err)
	if username != "" {
		require.NoError(t, gw.Post(context.Background(), "token/", map[string]string{"username": username, "password": "password"}, nil))
	}

	translator := core.NewTranslator()
	return NewClient(gw, core.NewValidator(translator), translator), stub
}

func TestClient_student(t *testing.T) {
	c, _ := setup(t, "ada")
	ctx := context.Background()

	list, err := c.Courses(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.RoleStudent, list.Role)
	require.Len(t, list.Courses, 2)
	math := list.Courses[1]
	assert.Equal(t, "Mathematics", math.SubjectName)
	assert.Equal(t, "Grace Hopper", math.TeacherName())
	assert.Equal(t, 1, math.UnsubmittedTasks)

	detail, err := c.Course(ctx, math.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mathematics", detail.SubjectName)
	assert.Equal(t, "B12", detail.Course.Room)
	require.Len(t, detail.Tasks, 2)
	assert.Equal(t, "Limits", detail.Tasks[0].Title, "ordered by deadline")

	anns, err := c.CourseAnnouncements(ctx, math.ID)
	require.NoError(t, err)
	require.Len(t, anns.Announcements, 2)
	assert.Equal(t, "Test on Friday", anns.Announcements[0].Title, "latest first")
	assert.Equal(t, "Grace Hopper", anns.Announcements[0].UserFullName)

	grades, err := c.StudentGrades(ctx)
	require.NoError(t, err)
	assert.Len(t, grades.TaskGrades, 2)
	require.NotNil(t, grades.Average)
	assert.InDelta(t, 4.0, *grades.Average, 0.001)

	_, err = c.CreateCourse(ctx, NewCourse{Subject: 1, Room: "A1"})
	var srvErr *gateway.ServerError
	require.True(t, errors.As(err, &srvErr), "got %T: %v", err, err)
	assert.Equal(t, http.StatusForbidden, srvErr.Status)
	assert.Equal(t, "Only teachers can create courses", srvErr.Message())
}

func TestClient_teacher(t *testing.T) {
	c, stub := setup(t, "teacher")
	ctx := context.Background()

	list, err := c.Courses(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.RoleTeacher, list.Role)
	assert.Len(t, list.Courses, 2)

	_, err = c.StudentGrades(ctx)
	var srvErr *gateway.ServerError
	require.True(t, errors.As(err, &srvErr), "got %T: %v", err, err)
	assert.Equal(t, http.StatusForbidden, srvErr.Status)

	physics := stub.AddSubject("Physics", 11, "Science")
	course, err := c.CreateCourse(ctx, NewCourse{Subject: physics.ID, Room: " Lab 2 ", Description: "Mechanics."})
	require.NoError(t, err)
	assert.Equal(t, "Lab 2", course.Room)
	assert.Equal(t, physics.ID, course.Subject)

	stored, ok := stub.Course(course.ID)
	require.True(t, ok)
	assert.Equal(t, "Mechanics.", stored.Description)
}

func TestClient_CreateCourse_validation(t *testing.T) {
	c, stub := setup(t, "teacher")
	ctx := context.Background()

	tests := []struct {
		name       string
		data       NewCourse
		wantFields []string
		wantCalls  int
	}{
		{name: "missing fields", data: NewCourse{}, wantFields: []string{"room", "subject"}},
		{name: "room too long", data: NewCourse{Subject: 1, Room: string(make([]byte, 101))}, wantFields: []string{"room"}},
		{name: "unknown subject", data: NewCourse{Subject: 999, Room: "A1"}, wantFields: []string{"subject"}, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub.ResetHits()

			_, err := c.CreateCourse(ctx, tt.data)

			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr), "got %T: %v", err, err)
			for _, fld := range tt.wantFields {
				assert.Contains(t, vErr.FieldMap(), fld)
			}
			assert.Equal(t, tt.wantCalls, stub.Hits("create-course/"))
		})
	}
}

func TestClient_Profile(t *testing.T) {
	c, _ := setup(t, "ada")
	ctx := context.Background()

	list, err := c.Courses(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, list.Courses)

	me, err := c.Profile(ctx, 2) // ada is the second seeded user
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", me.FullName)
	assert.Equal(t, session.RoleStudent, me.Role)
	assert.Nil(t, me.ProfilePicture)

	_, err = c.Profile(ctx, 999)
	var srvErr *gateway.ServerError
	require.True(t, errors.As(err, &srvErr), "got %T: %v", err, err)
	assert.Equal(t, http.StatusNotFound, srvErr.Status)
}
