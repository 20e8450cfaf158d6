package echoweb

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/edusys/core"
	"github.com/trezcool/edusys/core/auth"
	"github.com/trezcool/edusys/core/session"
	"github.com/trezcool/edusys/services/school"
)

// scheduleLayout is the value format of a datetime-local input.
const scheduleLayout = "2006-01-02T15:04"

type (
	page struct {
		AppName  string
		Title    string
		Identity *session.Identity
		Notice   string
		Error    string
		Fields   map[string]string
		Form     interface{}
		Data     interface{}
		Refresh  int
	}

	courseView struct {
		Detail        school.CourseDetail
		Announcements school.CourseAnnouncements
	}

	errorView struct {
		Code int
	}

	courseForm struct {
		Subject     int    `form:"subject"`
		Room        string `form:"room"`
		Schedule    string `form:"schedule"`
		Description string `form:"description"`
	}
)

func (f courseForm) ScheduleInput() string {
	return f.Schedule
}

// newCourse converts the form into the API payload. The schedule is read in local time.
func (f courseForm) newCourse() (school.NewCourse, error) {
	data := school.NewCourse{
		Subject:     f.Subject,
		Room:        f.Room,
		Description: f.Description,
	}
	if sched := strings.TrimSpace(f.Schedule); sched != "" {
		t, err := time.ParseInLocation(scheduleLayout, sched, time.Local)
		if err != nil {
			return data, core.NewValidationError(err, core.FieldError{Field: "schedule", Error: "invalid date"})
		}
		data.Schedule = &t
	}
	return data, nil
}

func (s *Server) newPage(ctx echo.Context, title string) page {
	p := page{AppName: s.deps.Conf.AppName, Title: title}
	if id, ok := contextIdentity(ctx); ok {
		p.Identity = &id
	}
	return p
}

func registerViews(s *Server) {
	s.app.GET("/", func(ctx echo.Context) error {
		return ctx.Redirect(http.StatusSeeOther, homePath)
	})
	s.app.GET(loginPath, s.loginForm)
	s.app.POST(loginPath, s.login)
	s.app.POST("/logout", s.logout)

	views := s.app.Group("", s.guardMiddleware)
	views.GET(homePath, s.home)
	views.GET("/course/:id", s.course)
	views.GET("/grades", s.grades, roleMiddleware(session.RoleStudent))
	views.GET("/create-course", s.createCourseForm, roleMiddleware(session.RoleTeacher))
	views.POST("/create-course", s.createCourse, roleMiddleware(session.RoleTeacher))
	views.GET("/profile", s.profile)
	views.GET("/403", s.forbidden)
	views.RouteNotFound("/*", s.notFound)
}

func (s *Server) loginForm(ctx echo.Context) error {
	if snap := s.awaitSettled(ctx); snap.Authenticated() {
		return ctx.Redirect(http.StatusSeeOther, homePath)
	}
	p := s.newPage(ctx, "Log in")
	p.Notice = s.popNotice()
	return ctx.Render(http.StatusOK, "login", p)
}

func (s *Server) login(ctx echo.Context) error {
	var form auth.LoginRequest
	if err := ctx.Bind(&form); err != nil {
		return err
	}
	s.awaitSettled(ctx)

	p := s.newPage(ctx, "Log in")
	p.Form = auth.LoginRequest{Username: form.Username}

	_, err := s.deps.Auth.Login(ctx.Request().Context(), form)
	var vErr *core.ValidationError
	switch {
	case err == nil, errors.Is(err, auth.ErrAlreadyAuthenticated):
		return ctx.Redirect(http.StatusSeeOther, homePath)
	case errors.Is(err, auth.ErrInvalidCredentials):
		p.Error = "Invalid credentials"
		return ctx.Render(http.StatusUnauthorized, "login", p)
	case errors.Is(err, auth.ErrResolving):
		ctx.Response().Header().Set("Retry-After", "1")
		p.Error = "Still loading, please try again."
		return ctx.Render(http.StatusServiceUnavailable, "login", p)
	case errors.As(err, &vErr):
		p.Fields = vErr.FieldMap()
		return ctx.Render(http.StatusBadRequest, "login", p)
	}
	return err
}

func (s *Server) logout(ctx echo.Context) error {
	if err := s.deps.Auth.Logout(ctx.Request().Context()); err != nil {
		s.deps.Logger.Warn("logout was not acknowledged by the API", err)
	}
	return ctx.Redirect(http.StatusSeeOther, loginPath)
}

func (s *Server) home(ctx echo.Context) error {
	list, err := s.deps.School.Courses(ctx.Request().Context())
	if err != nil {
		return err
	}
	p := s.newPage(ctx, "My courses")
	p.Data = list
	return ctx.Render(http.StatusOK, "home", p)
}

func (s *Server) course(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil || id <= 0 {
		return echo.ErrNotFound
	}

	rctx := ctx.Request().Context()
	detail, err := s.deps.School.Course(rctx, id)
	if err != nil {
		return err
	}
	anns, err := s.deps.School.CourseAnnouncements(rctx, id)
	if err != nil {
		return err
	}

	p := s.newPage(ctx, detail.SubjectName)
	p.Data = courseView{Detail: detail, Announcements: anns}
	return ctx.Render(http.StatusOK, "course", p)
}

func (s *Server) grades(ctx echo.Context) error {
	grades, err := s.deps.School.StudentGrades(ctx.Request().Context())
	if err != nil {
		return err
	}
	p := s.newPage(ctx, "Grades")
	p.Data = grades
	return ctx.Render(http.StatusOK, "grades", p)
}

func (s *Server) createCourseForm(ctx echo.Context) error {
	p := s.newPage(ctx, "New course")
	p.Form = courseForm{}
	return ctx.Render(http.StatusOK, "create_course", p)
}

func (s *Server) createCourse(ctx echo.Context) error {
	p := s.newPage(ctx, "New course")

	var form courseForm
	if err := ctx.Bind(&form); err != nil {
		p.Form = form
		p.Fields = map[string]string{"subject": "must be a number"}
		return ctx.Render(http.StatusBadRequest, "create_course", p)
	}
	p.Form = form

	data, err := form.newCourse()
	if err == nil {
		var course school.Course
		course, err = s.deps.School.CreateCourse(ctx.Request().Context(), data)
		if err == nil {
			return ctx.Redirect(http.StatusSeeOther, "/course/"+strconv.Itoa(course.ID))
		}
	}

	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		p.Fields = vErr.FieldMap()
		return ctx.Render(http.StatusBadRequest, "create_course", p)
	}
	return err
}

func (s *Server) profile(ctx echo.Context) error {
	id, _ := contextIdentity(ctx)
	prof, err := s.deps.School.Profile(ctx.Request().Context(), id.ID)
	if err != nil {
		return err
	}
	p := s.newPage(ctx, "Profile")
	p.Data = prof
	return ctx.Render(http.StatusOK, "profile", p)
}

func (s *Server) forbidden(echo.Context) error {
	return core.ErrForbidden
}

func (s *Server) notFound(echo.Context) error {
	return echo.ErrNotFound
}
