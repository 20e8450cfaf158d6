package stubapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

var (
	errNotFound = echo.NewHTTPError(http.StatusNotFound, echo.Map{"detail": "Not found."})
	errRefresh  = echo.NewHTTPError(http.StatusUnauthorized, echo.Map{"detail": "Token is invalid or expired", "code": "token_not_valid"})
)

type (
	loginRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	courseRequest struct {
		Subject     int       `json:"subject"`
		Description string    `json:"description"`
		Schedule    time.Time `json:"schedule"`
		Room        string    `json:"room"`
		Students    []int     `json:"students"`
	}

	courseSummary struct {
		ID               int    `json:"id"`
		SubjectName      string `json:"subject_name"`
		Room             string `json:"room"`
		Description      string `json:"description"`
		TeacherFirstName string `json:"teacher_first_name"`
		TeacherLastName  string `json:"teacher_last_name"`
		UnsubmittedTasks int    `json:"unsubmitted_tasks"`
	}

	courseData struct {
		ID          int       `json:"id"`
		Subject     int       `json:"subject"`
		Description string    `json:"description"`
		Schedule    time.Time `json:"schedule"`
		Room        string    `json:"room"`
		Students    []int     `json:"students"`
	}

	taskData struct {
		ID          int       `json:"id"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Deadline    time.Time `json:"deadline"`
		AssignedBy  int       `json:"assigned_by"`
	}

	announcementData struct {
		ID           int       `json:"id"`
		Title        string    `json:"title"`
		UserFullName string    `json:"user_full_name"`
		Content      string    `json:"content"`
		Date         time.Time `json:"date"`
	}

	taskGrade struct {
		TaskTitle string  `json:"task_title"`
		Grade     float64 `json:"grade"`
	}

	courseGrades struct {
		CourseSubject string      `json:"course_subject"`
		TeacherName   string      `json:"teacher_name"`
		Tasks         []taskGrade `json:"tasks"`
	}
)

func (s *Server) login(ctx echo.Context) error {
	var data loginRequest
	if err := ctx.Bind(&data); err != nil {
		return errInvalidCredential
	}

	s.mu.Lock()
	var usr *User
	for _, u := range s.users {
		if u.Username == data.Username {
			usr = u
			break
		}
	}
	s.mu.Unlock()
	if usr == nil || !usr.checkPassword(data.Password) {
		return errInvalidCredential
	}

	access, err := s.generateToken(*usr, tokenTypeAccess, s.accessTTL)
	if err != nil {
		return errors.Wrap(err, "generating access token")
	}
	refresh, err := s.generateToken(*usr, tokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return errors.Wrap(err, "generating refresh token")
	}
	s.setTokenCookie(ctx, AccessTokenCookie, access, s.accessTTL)
	s.setTokenCookie(ctx, RefreshTokenCookie, refresh, s.refreshTTL)
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Token sent successfully"})
}

func (s *Server) refresh(ctx echo.Context) error {
	s.mu.Lock()
	fail := s.failRefresh
	s.mu.Unlock()
	if fail {
		return errRefresh
	}

	cookie, err := ctx.Cookie(RefreshTokenCookie)
	if err != nil || cookie.Value == "" {
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"refresh": []string{"This field is required."}})
	}
	usr, err := s.parseToken(cookie.Value, tokenTypeRefresh)
	if err != nil {
		return errRefresh
	}

	access, err := s.generateToken(usr, tokenTypeAccess, s.accessTTL)
	if err != nil {
		return errors.Wrap(err, "generating access token")
	}
	s.setTokenCookie(ctx, AccessTokenCookie, access, s.accessTTL)
	return ctx.JSON(http.StatusOK, echo.Map{"access": access})
}

func (s *Server) logout(ctx echo.Context) error {
	s.deleteTokenCookie(ctx, AccessTokenCookie)
	s.deleteTokenCookie(ctx, RefreshTokenCookie)
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}

func (s *Server) userLogin(ctx echo.Context) error {
	usr := contextUser(ctx)
	return ctx.JSON(http.StatusOK, echo.Map{
		"id":       usr.ID,
		"username": usr.Username,
		"email":    usr.Email,
		"role":     usr.Role,
		"fullname": usr.FullName(),
	})
}

func (s *Server) userProfile(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errNotFound
	}
	usr := contextUser(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.users[id]
	if !ok {
		return errNotFound
	}

	ownerCourses := s.memberCourses(*owner)
	shared := owner.ID == usr.ID
	for _, c := range ownerCourses {
		if c.hasMember(usr.ID) {
			shared = true
			break
		}
	}
	if !shared {
		return echo.NewHTTPError(http.StatusForbidden, echo.Map{"detail": "You are not authorized to view this profile."})
	}

	return ctx.JSON(http.StatusOK, echo.Map{
		"id":              owner.ID,
		"fullname":        owner.FullName(),
		"email":           owner.Email,
		"role":            owner.Role,
		"courses":         s.summaries(ownerCourses, User{}),
		"profile_picture": nil,
	})
}

// s.mu must be held.
func (s *Server) summaries(courses []*Course, viewer User) []courseSummary {
	out := make([]courseSummary, 0, len(courses))
	for _, c := range courses {
		sum := courseSummary{
			ID:          c.ID,
			SubjectName: s.subjectName(c.SubjectID),
			Room:        c.Room,
			Description: c.Description,
		}
		if teacher, ok := s.users[c.TeacherID]; ok {
			sum.TeacherFirstName = teacher.FirstName
			sum.TeacherLastName = teacher.LastName
		}
		if viewer.Role == RoleStudent {
			for _, t := range c.Tasks {
				if !t.Submitted[viewer.ID] {
					sum.UnsubmittedTasks++
				}
			}
		}
		out = append(out, sum)
	}
	return out
}

func (s *Server) courseList(ctx echo.Context) error {
	usr := contextUser(ctx)
	if usr.Role != RoleStudent && usr.Role != RoleTeacher {
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"error": "Invalid role or no courses found"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return ctx.JSON(http.StatusOK, echo.Map{
		"role":    usr.Role,
		"courses": s.summaries(s.memberCourses(usr), usr),
	})
}

// memberCourse finds the course of the `:id` param the context user is a member of.
// s.mu must be held.
func (s *Server) memberCourse(ctx echo.Context) (*Course, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return nil, errNotFound
	}
	c, ok := s.courses[id]
	if !ok {
		return nil, errNotFound
	}
	if !c.hasMember(contextUser(ctx).ID) {
		return nil, echo.NewHTTPError(http.StatusForbidden, echo.Map{"error": "You do not have permission to view this course."})
	}
	return c, nil
}

func (s *Server) courseDetail(ctx echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.memberCourse(ctx)
	if err != nil {
		return err
	}

	tasks := make([]taskData, 0, len(c.Tasks))
	for _, t := range c.Tasks {
		tasks = append(tasks, taskData{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Deadline:    t.Deadline,
			AssignedBy:  c.TeacherID,
		})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Deadline.Before(tasks[j].Deadline) })

	return ctx.JSON(http.StatusOK, echo.Map{
		"course":       newCourseData(c),
		"tasks":        tasks,
		"teacher_name": s.fullName(c.TeacherID),
		"subject_name": s.subjectName(c.SubjectID),
	})
}

func (s *Server) courseAnnouncements(ctx echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.memberCourse(ctx)
	if err != nil {
		return err
	}

	announcements := make([]announcementData, 0, len(c.Announcements))
	for _, a := range c.Announcements {
		announcements = append(announcements, announcementData{
			ID:           a.ID,
			Title:        a.Title,
			UserFullName: s.fullName(a.AuthorID),
			Content:      a.Content,
			Date:         a.Date,
		})
	}
	sort.Slice(announcements, func(i, j int) bool { return announcements[i].Date.After(announcements[j].Date) })

	return ctx.JSON(http.StatusOK, echo.Map{
		"announcements": announcements,
		"comments":      []interface{}{},
		"reactions":     []interface{}{},
	})
}

func (s *Server) studentGrades(ctx echo.Context) error {
	usr := contextUser(ctx)
	if usr.Role != RoleStudent {
		return echo.NewHTTPError(http.StatusForbidden, echo.Map{"error": "Only students can access their grades"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	grades := make([]courseGrades, 0)
	var sum float64
	var count int
	for _, c := range s.memberCourses(usr) {
		group := courseGrades{CourseSubject: s.subjectName(c.SubjectID), TeacherName: s.fullName(c.TeacherID)}
		for _, t := range c.Tasks {
			if grade, ok := t.Grades[usr.ID]; ok {
				group.Tasks = append(group.Tasks, taskGrade{TaskTitle: t.Title, Grade: grade})
				sum += grade
				count++
			}
		}
		if len(group.Tasks) > 0 {
			grades = append(grades, group)
		}
	}

	var avg interface{} // null when nothing is graded
	if count > 0 {
		avg = sum / float64(count)
	}
	return ctx.JSON(http.StatusOK, echo.Map{"task_grades": grades, "average_task_grade": avg})
}

func (s *Server) createCourse(ctx echo.Context) error {
	usr := contextUser(ctx)
	if usr.Role != RoleTeacher {
		return echo.NewHTTPError(http.StatusForbidden, echo.Map{"error": "Only teachers can create courses"})
	}

	var data courseRequest
	if err := ctx.Bind(&data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"non_field_errors": []string{err.Error()}})
	}

	s.mu.Lock()
	fldErrs := make(map[string][]string)
	if _, ok := s.subjects[data.Subject]; !ok {
		fldErrs["subject"] = []string{"Invalid pk \"" + strconv.Itoa(data.Subject) + "\" - object does not exist."}
	}
	if strings.TrimSpace(data.Room) == "" {
		fldErrs["room"] = []string{"This field is required."}
	}
	for _, id := range data.Students {
		if u, ok := s.users[id]; !ok || u.Role != RoleStudent {
			fldErrs["students"] = []string{"Invalid pk \"" + strconv.Itoa(id) + "\" - object does not exist."}
			break
		}
	}
	s.mu.Unlock()
	if len(fldErrs) > 0 {
		return ctx.JSON(http.StatusBadRequest, fldErrs)
	}

	if data.Schedule.IsZero() {
		data.Schedule = time.Now()
	}
	if data.Description == "" {
		data.Description = "Write a short description about the course..."
	}
	c := s.AddCourse(Course{
		SubjectID:   data.Subject,
		TeacherID:   usr.ID,
		Description: data.Description,
		Schedule:    data.Schedule,
		Room:        data.Room,
		StudentIDs:  data.Students,
	})
	return ctx.JSON(http.StatusCreated, echo.Map{"message": "Course created successfully", "course": newCourseData(&c)})
}

func newCourseData(c *Course) courseData {
	students := c.StudentIDs
	if students == nil {
		students = []int{}
	}
	return courseData{
		ID:          c.ID,
		Subject:     c.SubjectID,
		Description: c.Description,
		Schedule:    c.Schedule,
		Room:        c.Room,
		Students:    students,
	}
}
