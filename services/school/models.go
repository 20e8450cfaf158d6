package school

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/edusys/core"
	"github.com/trezcool/edusys/core/session"
)

type (
	CourseSummary struct {
		ID               int    `json:"id"`
		SubjectName      string `json:"subject_name"`
		Room             string `json:"room"`
		Description      string `json:"description"`
		TeacherFirstName string `json:"teacher_first_name"`
		TeacherLastName  string `json:"teacher_last_name"`
		UnsubmittedTasks int    `json:"unsubmitted_tasks"`
	}

	CourseList struct {
		Role    session.Role    `json:"role"`
		Courses []CourseSummary `json:"courses"`
	}

	Course struct {
		ID          int       `json:"id"`
		Subject     int       `json:"subject"`
		Description string    `json:"description"`
		Schedule    time.Time `json:"schedule"`
		Room        string    `json:"room"`
		Students    []int     `json:"students"`
	}

	Task struct {
		ID          int       `json:"id"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Deadline    time.Time `json:"deadline"`
		AssignedBy  int       `json:"assigned_by"`
	}

	CourseDetail struct {
		Course      Course `json:"course"`
		Tasks       []Task `json:"tasks"`
		TeacherName string `json:"teacher_name"`
		SubjectName string `json:"subject_name"`
	}

	Announcement struct {
		ID           int       `json:"id"`
		Title        string    `json:"title"`
		UserFullName string    `json:"user_full_name"`
		Content      string    `json:"content"`
		Date         time.Time `json:"date"`
	}

	Comment struct {
		UserFullName string    `json:"user_full_name"`
		Announcement int       `json:"announcement"`
		Content      string    `json:"content"`
		Date         time.Time `json:"date"`
	}

	Reaction struct {
		UserFullName string    `json:"user_full_name"`
		Announcement int       `json:"announcement"`
		ReactionType string    `json:"reaction_type"`
		Date         time.Time `json:"date"`
	}

	CourseAnnouncements struct {
		Announcements []Announcement `json:"announcements"`
		Comments      []Comment      `json:"comments"`
		Reactions     []Reaction     `json:"reactions"`
	}

	TaskGrade struct {
		TaskTitle string  `json:"task_title"`
		Grade     float64 `json:"grade"`
	}

	CourseGrades struct {
		CourseSubject string      `json:"course_subject"`
		TeacherName   string      `json:"teacher_name"`
		Tasks         []TaskGrade `json:"tasks"`
	}

	Grades struct {
		TaskGrades []CourseGrades `json:"task_grades"`
		Average    *float64       `json:"average_task_grade"` // nil when nothing is graded
	}

	Profile struct {
		ID             int             `json:"id"`
		FullName       string          `json:"fullname"`
		Email          string          `json:"email"`
		Role           session.Role    `json:"role"`
		Courses        []CourseSummary `json:"courses"`
		ProfilePicture *string         `json:"profile_picture"`
	}

	NewCourse struct {
		Subject     int        `json:"subject" form:"subject" validate:"required,gt=0"`
		Description string     `json:"description,omitempty" form:"description" validate:"max=500"`
		Schedule    *time.Time `json:"schedule,omitempty" form:"-"`
		Room        string     `json:"room" form:"room" validate:"required,max=100"`
		Students    []int      `json:"students,omitempty" form:"students"`
	}
)

// TeacherName returns the full name of the course's teacher.
func (c CourseSummary) TeacherName() string {
	switch {
	case c.TeacherFirstName == "":
		return c.TeacherLastName
	case c.TeacherLastName == "":
		return c.TeacherFirstName
	}
	return c.TeacherFirstName + " " + c.TeacherLastName
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Description = core.CleanString(nc.Description)
	nc.Room = core.CleanString(nc.Room)
	return validate.Struct(nc)
}
