package stubapi

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	RoleStudent = "Student"
	RoleTeacher = "Teacher"
)

type (
	User struct {
		ID        int
		Username  string
		Email     string
		FirstName string
		LastName  string
		Role      string
		password  []byte
	}

	Subject struct {
		ID       int
		Name     string
		Grade    int
		Category string
	}

	Course struct {
		ID            int
		SubjectID     int
		TeacherID     int
		Description   string
		Schedule      time.Time
		Room          string
		StudentIDs    []int
		Tasks         []Task
		Announcements []Announcement
	}

	Task struct {
		ID          int
		Title       string
		Description string
		Deadline    time.Time
		// per student ID
		Submitted map[int]bool
		Grades    map[int]float64
	}

	Announcement struct {
		ID       int
		Title    string
		Content  string
		AuthorID int
		Date     time.Time
	}
)

func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

func (u *User) setPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.MinCost)
	if err != nil {
		return err
	}
	u.password = hash
	return nil
}

func (u User) checkPassword(pwd string) bool {
	return bcrypt.CompareHashAndPassword(u.password, []byte(pwd)) == nil
}

func (c Course) hasStudent(id int) bool {
	for _, sid := range c.StudentIDs {
		if sid == id {
			return true
		}
	}
	return false
}

func (c Course) hasMember(id int) bool {
	return c.TeacherID == id || c.hasStudent(id)
}
