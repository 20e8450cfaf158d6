package stubapi

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

func (s *Server) nextID() int {
	s.lastID++
	return s.lastID
}

// AddUser registers a user able to log in with username and password.
func (s *Server) AddUser(username, password, email, firstName, lastName, role string) (User, error) {
	usr := User{
		Username:  username,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Role:      role,
	}
	if err := usr.setPassword(password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return User{}, errors.Errorf("username %q already taken", username)
		}
	}
	usr.ID = s.nextID()
	s.users[usr.ID] = &usr
	return usr, nil
}

func (s *Server) AddSubject(name string, grade int, category string) Subject {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := Subject{ID: s.nextID(), Name: name, Grade: grade, Category: category}
	s.subjects[sub.ID] = &sub
	return sub
}

// AddCourse stores c with new IDs for the course, its tasks and announcements.
func (s *Server) AddCourse(c Course) Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextID()
	for i := range c.Tasks {
		c.Tasks[i].ID = s.nextID()
	}
	for i := range c.Announcements {
		c.Announcements[i].ID = s.nextID()
	}
	s.courses[c.ID] = &c
	return c
}

// Course returns a copy of the stored course.
func (s *Server) Course(id int) (Course, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return Course{}, false
	}
	return *c, true
}

// memberCourses returns the courses usr teaches or attends, ordered by subject name.
// s.mu must be held.
func (s *Server) memberCourses(usr User) []*Course {
	var courses []*Course
	for _, c := range s.courses {
		if (usr.Role == RoleTeacher && c.TeacherID == usr.ID) || (usr.Role == RoleStudent && c.hasStudent(usr.ID)) {
			courses = append(courses, c)
		}
	}
	sort.Slice(courses, func(i, j int) bool {
		si, sj := s.subjectName(courses[i].SubjectID), s.subjectName(courses[j].SubjectID)
		if si == sj {
			return courses[i].ID < courses[j].ID
		}
		return si < sj
	})
	return courses
}

// s.mu must be held.
func (s *Server) subjectName(id int) string {
	if sub, ok := s.subjects[id]; ok {
		return sub.Name
	}
	return ""
}

// s.mu must be held.
func (s *Server) fullName(id int) string {
	if usr, ok := s.users[id]; ok {
		return usr.FullName()
	}
	return ""
}

// Seed fills the server with a teacher, two students and a couple of courses.
// Every seeded user has the password "password".
func Seed(s *Server) error {
	const pwd = "password"

	teacher, err := s.AddUser("teacher", pwd, "teacher@edusys.test", "Grace", "Hopper", RoleTeacher)
	if err != nil {
		return err
	}
	ada, err := s.AddUser("ada", pwd, "ada@edusys.test", "Ada", "Lovelace", RoleStudent)
	if err != nil {
		return err
	}
	alan, err := s.AddUser("alan", pwd, "alan@edusys.test", "Alan", "Turing", RoleStudent)
	if err != nil {
		return err
	}

	math := s.AddSubject("Mathematics", 10, "Science")
	cs := s.AddSubject("Computer Science", 10, "Science")
	now := time.Now().Truncate(time.Second)

	s.AddCourse(Course{
		SubjectID:   math.ID,
		TeacherID:   teacher.ID,
		Description: "Algebra and analysis.",
		Schedule:    now.Add(24 * time.Hour),
		Room:        "B12",
		StudentIDs:  []int{ada.ID, alan.ID},
		Tasks: []Task{
			{
				Title:     "Limits",
				Deadline:  now.Add(-48 * time.Hour),
				Submitted: map[int]bool{ada.ID: true, alan.ID: true},
				Grades:    map[int]float64{ada.ID: 5, alan.ID: 4},
			},
			{
				Title:     "Derivatives",
				Deadline:  now.Add(72 * time.Hour),
				Submitted: map[int]bool{alan.ID: true},
			},
		},
		Announcements: []Announcement{
			{Title: "Welcome", Content: "Books are in the library.", AuthorID: teacher.ID, Date: now.Add(-72 * time.Hour)},
			{Title: "Test on Friday", Content: "Chapters 1 to 3.", AuthorID: teacher.ID, Date: now.Add(-time.Hour)},
		},
	})
	s.AddCourse(Course{
		SubjectID:   cs.ID,
		TeacherID:   teacher.ID,
		Description: "Computability.",
		Schedule:    now.Add(48 * time.Hour),
		Room:        "Lab 1",
		StudentIDs:  []int{ada.ID},
		Tasks: []Task{
			{
				Title:     "Turing machines",
				Deadline:  now.Add(-24 * time.Hour),
				Submitted: map[int]bool{ada.ID: true},
				Grades:    map[int]float64{ada.ID: 3},
			},
		},
	})
	return nil
}
