// Package school is a typed client of the school API endpoints shown by the views.
package school

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/edusys/core"
	"github.com/trezcool/edusys/services/gateway"
)

// API is the part of the gateway the client needs.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out interface{}) error
	Post(ctx context.Context, path string, body, out interface{}) error
}

var _ API = (*gateway.Gateway)(nil)

// Client errors are the gateway's, untouched, except for validation errors.
type Client struct {
	api        API
	validate   *validator.Validate
	translator ut.Translator
}

func NewClient(api API, validate *validator.Validate, translator ut.Translator) *Client {
	return &Client{api: api, validate: validate, translator: translator}
}

func (c *Client) Courses(ctx context.Context) (CourseList, error) {
	var list CourseList
	err := c.api.Get(ctx, "courses/get-courses/", nil, &list)
	return list, err
}

func (c *Client) Course(ctx context.Context, id int) (CourseDetail, error) {
	var detail CourseDetail
	err := c.api.Get(ctx, "courses-detailed/"+strconv.Itoa(id)+"/", nil, &detail)
	return detail, err
}

func (c *Client) CourseAnnouncements(ctx context.Context, courseID int) (CourseAnnouncements, error) {
	var anns CourseAnnouncements
	err := c.api.Get(ctx, "course-announcements/"+strconv.Itoa(courseID)+"/", nil, &anns)
	return anns, err
}

// StudentGrades is only available to students.
func (c *Client) StudentGrades(ctx context.Context) (Grades, error) {
	var grades Grades
	err := c.api.Get(ctx, "student-grades/", nil, &grades)
	return grades, err
}

func (c *Client) Profile(ctx context.Context, userID int) (Profile, error) {
	var p Profile
	err := c.api.Get(ctx, "get-user-profile/"+strconv.Itoa(userID)+"/", nil, &p)
	return p, err
}

// CreateCourse is only available to teachers.
func (c *Client) CreateCourse(ctx context.Context, data NewCourse) (Course, error) {
	if err := data.Validate(c.validate); err != nil {
		return Course{}, core.TranslateValidationErrors(err, c.translator)
	}

	var resp struct {
		Message string `json:"message"`
		Course  Course `json:"course"`
	}
	if err := c.api.Post(ctx, "create-course/", data, &resp); err != nil {
		return Course{}, fieldErrors(err)
	}
	return resp.Course, nil
}

// fieldErrors converts a 400 carrying the API's field errors ({"field": ["message"]}) into a *core.ValidationError.
func fieldErrors(err error) error {
	var srvErr *gateway.ServerError
	if !errors.As(err, &srvErr) || srvErr.Status != http.StatusBadRequest {
		return err
	}
	var body map[string][]string
	if jErr := (&gateway.Response{Body: srvErr.Body}).Decode(&body); jErr != nil || len(body) == 0 {
		return err
	}
	flds := make([]core.FieldError, 0, len(body))
	for fld, msgs := range body {
		if len(msgs) > 0 {
			flds = append(flds, core.FieldError{Field: fld, Error: msgs[0]})
		}
	}
	sort.Slice(flds, func(i, j int) bool { return flds[i].Field < flds[j].Field })
	return core.NewValidationError(nil, flds...)
}
