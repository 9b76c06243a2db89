// Package forms validates user input before it is sent to the API. Each field
// carries a single user-facing message, shown inline next to the field.
package forms

import (
	"errors"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"eventsphere/internal/models"
)

// FieldErrors maps a form field to its message. Submission is blocked while
// it is non-empty.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+fe[f])
	}
	return strings.Join(parts, "; ")
}

// dateLayouts are tried in order; layouts without a zone are read as local
// time.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognised date")
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func engine() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
			_, err := ParseDate(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("nonnegnum", func(fl validator.FieldLevel) bool {
			n, err := strconv.ParseFloat(strings.TrimSpace(fl.Field().String()), 64)
			return err == nil && n >= 0 && !math.IsInf(n, 1)
		})
		_ = v.RegisterValidation("wholemin1", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" || strings.Trim(s, "0123456789") != "" {
				return false
			}
			n, err := strconv.Atoi(s)
			return err == nil && n >= 1
		})
		validate = v
	})
	return validate
}

// check runs the validator and maps each failing field to messages[field].
func check(form interface{}, messages map[string]string) error {
	err := engine().Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := FieldErrors{}
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		msg, ok := messages[fe.Field()]
		if !ok {
			msg = fe.Error()
		}
		out[fe.Field()] = msg
	}
	return out
}

type SignIn struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

func (f SignIn) Validate() error {
	return check(f, map[string]string{
		"email":    "Invalid email address",
		"password": "Password is required",
	})
}

func (f SignIn) Request() models.SignInRequest {
	return models.SignInRequest{Email: f.Email, Password: f.Password}
}

type SignUp struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"min=8"`
}

func (f SignUp) Validate() error {
	return check(f, map[string]string{
		"email":    "Invalid email address",
		"password": "Password must be at least 8 characters long",
	})
}

func (f SignUp) Request() models.SignUpRequest {
	return models.SignUpRequest{Email: f.Email, Password: f.Password}
}

// CreateEvent holds the raw text of the create-event form.
type CreateEvent struct {
	Title       string `form:"title" validate:"min=3"`
	Description string `form:"description" validate:"min=10"`
	Location    string `form:"location" validate:"min=3"`
	Date        string `form:"date" validate:"date"`
	Price       string `form:"price" validate:"nonnegnum"`
	Capacity    string `form:"capacity" validate:"wholemin1"`
}

func (f CreateEvent) Validate() error {
	return check(f, map[string]string{
		"title":       "Title must be at least 3 characters",
		"description": "Description is too short",
		"location":    "Location is required",
		"date":        "A valid date is required",
		"price":       "Price must be a non-negative number",
		"capacity":    "Capacity must be a whole number of at least 1",
	})
}

// Request validates the form and converts it to the API payload: the date in
// UTC, price as a number, capacity as an integer.
func (f CreateEvent) Request() (models.CreateEventRequest, error) {
	if err := f.Validate(); err != nil {
		return models.CreateEventRequest{}, err
	}
	date, _ := ParseDate(f.Date)
	price, _ := strconv.ParseFloat(strings.TrimSpace(f.Price), 64)
	capacity, _ := strconv.Atoi(strings.TrimSpace(f.Capacity))
	return models.CreateEventRequest{
		Title:       f.Title,
		Description: f.Description,
		Location:    f.Location,
		Date:        date.UTC(),
		Price:       price,
		Capacity:    capacity,
	}, nil
}
