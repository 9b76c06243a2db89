package api

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validationProblems returns one message per failed field, worded the way
// the API reports them in a 400 body.
func validationProblems(req interface{}) []string {
	err := requestValidator().Struct(req)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	problems := make([]string, 0, len(errs))
	for _, fe := range errs {
		problems = append(problems, problem(fe))
	}
	return problems
}

func problem(fe validator.FieldError) string {
	switch fe.Tag() {
	case "email":
		return fmt.Sprintf("%s must be an email", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be longer than or equal to %s characters", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must not be less than %s", fe.Field(), fe.Param())
	case "required":
		if fe.Kind() == reflect.Struct {
			return fmt.Sprintf("%s must be a valid ISO 8601 date string", fe.Field())
		}
		return fmt.Sprintf("%s should not be empty", fe.Field())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
