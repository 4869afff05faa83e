package models

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// textmin and textmax bound a string's length in UTF-16 code units, the way
// browsers and the web client count characters. A character outside the
// Basic Multilingual Plane, such as most emoji, counts as two.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("textmin", textLength(func(n, limit int) bool { return n >= limit })); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("textmax", textLength(func(n, limit int) bool { return n <= limit })); err != nil {
		panic(err)
	}
	return v
}

func textLength(ok func(n, limit int) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			panic(fmt.Sprintf("bad length param %q on %s", fl.Param(), fl.FieldName()))
		}
		return ok(TextLength(fl.Field().String()), limit)
	}
}

// TextLength counts s in UTF-16 code units.
func TextLength(s string) int {
	n := 0
	for _, r := range s {
		if l := len(utf16.Encode([]rune{r})); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// FieldError describes one failing field of a PostInput.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when a PostInput breaks the title/content rules.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", strings.ToLower(f.Field), f.Message))
	}
	return "Post validation failed: " + strings.Join(msgs, ", ")
}

// Normalize returns a copy of the input with title and content trimmed.
func (in PostInput) Normalize() PostInput {
	return PostInput{
		Title:   strings.TrimSpace(in.Title),
		Content: strings.TrimSpace(in.Content),
	}
}

// Validate trims the input and checks it. The trimmed input is returned so
// callers persist exactly what was validated.
func (in PostInput) Validate() (PostInput, error) {
	in = in.Normalize()

	err := validate.Struct(in)
	if err == nil {
		return in, nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return in, fmt.Errorf("validate post: %w", err)
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
		})
	}
	return in, out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() + "." + fe.Tag() {
	case "Title.required":
		return "Title is required"
	case "Title.textmin":
		return "Title must be at least 3 characters long"
	case "Title.textmax":
		return "Title cannot exceed 100 characters"
	case "Content.required":
		return "Content is required"
	case "Content.textmin":
		return "Content cannot be empty"
	case "Content.textmax":
		return "Content cannot exceed 5000 characters"
	}
	return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
}
