package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/okian/arcade/internal/domain/apperr"
	"github.com/okian/arcade/internal/domain/model"
)

const maxBodyBytes = 1 << 20

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("activity", func(fl validator.FieldLevel) bool {
		return model.ActivityType(fl.Field().String()).Valid()
	})
	return v
}

// decoder reads JSON bodies and validates them.
type decoder struct {
	validate *validator.Validate
}

// body decodes the request body into dst and runs struct validation. Every
// failure is a BadRequest.
func (d *decoder) body(r *http.Request, dst any) error {
	if err := d.read(r, dst); err != nil {
		return err
	}
	return d.check(dst)
}

// read decodes the request body into dst without validating it.
func (d *decoder) read(r *http.Request, dst any) error {
	const op = "api.decode"

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(op, apperr.KindBadRequest, "request body is required")
		}
		return apperr.Newf(op, apperr.KindBadRequest, "malformed JSON body: %v", err)
	}
	return nil
}

func (d *decoder) check(v any) error {
	err := d.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.WrapKind("api.validate", apperr.KindBadRequest, err)
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return apperr.Invalid("api.validate", fields...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "required_without":
		return fe.Field() + " is required when no other identity is given"
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "activity":
		return "unknown activity type"
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// Query helpers. A missing parameter yields the default; a malformed one is
// a BadRequest naming the parameter.

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Invalid("api.query", apperr.FieldError{Field: name, Message: name + " must be an integer"})
	}
	return n, nil
}

func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.Invalid("api.query", apperr.FieldError{Field: name, Message: name + " must be RFC3339"})
	}
	t = t.UTC()
	return &t, nil
}

func queryBool(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.Invalid("api.query", apperr.FieldError{Field: name, Message: name + " must be a boolean"})
	}
	return b, nil
}

func pathInt(name, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Invalid("api.path", apperr.FieldError{Field: name, Message: name + " must be an integer"})
	}
	return n, nil
}
