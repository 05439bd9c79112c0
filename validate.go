package ugibdd

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields under their wire names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags of s and converts failures into a *ValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	out := &ValidationError{}
	for _, fe := range fieldErrs {
		out.Add(fe.Field(), fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	text := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return "обязательное поле"
	case "min":
		if text {
			return fmt.Sprintf("не менее %s символов", fe.Param())
		}
		return fmt.Sprintf("не меньше %s", fe.Param())
	case "max":
		if text {
			return fmt.Sprintf("не более %s символов", fe.Param())
		}
		return fmt.Sprintf("не больше %s", fe.Param())
	case "gt":
		return fmt.Sprintf("должно быть больше %s", fe.Param())
	case "len":
		return fmt.Sprintf("должно содержать ровно %s символов", fe.Param())
	case "numeric":
		return "только цифры"
	case "oneof":
		return "допустимые значения: " + fe.Param()
	}
	return "некорректное значение"
}
