package middleware

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/marimovDEV/tipografiya/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var (
	entityIDRegex   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)
	formatNameRegex = regexp.MustCompile(`^\d+(\.\d+)?x\d+(\.\d+)?$`)
)

func registerPlanningValidators(v *validator.Validate) {
	_ = v.RegisterValidation("entity_id", validateEntityID)
	_ = v.RegisterValidation("format_name", validateFormatName)
	_ = v.RegisterValidation("decimal_positive", validateDecimalPositive)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// InitValidator registers the planning validators on a standalone validator
// and on gin's binding validator.
func InitValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		registerPlanningValidators(validate)

		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			registerPlanningValidators(v)
		}
	})
	return validate
}

func validateEntityID(fl validator.FieldLevel) bool {
	return entityIDRegex.MatchString(fl.Field().String())
}

func validateFormatName(fl validator.FieldLevel) bool {
	return formatNameRegex.MatchString(fl.Field().String())
}

// validateDecimalPositive accepts decimal strings greater than zero
func validateDecimalPositive(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	if s == "" || strings.HasPrefix(s, "-") {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return strings.Trim(s, "0.") != ""
}

// ValidationErrorFormatter formats validation errors into a map
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			fields[e.Field()] = formatValidationError(e)
		}
	}
	return fields
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "entity_id":
		return "must be a valid identifier"
	case "format_name":
		return "must be a sheet format name like 70x100"
	case "decimal_positive":
		return "must be a positive decimal"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

// BindAndValidate binds request body and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *apperrors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return apperrors.ErrValidationWithFields("validation failed", ValidationErrorFormatter(validationErrors))
		}
		return apperrors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}

// ContentType rejects non-JSON bodies on POST/PUT/PATCH
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case "POST", "PUT", "PATCH":
			contentType := c.GetHeader("Content-Type")
			if !strings.HasPrefix(contentType, "application/json") && c.Request.ContentLength > 0 {
				AbortWithAppError(c, apperrors.NewAppError("INVALID_CONTENT_TYPE", "Content-Type must be application/json", 415))
				return
			}
		}
		c.Next()
	}
}
