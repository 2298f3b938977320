package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// AppStatusKey holds the application status written into the response body.
const AppStatusKey = "appStatus"

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type BadRequestErrorResponse struct {
	Status  int               `json:"status"`
	Message string            `json:"msg"`
	Details []ValidationError `json:"details"`
}

func ValidateRequest(obj any) []ValidationError {
	var validationErrors []ValidationError

	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []ValidationError{{Message: err.Error(), Type: "invalid"}}
	}
	for _, err := range fieldErrors {
		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: getErrorMsg(err),
			Type:    err.Tag(),
		})
	}

	return validationErrors
}

// BindErrors describes a body that could not be decoded at all, such as a
// fractional or quoted amount.
func BindErrors(err error) []ValidationError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		msg := "Invalid value"
		switch typeErr.Type.Kind() {
		case reflect.Int, reflect.Int64:
			msg = "Must be an integer number of minor units"
		case reflect.String:
			msg = "Must be a string"
		}
		return []ValidationError{{Field: typeErr.Field, Message: msg, Type: "type"}}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return []ValidationError{{Message: "Malformed JSON", Type: "syntax"}}
	}
	return []ValidationError{{Message: "Invalid request body", Type: "body"}}
}

func getErrorMsg(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "required_without":
		return "This field is required when " + err.Param() + " is absent"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "gt":
		return "Value must be greater than " + err.Param()
	case "gte":
		return "Value must be greater than or equal to " + err.Param()
	case "printascii":
		return "Only printable ASCII characters are allowed"
	default:
		return "Invalid value"
	}
}

func RespondWithValidationError(c *gin.Context, code int, validationErrors []ValidationError) {
	c.Set(AppStatusKey, http.StatusBadRequest)
	c.JSON(code, BadRequestErrorResponse{
		Status:  http.StatusBadRequest,
		Message: "Invalid request data",
		Details: validationErrors,
	})
}

// RespondWithError writes the {status, msg} envelope. code is the HTTP
// status; status is the application status carried in the body.
func RespondWithError(c *gin.Context, code, status int, message string) {
	c.Set(AppStatusKey, status)
	c.JSON(code, gin.H{
		"status": status,
		"msg":    message,
	})
}
