package controllers

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/EduPortal/internal/pkg/billing"
)

var validate = newValidator()

// newValidator reports json field names in validation errors.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// statusFor maps a billing error code to its HTTP status.
func statusFor(code billing.Code) int {
	switch code {
	case billing.CodeInvalidPlan, billing.CodeValidation:
		return fiber.StatusBadRequest
	case billing.CodeIneligibleUpgrade, billing.CodeNotEligible, billing.CodeInvalidTransition, billing.CodeBusy:
		return fiber.StatusConflict
	case billing.CodeGatewayFailure:
		return fiber.StatusPaymentRequired
	case billing.CodeNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError renders err as {success:false, error, message} plus extra fields.
func respondError(c *fiber.Ctx, err error, extra fiber.Map) error {
	code := billing.CodeOf(err)
	status := statusFor(code)
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
	}
	body := fiber.Map{
		"success": false,
		"error":   string(code),
		"message": billing.MessageOf(err),
	}
	for k, v := range extra {
		body[k] = v
	}
	return c.Status(status).JSON(body)
}

// respondOK renders {success:true} merged with data.
func respondOK(c *fiber.Ctx, status int, data fiber.Map) error {
	body := fiber.Map{"success": true}
	for k, v := range data {
		body[k] = v
	}
	return c.Status(status).JSON(body)
}

// bindJSON parses and validates the request body into dst.
func bindJSON(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return &billing.Error{Code: billing.CodeValidation, Message: "Dữ liệu gửi lên không hợp lệ", Err: err}
	}
	if err := validate.Struct(dst); err != nil {
		return &billing.Error{Code: billing.CodeValidation, Message: validationMessage(err), Err: err}
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Dữ liệu không hợp lệ"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return "Dữ liệu không hợp lệ: " + strings.Join(fields, ", ")
}

// formatTimePtr returns an RFC3339 UTC string or nil.
func formatTimePtr(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
