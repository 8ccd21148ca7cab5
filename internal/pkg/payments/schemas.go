package payments

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/ClubDues/internal/pkg/apperr"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
	dateLayout       = "2006-01-02"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
		return IsValidPeriod(fl.Field().String())
	})
	_ = v.RegisterValidation("ymd", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(dateLayout, fl.Field().String())
		return err == nil
	})
	return v
}

// CreateIntentRequest starts a checkout. Amount is accepted on the wire for
// older clients and never used.
type CreateIntentRequest struct {
	Provider string           `json:"provider" validate:"required,oneof=mercadopago dlocal midtrans"`
	MemberID string           `json:"memberId" validate:"required,max=64"`
	TenantID string           `json:"tenantId" validate:"required,max=64"`
	Period   string           `json:"period" validate:"required,period"`
	Currency string           `json:"currency" validate:"omitempty,min=3,max=8"`
	Amount   *decimal.Decimal `json:"amount,omitempty" validate:"-"`
}

// WebhookPayload is the normalized payment notification.
type WebhookPayload struct {
	Provider          string          `json:"provider" validate:"required,oneof=mercadopago dlocal midtrans"`
	ProviderPaymentID string          `json:"providerPaymentId" validate:"required,max=191"`
	Status            string          `json:"status" validate:"required,eq=approved"`
	MemberID          string          `json:"memberId" validate:"required,max=64"`
	TenantID          string          `json:"tenantId" validate:"required,max=64"`
	Period            string          `json:"period" validate:"required,period"`
	Amount            decimal.Decimal `json:"amount" validate:"gt=0"`
	Currency          string          `json:"currency" validate:"required,min=3,max=8"`
}

// ManualPaymentRequest records a payment collected by staff.
type ManualPaymentRequest struct {
	MemberID string          `json:"memberId" validate:"required,max=64"`
	TenantID string          `json:"tenantId" validate:"required,max=64"`
	Period   string          `json:"period" validate:"required,period"`
	Amount   decimal.Decimal `json:"amount" validate:"gt=0"`
	Currency string          `json:"currency" validate:"omitempty,min=3,max=8"`
}

// ListPaymentsRequest is bound from the query string.
type ListPaymentsRequest struct {
	TenantID string `query:"tenantId" validate:"required,max=64"`
	DateFrom string `query:"dateFrom" validate:"omitempty,ymd"`
	DateTo   string `query:"dateTo" validate:"omitempty,ymd"`
	MemberID string `query:"memberId" validate:"omitempty,max=64"`
	Status   string `query:"status" validate:"omitempty,oneof=pending approved rejected refunded"`
	Period   string `query:"period" validate:"omitempty,period"`
	Provider string `query:"provider" validate:"omitempty,oneof=mercadopago dlocal midtrans manual"`
	Limit    int    `query:"limit" validate:"min=0,max=100"`
	Offset   int    `query:"offset" validate:"min=0"`
}

// PaymentConfigRequest replaces a tenant's fee configuration.
type PaymentConfigRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
	Currency      string          `json:"currency" validate:"omitempty,min=3,max=8"`
	DueDayOfMonth int             `json:"dueDayOfMonth" validate:"required,min=1,max=31"`
}

// Validate checks s against its validate tags and returns a validation
// AppError with one message per offending field.
func Validate(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.ValidationErr("Invalid request data.", nil)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return apperr.ValidationErr("Invalid request data.", fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "period":
		return "period must be YYYY-MM or registration"
	case "ymd":
		return fe.Field() + " must be a date in YYYY-MM-DD format"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "eq":
		return fe.Field() + " must be " + fe.Param()
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "min", "max":
		return fe.Field() + " is out of range"
	default:
		return fe.Field() + " is invalid"
	}
}

// NormalizeCurrency uppercases c and falls back to def.
func NormalizeCurrency(c, def string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return def
	}
	return c
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
