package checkout

import (
	"fmt"
	"strings"

	"github.com/example/sportshop/internal/apperr"
	"github.com/example/sportshop/internal/contact"
	"github.com/example/sportshop/internal/delivery"
	"github.com/example/sportshop/internal/domain/order"
)

var (
	ErrEmptyCart          = apperr.Validation("cart is empty")
	ErrMissingField       = apperr.Validation("required field missing")
	ErrInvalidEmail       = apperr.Validation("invalid email address")
	ErrInvalidPhone       = apperr.Validation("phone number must have 10 or 11 digits")
	ErrUnknownDistrict    = apperr.Validation("unrecognised district")
	ErrRegionNotServed    = apperr.DomainConstraint("we only deliver within the service city")
	ErrUnsupportedPayment = apperr.DomainConstraint("unsupported payment method")
)

// Form is the checkout form as submitted.
type Form struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Street        string `json:"address"`
	Ward          string `json:"ward"`
	District      string `json:"district"`
	City          string `json:"city"`
	Note          string `json:"note"`
	PaymentMethod string `json:"payment_method"`
}

type validForm struct {
	customer order.Customer
	address  order.Address
	district delivery.District
	payment  order.PaymentMethod
	note     string
}

// Validate checks f against region and returns the first problem found.
func Validate(f Form, region *delivery.Region) error {
	_, err := validate(f, region)
	return err
}

func validate(f Form, region *delivery.Region) (validForm, error) {
	for _, field := range []struct{ name, value string }{
		{"name", f.Name},
		{"email", f.Email},
		{"phone", f.Phone},
		{"address", f.Street},
		{"district", f.District},
		{"city", f.City},
	} {
		if strings.TrimSpace(field.value) == "" {
			return validForm{}, fmt.Errorf("%w: %s", ErrMissingField, field.name)
		}
	}

	email := contact.NormalizeEmail(f.Email)
	if !contact.ValidEmail(email) {
		return validForm{}, fmt.Errorf("%w: %s", ErrInvalidEmail, f.Email)
	}
	phone, ok := contact.NormalizePhone(f.Phone)
	if !ok {
		return validForm{}, fmt.Errorf("%w: %s", ErrInvalidPhone, f.Phone)
	}

	if !region.ServesCity(f.City) {
		return validForm{}, fmt.Errorf("%w: %s (we deliver in %s)", ErrRegionNotServed, strings.TrimSpace(f.City), region.City)
	}
	district, ok := region.District(f.District)
	if !ok {
		return validForm{}, fmt.Errorf("%w: %s", ErrUnknownDistrict, f.District)
	}

	payment := order.PaymentMethod(strings.ToLower(strings.TrimSpace(f.PaymentMethod)))
	if payment == "" {
		payment = order.PaymentCOD
	}
	if _, err := order.ParsePaymentMethod(string(payment)); err != nil {
		return validForm{}, fmt.Errorf("%w: %q", ErrUnsupportedPayment, f.PaymentMethod)
	}

	return validForm{
		customer: order.Customer{
			Name:  strings.TrimSpace(f.Name),
			Email: email,
			Phone: phone,
		},
		address: order.Address{
			Street:       strings.TrimSpace(f.Street),
			Ward:         strings.TrimSpace(f.Ward),
			DistrictCode: district.Code,
			DistrictName: district.Name,
			City:         region.City,
		},
		district: district,
		payment:  payment,
		note:     strings.TrimSpace(f.Note),
	}, nil
}
