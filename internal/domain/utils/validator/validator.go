package validator

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Options tune the custom rules.
type Options struct {
	// EmailDomains restricts sign up to these domains. Empty allows any.
	EmailDomains []string
}

// New returns a validator with the event aggregator rules registered:
//
//	eventdate   - "YYYY-MM-DD"
//	eventtime   - "HH:MM", 24 hour clock
//	emaildomain - address belongs to one of Options.EmailDomains
func New(opts Options) *validator.Validate {
	v := validator.New()
	mustRegister(v, "eventdate", EventDate)
	mustRegister(v, "eventtime", EventTime)
	mustRegister(v, "emaildomain", func(fl validator.FieldLevel) bool {
		return EmailDomain(fl.Field().String(), opts.EmailDomains)
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

func EventDate(fl validator.FieldLevel) bool {
	_, err := time.Parse("2006-01-02", strings.TrimSpace(fl.Field().String()))
	return err == nil
}

func EventTime(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", strings.TrimSpace(fl.Field().String()))
	return err == nil
}

func EmailDomain(email string, domains []string) bool {
	if len(domains) == 0 {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range domains {
		if domain == strings.ToLower(strings.TrimPrefix(d, "@")) {
			return true
		}
	}
	return false
}
