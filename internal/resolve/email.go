package resolve

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sells-group/contact-enricher/internal/model"
)

var validate = validator.New()

// EmailDomain returns the lowercase domain of email when the address passes
// strict syntax validation.
func EmailDomain(email string) (string, bool) {
	email = strings.TrimSpace(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(email)), "mailto:"))
	if email == "" || validate.Var(email, "required,email") != nil {
		return "", false
	}
	d := model.EmailDomain(email)
	if d == "" || !strings.Contains(d, ".") {
		return "", false
	}
	return d, true
}

// URLFromEmail derives the website candidate https://www.<domain>/ from an
// email address, unless the domain is free-mail.
func URLFromEmail(email string, bl *Blacklist) (string, bool) {
	d, ok := EmailDomain(email)
	if !ok || bl.IsFreemail(d) {
		return "", false
	}
	return "https://www." + strings.TrimPrefix(d, "www.") + "/", true
}
