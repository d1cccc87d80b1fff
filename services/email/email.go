package emailsvc

import (
	"github.com/internly/internly/core"
)

// New returns the email backend selected by conf.EmailBackend.
func New(conf *core.Config, logger core.Logger) core.EmailService {
	switch conf.EmailBackend {
	case "sendgrid":
		return NewSendgridService(conf, logger)
	case "smtp":
		return NewSMTPService(conf, logger)
	default:
		return NewConsoleService(conf, logger)
	}
}
