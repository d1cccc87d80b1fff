package core

import (
	"bytes"
	"encoding/base64"
	htmltmpl "html/template"
	"io"
	"net/http"
	"net/mail"
	"path/filepath"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

// ErrUnknownTemplate is returned when a message names a template that is not on disk.
var ErrUnknownTemplate = errors.New("unknown email template")

var (
	emailTemplates     templateSet
	emailTemplatesErr  error
	emailTemplatesOnce sync.Once
)

type (
	// emailTemplate is the pair of bodies rendered for one notification; either may be nil.
	emailTemplate struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}

	templateSet map[string]emailTemplate

	Attachment struct {
		Content     *bytes.Buffer // base64 encoded
		ContentType string
		Filename    string
	}

	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string // plain text, used as is
		Tags        []string
		Attachments []Attachment

		TemplateName string // file name under assets/templates/email, without extension
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// ContextData is what every email template is executed with.
	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// Render fills TextContent and HTMLContent. Templates are loaded from disk on first use.
func (m *EmailMessage) Render() error {
	if m.TemplateName == "" {
		m.TextContent = m.BodyStr
		return nil
	}
	emailTemplatesOnce.Do(func() {
		dir := filepath.Join(Conf.WorkDir, "assets", "templates", "email")
		emailTemplates, emailTemplatesErr = loadEmailTemplates(dir, Conf.Debug || Conf.TestMode)
	})
	if emailTemplatesErr != nil {
		return emailTemplatesErr
	}
	return m.renderWith(emailTemplates)
}

func (m *EmailMessage) renderWith(set templateSet) error {
	tmpl, ok := set[m.TemplateName]
	if !ok {
		return errors.Wrapf(ErrUnknownTemplate, "%q", m.TemplateName)
	}
	data := ContextData{FrontendBaseURL: Conf.FrontendBaseURL, Data: m.TemplateData}

	var buff bytes.Buffer
	switch {
	case m.BodyStr != "":
		m.TextContent = m.BodyStr
	case tmpl.text != nil:
		if err := tmpl.text.Execute(&buff, data); err != nil {
			return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
		}
		m.TextContent = buff.String()
	}
	if tmpl.html != nil {
		buff.Reset()
		if err := tmpl.html.Execute(&buff, data); err != nil {
			return errors.Wrapf(err, "rendering %s.gohtml", m.TemplateName)
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

// Attach base64-encodes the content of r. The content type is sniffed when not given.
func (m *EmailMessage) Attach(r io.Reader, filename string, ct ...string) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrapf(err, "reading attachment %s", filename)
	}

	at := Attachment{Filename: filename, Content: new(bytes.Buffer)}
	encoder := base64.NewEncoder(base64.StdEncoding, at.Content)
	if _, err := encoder.Write(content); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}

	if len(ct) > 0 {
		at.ContentType = ct[0]
	} else {
		at.ContentType = http.DetectContentType(content)
	}
	m.Attachments = append(m.Attachments, at)
	return nil
}

func (m *EmailMessage) HasRecipients() bool  { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool     { return (m.TextContent != "") || (m.HTMLContent != "") }
func (m *EmailMessage) HasAttachments() bool { return len(m.Attachments) > 0 }

// loadEmailTemplates parses every <name>.txt and <name>.gohtml in dir on top of the matching
// _base layout. strict makes a missing data key fail the render.
func loadEmailTemplates(dir string, strict bool) (templateSet, error) {
	fps, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return nil, errors.Wrap(err, "listing email templates")
	}

	missingKey := "missingkey=default"
	if strict {
		missingKey = "missingkey=error"
	}

	set := make(templateSet)
	for _, fp := range fps {
		fname := filepath.Base(fp)
		ext := filepath.Ext(fname)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		tmpl := set[name]

		switch ext {
		case ".txt":
			t, err := texttmpl.ParseFiles(filepath.Join(dir, "_base.txt"), fp)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", fname)
			}
			tmpl.text = t.Option(missingKey)
		case ".gohtml":
			t, err := htmltmpl.ParseFiles(filepath.Join(dir, "_base.gohtml"), fp)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", fname)
			}
			tmpl.html = t.Option(missingKey)
		default:
			continue
		}
		set[name] = tmpl
	}
	return set, nil
}
