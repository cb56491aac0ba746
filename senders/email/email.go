package email

import (
	_ "embed"
	"html/template"
	"strings"
)

var (
	//go:embed notification.html
	notificationHTML     string
	notificationTemplate = template.Must(template.New("notification.html").Parse(notificationHTML))
)

func mustFillTemplate(tmpl *template.Template, values any) string {
	buf := new(strings.Builder)
	err := tmpl.Execute(buf, values)
	if err != nil {
		return ""
	}
	return buf.String()
}

// NotificationEmailFormat renders a stored notification as an email.
type NotificationEmailFormat struct {
	Name    string
	Title   string
	Message string
}

func (ef *NotificationEmailFormat) Subject() string {
	return ef.Title
}

func (ef *NotificationEmailFormat) Body() string {
	return mustFillTemplate(notificationTemplate, ef)
}
