package users

import (
	"bytes"
	"fmt"
	"html/template"
)

// Subjects for the notification emails the flows trigger
const (
	SubjectConfirmEmail    = "Confirm your email address"
	SubjectResetPassword   = "Reset your password"
	SubjectInvitation      = "You have been invited"
	SubjectRegistered      = "Your account has been created"
	SubjectPasswordChanged = "Your password has been changed"
	SubjectUsernameChanged = "Your username has been changed"
)

var linkEmailTemplate = template.Must(template.New("link").Parse(`<html>
<body>
	<p>{{.Intro}}</p>
	<p><a href="{{.Link}}">{{.Link}}</a></p>
	<p>If you did not request this you can safely ignore this email.</p>
</body>
</html>
`))

var noticeEmailTemplate = template.Must(template.New("notice").Parse(`<html>
<body>
	<p>{{.Notice}}</p>
</body>
</html>
`))

// renderLinkEmail builds the body for token carrying emails. The link is a
// route path with the token embedded, resolved against whatever base URL
// the host serves.
func renderLinkEmail(intro, link string) (string, error) {
	var buf bytes.Buffer
	err := linkEmailTemplate.Execute(&buf, struct {
		Intro string
		Link  string
	}{
		Intro: intro,
		Link:  link,
	})
	if err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

func renderNoticeEmail(notice string) (string, error) {
	var buf bytes.Buffer
	err := noticeEmailTemplate.Execute(&buf, struct {
		Notice string
	}{Notice: notice})
	if err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}
