package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"text/template"
	"time"
)

const (
	CategoryInvite = "invite"
	CategoryReset  = "password_reset"
)

var inviteText = template.Must(template.New("invite.txt").Parse(`Hello {{.Name}},

An account has been created for you with the username "{{.Username}}".
Choose a password to activate it:

{{.Link}}

This link expires on {{.Expires}}.
`))

var inviteHTML = htmltemplate.Must(htmltemplate.New("invite.html").Parse(`<p>Hello {{.Name}},</p>
<p>An account has been created for you with the username <strong>{{.Username}}</strong>.</p>
<p><a href="{{.Link}}">Choose a password to activate it</a>.</p>
<p>This link expires on {{.Expires}}.</p>
`))

var resetText = template.Must(template.New("reset.txt").Parse(`Your password reset code is {{.Code}}.

It is valid for {{.Minutes}} minutes. If you did not ask for a reset you can ignore this email.
`))

var resetHTML = htmltemplate.Must(htmltemplate.New("reset.html").Parse(`<p>Your password reset code is <strong>{{.Code}}</strong>.</p>
<p>It is valid for {{.Minutes}} minutes. If you did not ask for a reset you can ignore this email.</p>
`))

// InviteLink builds the activation URL the frontend serves.
func InviteLink(appURL, token string) string {
	return fmt.Sprintf("%s/invite?token=%s", appURL, url.QueryEscape(token))
}

// InviteMessage composes the account activation email.
func InviteMessage(to, name, username, link string, expires time.Time) (Message, error) {
	data := map[string]string{
		"Name":     name,
		"Username": username,
		"Link":     link,
		"Expires":  expires.UTC().Format("2006-01-02 15:04 MST"),
	}
	var text, html bytes.Buffer
	if err := inviteText.Execute(&text, data); err != nil {
		return Message{}, err
	}
	if err := inviteHTML.Execute(&html, data); err != nil {
		return Message{}, err
	}
	return Message{
		To:       to,
		ToName:   name,
		Subject:  "Activate your account",
		Text:     text.String(),
		HTML:     html.String(),
		Category: CategoryInvite,
	}, nil
}

// ResetMessage composes the password reset code email.
func ResetMessage(to, code string, ttl time.Duration) (Message, error) {
	data := map[string]any{"Code": code, "Minutes": int(ttl.Minutes())}
	var text, html bytes.Buffer
	if err := resetText.Execute(&text, data); err != nil {
		return Message{}, err
	}
	if err := resetHTML.Execute(&html, data); err != nil {
		return Message{}, err
	}
	return Message{
		To:       to,
		Subject:  "Your password reset code",
		Text:     text.String(),
		HTML:     html.String(),
		Category: CategoryReset,
	}, nil
}
