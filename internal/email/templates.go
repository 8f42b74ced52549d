package email

import (
	"bytes"
	"fmt"
	"html/template"
)

const AppName = "NEL"

// Template names, also stored on email records.
const (
	TemplateWelcome       = "welcome"
	TemplateVerification  = "verification"
	TemplatePasswordReset = "password_reset"
	TemplateNotification  = "notification"
	TemplateInvitation    = "invitation"
)

type WelcomeData struct {
	AppName      string
	UserName     string
	DashboardURL string
}

type VerificationData struct {
	AppName         string
	UserName        string
	VerificationURL string
}

type PasswordResetData struct {
	AppName  string
	UserName string
	ResetURL string
}

type NotificationData struct {
	AppName    string
	UserName   string
	Title      string
	Message    string
	ActionURL  string
	ActionText string
}

type InvitationData struct {
	AppName     string
	InviterName string
	OrgName     string
	Role        string
	InviteURL   string
}

var templates = template.Must(template.New("email").Parse(layoutTemplate))

func init() {
	template.Must(templates.New(TemplateWelcome).Parse(welcomeTemplate))
	template.Must(templates.New(TemplateVerification).Parse(verificationTemplate))
	template.Must(templates.New(TemplatePasswordReset).Parse(passwordResetTemplate))
	template.Must(templates.New(TemplateNotification).Parse(notificationTemplate))
	template.Must(templates.New(TemplateInvitation).Parse(invitationTemplate))
}

func renderTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}
	return buf.String(), nil
}

func build(name, to, subject, text string, data any) (Message, error) {
	html, err := renderTemplate(name, data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      []string{to},
		Subject: subject,
		HTML:    html,
		Text:    text,
		Tags:    map[string]string{"template": name},
	}, nil
}

func WelcomeMessage(to, userName, dashboardURL string) (Message, error) {
	return build(TemplateWelcome, to, "Welcome to "+AppName, "Welcome to "+AppName+". Open your dashboard: "+dashboardURL,
		WelcomeData{AppName: AppName, UserName: userName, DashboardURL: dashboardURL})
}

func VerificationMessage(to, userName, verificationURL string) (Message, error) {
	return build(TemplateVerification, to, "Verify your "+AppName+" account", "Verify your email: "+verificationURL,
		VerificationData{AppName: AppName, UserName: userName, VerificationURL: verificationURL})
}

func PasswordResetMessage(to, userName, resetURL string) (Message, error) {
	return build(TemplatePasswordReset, to, "Reset your "+AppName+" password", "Reset your password: "+resetURL,
		PasswordResetData{AppName: AppName, UserName: userName, ResetURL: resetURL})
}

// NotificationMessage renders a notification copy. The call to action is
// omitted when actionURL is empty.
func NotificationMessage(to, userName, title, message, actionURL, actionText string) (Message, error) {
	if actionURL != "" && actionText == "" {
		actionText = "View details"
	}
	return build(TemplateNotification, to, title, title+"\n\n"+message,
		NotificationData{AppName: AppName, UserName: userName, Title: title, Message: message, ActionURL: actionURL, ActionText: actionText})
}

func InvitationMessage(to, inviterName, orgName, role, inviteURL string) (Message, error) {
	return build(TemplateInvitation, to, fmt.Sprintf("You're invited to join %s on %s", orgName, AppName),
		"Accept your invitation: "+inviteURL,
		InvitationData{AppName: AppName, InviterName: inviterName, OrgName: orgName, Role: role, InviteURL: inviteURL})
}

const layoutTemplate = `{{define "head"}}<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #e67e22; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #e67e22; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #e67e22; }
        .warning { background: #fff3cd; padding: 12px; border-radius: 4px; margin: 20px 0; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>
{{end}}
{{define "foot"}}
</body>
</html>{{end}}`

const welcomeTemplate = `{{template "head" .}}
    <h2>Welcome, {{.UserName}}!</h2>

    <p>Your account is ready. Track projects, tasks, crews and site safety in one place.</p>

    <p>
        <a href="{{.DashboardURL}}" class="button">Open Dashboard</a>
    </p>

    <div class="footer">
        <p>You received this email because an account was created with this address.</p>
    </div>
{{template "foot" .}}`

const verificationTemplate = `{{template "head" .}}
    <h2>Welcome, {{.UserName}}!</h2>

    <p>Thank you for signing up. Please verify your email address to activate your account.</p>

    <p>
        <a href="{{.VerificationURL}}" class="button">Verify Email Address</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.VerificationURL}}</p>

    <p>This verification link will expire in 24 hours.</p>

    <div class="footer">
        <p>If you didn't create an account with {{.AppName}}, you can safely ignore this email.</p>
    </div>
{{template "foot" .}}`

const passwordResetTemplate = `{{template "head" .}}
    <h2>Password Reset Request</h2>

    <p>Hi {{.UserName}},</p>

    <p>We received a request to reset your password. Click the button below to create a new password:</p>

    <p>
        <a href="{{.ResetURL}}" class="button">Reset Password</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.ResetURL}}</p>

    <div class="warning">
        <strong>Important:</strong> This reset link will expire in 1 hour.
    </div>

    <div class="footer">
        <p>If you didn't request a password reset, you can safely ignore this email. Your password will remain unchanged.</p>
    </div>
{{template "foot" .}}`

const notificationTemplate = `{{template "head" .}}
    <h2>{{.Title}}</h2>

    {{if .UserName}}<p>Hi {{.UserName}},</p>{{end}}

    <p>{{.Message}}</p>
{{if .ActionURL}}
    <p>
        <a href="{{.ActionURL}}" class="button">{{.ActionText}}</a>
    </p>
{{end}}
    <div class="footer">
        <p>You can change which notifications you receive by email in your preferences.</p>
    </div>
{{template "foot" .}}`

const invitationTemplate = `{{template "head" .}}
    <h2>Join {{.OrgName}}</h2>

    <p>{{.InviterName}} invited you to join <strong>{{.OrgName}}</strong> as {{.Role}}.</p>

    <p>
        <a href="{{.InviteURL}}" class="button">Accept Invitation</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.InviteURL}}</p>

    <p>This invitation will expire in 7 days.</p>
{{template "foot" .}}`
