package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// Template represents a predefined email template type.
type Template string

const (
	// TemplateOrgInvitation invites someone to join an organization.
	TemplateOrgInvitation Template = "org_invitation"
	// TemplateInvitationAccepted notifies the inviter that their invitation
	// was accepted.
	TemplateInvitationAccepted Template = "invitation_accepted"
)

// OrgInvitationData holds data for the organization invitation template.
type OrgInvitationData struct {
	InviterName      string
	OrganizationName string
	Role             string
	TeamName         string
	ProjectName      string
	InvitationURL    string
	ExpiresIn        string
	AppName          string
}

// InvitationAcceptedData holds data for the invitation accepted notice.
type InvitationAcceptedData struct {
	InviterName      string
	MemberEmail      string
	OrganizationName string
	Role             string
	MembersURL       string
	AppName          string
}

// TemplateEngine handles email template rendering.
type TemplateEngine struct {
	templates map[Template]*templateDef
}

type templateDef struct {
	subjectTmpl *template.Template
	bodyTmpl    *template.Template
}

// NewTemplateEngine creates a new template engine with all predefined templates.
func NewTemplateEngine() *TemplateEngine {
	engine := &TemplateEngine{
		templates: make(map[Template]*templateDef),
	}
	engine.registerTemplates()
	return engine
}

// Render renders a template with the given data.
func (e *TemplateEngine) Render(tmpl Template, data any) (subject string, body string, err error) {
	def, ok := e.templates[tmpl]
	if !ok {
		return "", "", fmt.Errorf("template %s not found", tmpl)
	}

	var subjectBuf bytes.Buffer
	if err := def.subjectTmpl.Execute(&subjectBuf, data); err != nil {
		return "", "", fmt.Errorf("failed to execute subject template: %w", err)
	}

	var bodyBuf bytes.Buffer
	if err := def.bodyTmpl.Execute(&bodyBuf, data); err != nil {
		return "", "", fmt.Errorf("failed to execute body template: %w", err)
	}

	return subjectBuf.String(), bodyBuf.String(), nil
}

// registerTemplates registers all predefined email templates.
func (e *TemplateEngine) registerTemplates() {
	e.templates[TemplateOrgInvitation] = &templateDef{
		subjectTmpl: template.Must(template.New("org_invitation_subject").Parse("You've been invited to join {{.OrganizationName}}")),
		bodyTmpl:    template.Must(template.New("org_invitation").Parse(orgInvitationTemplate)),
	}

	e.templates[TemplateInvitationAccepted] = &templateDef{
		subjectTmpl: template.Must(template.New("invitation_accepted_subject").Parse("{{.MemberEmail}} joined {{.OrganizationName}}")),
		bodyTmpl:    template.Must(template.New("invitation_accepted").Parse(invitationAcceptedTemplate)),
	}
}

// Email Templates (HTML)

const orgInvitationTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Organization Invitation</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .container { background: #ffffff; border-radius: 8px; padding: 40px; border: 1px solid #e0e0e0; }
        .header { text-align: center; margin-bottom: 30px; }
        .logo { font-size: 24px; font-weight: bold; color: #2563eb; }
        .button { display: inline-block; background: #2563eb; color: #ffffff; padding: 14px 28px; text-decoration: none; border-radius: 6px; font-weight: 600; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #e0e0e0; font-size: 12px; color: #666; text-align: center; }
        .warning { background: #fef3c7; border: 1px solid #f59e0b; border-radius: 4px; padding: 12px; margin: 20px 0; font-size: 14px; }
        .invite-box { background: #eff6ff; border: 1px solid #3b82f6; border-radius: 8px; padding: 20px; margin: 20px 0; text-align: center; }
        .org-name { font-size: 20px; font-weight: bold; color: #1e40af; }
        .grants { background: #f3f4f6; border-radius: 4px; padding: 12px 20px; margin: 20px 0; font-size: 14px; }
        .grants ul { margin: 0; padding-left: 20px; }
        .grants li { margin: 4px 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <div class="logo">{{.AppName}}</div>
        </div>

        <h2>You've been invited to join an organization</h2>

        <p>Hi there,</p>

        <p><strong>{{.InviterName}}</strong> has invited you to join their organization on {{.AppName}}:</p>

        <div class="invite-box">
            <div class="org-name">{{.OrganizationName}}</div>
        </div>

        <div class="grants">
            <strong>You'll join as:</strong>
            <ul>
                <li>Organization {{.Role}}</li>
                {{if .TeamName}}<li>Member of the <strong>{{.TeamName}}</strong> team</li>{{end}}
                {{if .ProjectName}}<li>Access to the <strong>{{.ProjectName}}</strong> project</li>{{end}}
            </ul>
        </div>

        <div style="text-align: center;">
            <a href="{{.InvitationURL}}" class="button">Accept Invitation</a>
        </div>

        <div class="warning">
            This invitation will expire in <strong>{{.ExpiresIn}}</strong>.
        </div>

        <p>If you don't want to join this organization, you can safely ignore this email.</p>

        <p>If the button doesn't work, copy and paste this link into your browser:</p>
        <p style="word-break: break-all; font-size: 12px; color: #666;">{{.InvitationURL}}</p>

        <div class="footer">
            <p>&copy; {{.AppName}}. All rights reserved.</p>
        </div>
    </div>
</body>
</html>`

const invitationAcceptedTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Invitation Accepted</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .container { background: #ffffff; border-radius: 8px; padding: 40px; border: 1px solid #e0e0e0; }
        .header { text-align: center; margin-bottom: 30px; }
        .logo { font-size: 24px; font-weight: bold; color: #2563eb; }
        .button { display: inline-block; background: #2563eb; color: #ffffff; padding: 14px 28px; text-decoration: none; border-radius: 6px; font-weight: 600; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #e0e0e0; font-size: 12px; color: #666; text-align: center; }
        .alert { background: #dcfce7; border: 1px solid #22c55e; border-radius: 4px; padding: 12px; margin: 20px 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <div class="logo">{{.AppName}}</div>
        </div>

        <h2>Your invitation was accepted</h2>

        <p>Hi{{if .InviterName}} {{.InviterName}}{{end}},</p>

        <div class="alert">
            <strong>{{.MemberEmail}}</strong> accepted your invitation and joined <strong>{{.OrganizationName}}</strong> as {{.Role}}.
        </div>

        {{if .MembersURL}}
        <div style="text-align: center;">
            <a href="{{.MembersURL}}" class="button">View Members</a>
        </div>
        {{end}}

        <div class="footer">
            <p>&copy; {{.AppName}}. All rights reserved.</p>
        </div>
    </div>
</body>
</html>`
