package mail

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
)

const (
	TemplateMembershipUpgraded      = "membership_upgraded"
	TemplateMembershipRenewed       = "membership_renewed"
	TemplateMembershipRenewalFailed = "membership_renewal_failed"
	TemplateMembershipExpired       = "membership_expired"
	TemplateEmailVerification       = "email_verification"
)

type emailTemplate struct {
	subject string
	body    *template.Template
}

const layout = `<!DOCTYPE html>
<html lang="vi"><head><meta charset="UTF-8"></head>
<body style="font-family:Arial,sans-serif;color:#1f2937">
{{template "content" .}}
<p style="color:#6b7280;font-size:12px">EduPortal</p>
</body></html>`

var templates = map[string]emailTemplate{
	TemplateMembershipUpgraded: {
		subject: "Nâng cấp gói thành viên thành công",
		body: mustParse(TemplateMembershipUpgraded, `{{define "content"}}
<p>Xin chào {{.Name}},</p>
<p>Tài khoản của bạn đã được nâng cấp lên gói <strong>{{.Plan}}</strong>.</p>
<p>Số tiền: {{.Amount}}. Hiệu lực đến: {{.ExpiresAt}}.</p>
<p>Mã giao dịch: {{.TransactionID}}</p>
{{end}}`),
	},
	TemplateMembershipRenewed: {
		subject: "Gia hạn gói thành viên thành công",
		body: mustParse(TemplateMembershipRenewed, `{{define "content"}}
<p>Xin chào {{.Name}},</p>
<p>Gói <strong>{{.Plan}}</strong> của bạn đã được gia hạn tự động.</p>
<p>Số tiền: {{.Amount}}. Hiệu lực đến: {{.ExpiresAt}}.</p>
{{end}}`),
	},
	TemplateMembershipRenewalFailed: {
		subject: "Gia hạn gói thành viên không thành công",
		body: mustParse(TemplateMembershipRenewalFailed, `{{define "content"}}
<p>Xin chào {{.Name}},</p>
<p>Chúng tôi không thể gia hạn gói <strong>{{.Plan}}</strong> của bạn.</p>
<p>Lý do: {{.Reason}}</p>
<p>Vui lòng kiểm tra phương thức thanh toán để tránh gián đoạn.</p>
{{end}}`),
	},
	TemplateMembershipExpired: {
		subject: "Gói thành viên của bạn đã hết hạn",
		body: mustParse(TemplateMembershipExpired, `{{define "content"}}
<p>Xin chào {{.Name}},</p>
<p>Gói <strong>{{.Plan}}</strong> của bạn đã hết hạn vào {{.ExpiresAt}}.</p>
<p>Gia hạn ngay để tiếp tục sử dụng các tính năng nâng cao.</p>
{{end}}`),
	},
	TemplateEmailVerification: {
		subject: "Mã xác thực email EduPortal",
		body: mustParse(TemplateEmailVerification, `{{define "content"}}
<p>Mã xác thực của bạn là:</p>
<p style="font-size:24px;letter-spacing:4px"><strong>{{.Code}}</strong></p>
<p>Mã có hiệu lực trong {{.TTLMinutes}} phút. Không chia sẻ mã này với bất kỳ ai.</p>
{{end}}`),
	},
}

func mustParse(name, content string) *template.Template {
	t := template.Must(template.New(name).Parse(layout))
	return template.Must(t.Parse(content))
}

var ErrUnknownTemplate = errors.New("mail: unknown template")

// Render returns the subject and HTML body of a named template.
func Render(name string, data map[string]any) (string, string, error) {
	tpl, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("%w %q", ErrUnknownTemplate, name)
	}
	var buf bytes.Buffer
	if err := tpl.body.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("mail: render %s: %w", name, err)
	}
	return tpl.subject, buf.String(), nil
}
