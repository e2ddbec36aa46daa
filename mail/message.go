package mail

import (
	"fmt"
	"html"
)

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Templates renders the messages sent by the authentication flows.
type Templates struct {
	OTPSubject   string
	ResetSubject string
}

// DefaultTemplates returns the stock subjects.
func DefaultTemplates() Templates {
	return Templates{
		OTPSubject:   "Your OTP for MFA",
		ResetSubject: "Password Reset Request",
	}
}

// OTP renders the login passcode message for to.
func (t Templates) OTP(to, code string) Message {
	return Message{
		To:       to,
		Subject:  t.OTPSubject,
		TextBody: fmt.Sprintf("Your One-Time Password (OTP) is: %s", code),
		HTMLBody: fmt.Sprintf("<p>Your One-Time Password (OTP) is: <strong>%s</strong></p>", html.EscapeString(code)),
	}
}

// PasswordReset renders the reset link message for to.
func (t Templates) PasswordReset(to, link string) Message {
	escaped := html.EscapeString(link)
	return Message{
		To:       to,
		Subject:  t.ResetSubject,
		TextBody: fmt.Sprintf("Click here to reset your password: %s", link),
		HTMLBody: fmt.Sprintf("<p>Click here to reset your password: <a href=\"%s\">%s</a></p>", escaped, escaped),
	}
}
