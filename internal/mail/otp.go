package mail

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed otp_email.html
var otpEmailHTML string

var otpTemplate = template.Must(template.New("otp_email").Parse(otpEmailHTML))

const otpSubject = "Your verification code"

// OTPMailer renders the verification-code email and hands it to a Sender.
type OTPMailer struct {
	sender Sender
}

// NewOTPMailer returns an OTPMailer that delivers through sender.
func NewOTPMailer(sender Sender) *OTPMailer {
	return &OTPMailer{sender: sender}
}

// SendOTP delivers the code to the address. Does not log the code.
func (m *OTPMailer) SendOTP(ctx context.Context, to, code string) error {
	var html strings.Builder
	if err := otpTemplate.Execute(&html, struct{ Code string }{Code: code}); err != nil {
		return err
	}
	text := fmt.Sprintf("Your verification code is %s. If you did not request this code, ignore this email.", code)
	_, err := m.sender.Send(ctx, to, otpSubject, html.String(), text)
	return err
}
