package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/edupaila/community-server-go/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type passcodeView struct {
	Name       string
	Heading    string
	Intro      string
	Code       string
	TTLMinutes int
	Year       int
}

var passcodeCopy = map[model.PasscodePurpose]struct{ subject, heading, intro string }{
	model.PurposeAdminLogin: {
		subject: "Your admin login code",
		heading: "Admin sign-in",
		intro:   "Use this code to sign in to the admin panel.",
	},
	model.PurposeLogin: {
		subject: "Your login code",
		heading: "Sign in",
		intro:   "Use this code to sign in to your account.",
	},
	model.PurposeRegistration: {
		subject: "Verify your email",
		heading: "Welcome!",
		intro:   "Use this code to verify your email address and finish signing up.",
	},
}

// RenderPasscode returns the subject and HTML body for a passcode email. An
// empty name leaves out the greeting.
func RenderPasscode(purpose model.PasscodePurpose, name, code string, ttl time.Duration) (string, string, error) {
	c, ok := passcodeCopy[purpose]
	if !ok {
		return "", "", fmt.Errorf("unknown passcode purpose %q", purpose)
	}

	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, "passcode.html", passcodeView{
		Name:       strings.TrimSpace(name),
		Heading:    c.heading,
		Intro:      c.intro,
		Code:       code,
		TTLMinutes: int(ttl.Minutes()),
		Year:       time.Now().Year(),
	})
	if err != nil {
		return "", "", err
	}
	return c.subject, buf.String(), nil
}

// BroadcastView is the data for one personalised broadcast email.
type BroadcastView struct {
	Name            string
	Subject         string
	Body            string
	MediaLinks      []string
	AttachmentNames []string
}

func (v BroadcastView) Paragraphs() []string {
	var out []string
	for _, p := range strings.Split(v.Body, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (v BroadcastView) Year() int {
	return time.Now().Year()
}

func RenderBroadcast(v BroadcastView) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "broadcast.html", v); err != nil {
		return "", err
	}
	return buf.String(), nil
}
