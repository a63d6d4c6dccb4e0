// Package header renders the contact block placed above the resume body.
package header

import (
	"context"
	"strings"

	"resumate/internal/appstate"
)

const iconBase = "https://shlok-bhakta.github.io/ResuMate/icons/"

// Profile carries the displayed contact values.
type Profile struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Website  string `json:"website"`
	Linkedin string `json:"linkedin"`
	Github   string `json:"github"`
	Address  string `json:"address"`
}

// Flags selects which contact segments are rendered.
type Flags struct {
	Email     bool `json:"enableEmail"`
	Phone     bool `json:"enablePhone"`
	Website   bool `json:"enableWebsite"`
	Github    bool `json:"enableGithub"`
	Linkedin  bool `json:"enableLinkedin"`
	Address   bool `json:"enableAddress"`
	USCitizen bool `json:"showUSCitizenship"`
}

func icon(alt, file string) string {
	return "![" + alt + "](" + iconBase + file + ") "
}

func link(text, target string) string {
	return "[" + text + "](" + target + ")"
}

// Build returns "# name" followed, when any flag is set, by a pipe-joined
// contact line. The result always ends with a blank line.
func Build(p Profile, f Flags) string {
	var segments []string
	if f.Phone {
		segments = append(segments, icon("Phone", "phone.svg")+p.Phone)
	}
	if f.Email {
		segments = append(segments, icon("Mail", "mail.svg")+link(p.Email, "mailto:"+p.Email))
	}
	if f.Address {
		segments = append(segments, icon("Globe", "globe.svg")+p.Address)
	}
	if f.Website {
		segments = append(segments, icon("Website", "internet.svg")+link(p.Website, "https://"+p.Website))
	}
	if f.Github {
		segments = append(segments, icon("Github", "github.svg")+link(p.Github, "https://"+p.Github))
	}
	if f.Linkedin {
		segments = append(segments, icon("Linkedin", "linkedin.svg")+link(p.Linkedin, "https://"+p.Linkedin))
	}
	if f.USCitizen {
		segments = append(segments, icon("Passport", "passport.svg")+"US CITIZEN")
	}

	lines := []string{"# " + p.Name}
	if len(segments) > 0 {
		lines = append(lines, "", "#### "+strings.Join(segments, " | "))
	}
	lines = append(lines, "", "")
	return strings.Join(lines, "\n")
}

// FromValues extracts the header inputs from application state.
func FromValues(v appstate.Values) (Profile, Flags) {
	p := Profile{
		Name:     v.Name,
		Email:    v.Email,
		Phone:    v.Phone,
		Website:  v.Website,
		Linkedin: v.Linkedin,
		Github:   v.Github,
		Address:  v.Address,
	}
	f := Flags{
		Email:     v.EnableEmail,
		Phone:     v.EnablePhone,
		Website:   v.EnableWebsite,
		Github:    v.EnableGithub,
		Linkedin:  v.EnableLinkedin,
		Address:   v.EnableAddress,
		USCitizen: v.ShowUSCitizenship,
	}
	return p, f
}

// Render returns the header for v, honoring the custom header override.
func Render(v appstate.Values) string {
	if v.EnableCustomHeader {
		return v.CustomHeader
	}
	return Build(FromValues(v))
}

// Rebuild renders the header from the current state and stores it.
func Rebuild(ctx context.Context, st *appstate.State) (string, error) {
	out := Render(st.Snapshot())
	err := st.Update(ctx, func(v *appstate.Values) {
		v.Header = out
	})
	return out, err
}
