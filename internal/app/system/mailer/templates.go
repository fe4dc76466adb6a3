// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/dalemusser/workshophub/internal/app/system/htmlsanitize"
)

var funcs = template.FuncMap{"display": htmlsanitize.PrepareForDisplay}

// PersonSyncFailureData holds data for the per-person sync failure email.
type PersonSyncFailureData struct {
	SiteName    string
	EventCode   string
	EventName   string
	PersonName  string
	PersonEmail string
	LegacyLink  string // deep link to the person in the legacy web UI; may be empty
	Messages    []string
}

// BuildPersonSyncFailureEmail reports one person whose record could not be saved during a sync.
func BuildPersonSyncFailureEmail(data PersonSyncFailureData) Email {
	return Email{
		To:       "", // Set by caller
		Subject:  fmt.Sprintf("[%s] %s: could not sync %s", data.SiteName, data.EventCode, data.PersonName),
		TextBody: buildPersonSyncFailureText(data),
		HTMLBody: render(personSyncFailureHTMLTemplate, data),
	}
}

func buildPersonSyncFailureText(data PersonSyncFailureData) string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Membership sync for %s (%s) could not save this person:\n\n", data.EventCode, data.EventName))
	buf.WriteString(fmt.Sprintf("  %s <%s>\n\n", data.PersonName, data.PersonEmail))
	for _, m := range data.Messages {
		buf.WriteString("  - " + m + "\n")
	}
	if data.LegacyLink != "" {
		buf.WriteString("\nFix the record in the legacy system:\n")
		buf.WriteString(data.LegacyLink + "\n")
	}
	return buf.String()
}

const personSyncFailureHTMLTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Sync failure</title></head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; color: #374151;">
  <h2 style="color: #4f46e5;">{{.SiteName}}: {{.EventCode}}</h2>
  <p>Membership sync for <strong>{{.EventName}}</strong> could not save this person:</p>
  <p><strong>{{.PersonName}}</strong> &lt;{{.PersonEmail}}&gt;</p>
  <ul>
  {{- range .Messages}}
    <li>{{display .}}</li>
  {{- end}}
  </ul>
  {{- if .LegacyLink}}
  <p><a href="{{.LegacyLink}}">Fix the record in the legacy system</a></p>
  {{- end}}
</body>
</html>`

// SyncSection is one group of issues in the summary email.
type SyncSection struct {
	Title string
	Items []string
}

// SyncSummaryData holds data for the aggregated sync failure email.
type SyncSummaryData struct {
	SiteName  string
	EventCode string
	EventName string
	Sections  []SyncSection
}

// BuildSyncSummaryEmail reports membership, event and connection problems from one sync run.
func BuildSyncSummaryEmail(data SyncSummaryData) Email {
	return Email{
		To:       "", // Set by caller
		Subject:  fmt.Sprintf("[%s] %s: membership sync problems", data.SiteName, data.EventCode),
		TextBody: buildSyncSummaryText(data),
		HTMLBody: render(syncSummaryHTMLTemplate, data),
	}
}

func buildSyncSummaryText(data SyncSummaryData) string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Membership sync for %s (%s) reported problems.\n", data.EventCode, data.EventName))
	for _, sec := range data.Sections {
		buf.WriteString("\n" + sec.Title + ":\n")
		for _, it := range sec.Items {
			buf.WriteString("  - " + it + "\n")
		}
	}
	return buf.String()
}

const syncSummaryHTMLTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Sync problems</title></head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; color: #374151;">
  <h2 style="color: #4f46e5;">{{.SiteName}}: {{.EventCode}}</h2>
  <p>Membership sync for <strong>{{.EventName}}</strong> reported problems.</p>
  {{- range .Sections}}
  <h3>{{.Title}}</h3>
  <ul>
    {{- range .Items}}
    <li>{{display .}}</li>
    {{- end}}
  </ul>
  {{- end}}
</body>
</html>`

// PersonMergeData holds data for the person merge notice.
type PersonMergeData struct {
	SiteName         string
	LoserName        string
	LoserEmail       string
	LoserLegacyID    string
	SurvivorName     string
	SurvivorEmail    string
	SurvivorLegacyID string
	RemoteQueued     bool // a legacy-side merge was requested
}

// BuildPersonMergeEmail tells staff that two local person records were merged.
func BuildPersonMergeEmail(data PersonMergeData) Email {
	return Email{
		To:       "", // Set by caller
		Subject:  fmt.Sprintf("[%s] Merged %s into %s", data.SiteName, data.LoserName, data.SurvivorName),
		TextBody: buildPersonMergeText(data),
		HTMLBody: render(personMergeHTMLTemplate, data),
	}
}

func buildPersonMergeText(data PersonMergeData) string {
	var buf bytes.Buffer
	buf.WriteString("Two person records were identified as the same person and merged.\n\n")
	buf.WriteString(fmt.Sprintf("Removed: %s <%s> legacy id %s\n", data.LoserName, data.LoserEmail, orNone(data.LoserLegacyID)))
	buf.WriteString(fmt.Sprintf("Kept:    %s <%s> legacy id %s\n", data.SurvivorName, data.SurvivorEmail, orNone(data.SurvivorLegacyID)))
	if data.RemoteQueued {
		buf.WriteString("\nThe same merge has been requested in the legacy system.\n")
	}
	return buf.String()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

const personMergeHTMLTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Person merge</title></head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; color: #374151;">
  <h2 style="color: #4f46e5;">{{.SiteName}}</h2>
  <p>Two person records were identified as the same person and merged.</p>
  <table cellpadding="4">
    <tr><td>Removed</td><td>{{.LoserName}} &lt;{{.LoserEmail}}&gt;</td><td>{{.LoserLegacyID}}</td></tr>
    <tr><td>Kept</td><td><strong>{{.SurvivorName}}</strong> &lt;{{.SurvivorEmail}}&gt;</td><td>{{.SurvivorLegacyID}}</td></tr>
  </table>
  {{- if .RemoteQueued}}
  <p>The same merge has been requested in the legacy system.</p>
  {{- end}}
</body>
</html>`

func render(src string, data any) string {
	tmpl := template.Must(template.New("email").Funcs(funcs).Parse(src))
	var buf bytes.Buffer
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}
