package http

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/aretw0/voicesurvey/pkg/domain"
)

var adminTemplate = template.Must(template.New("admin").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <title>Survey Participants</title>
</head>
<body>
<h1>Survey Participants</h1>
<table>
    <thead>
    <tr>
        <th>Call</th>
        <th>Number</th>
        <th>Status</th>
        {{- range .Questions}}
        <th>{{.}}</th>
        {{- end}}
    </tr>
    </thead>
    <tbody>
    {{- range .Rows}}
    <tr>
        <td>{{.CallID}}</td>
        <td>{{.Destination}}</td>
        <td>{{.Status}}</td>
        {{- range .Cells}}
        <td>{{if .URL}}<audio controls src="{{.URL}}"></audio>{{else if .Answered}}recorded{{end}}</td>
        {{- end}}
    </tr>
    {{- end}}
    </tbody>
</table>
</body>
</html>
`))

type adminCell struct {
	Answered bool
	URL      string
}

type adminRow struct {
	CallID      string
	Destination string
	Status      string
	Cells       []adminCell // one per question
}

type adminPage struct {
	Questions []string
	Rows      []adminRow
}

// Admin handles GET /admin, an HTML overview of participants and their recordings.
func (s *Server) Admin(w http.ResponseWriter, r *http.Request) {
	views, err := s.Engine.Participants(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page := adminPage{Questions: s.Engine.Catalog().Texts()}
	for _, v := range views {
		page.Rows = append(page.Rows, s.adminRow(v, len(page.Questions)))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := adminTemplate.Execute(w, page); err != nil {
		s.logger.Error("Admin: template execution failed", "err", err)
	}
}

func (s *Server) adminRow(v domain.ParticipantView, questions int) adminRow {
	row := adminRow{
		CallID:      v.CallID,
		Destination: v.Destination,
		Status:      v.Status.String(),
		Cells:       make([]adminCell, questions),
	}
	for i, a := range v.Answers {
		if i >= questions {
			break
		}
		row.Cells[i].Answered = true
		if s.Recordings != nil {
			row.Cells[i].URL = "/play/" + url.PathEscape(v.CallID) + "/" + url.PathEscape(a.LegID) + "/" + url.PathEscape(a.RecordingRef)
		}
	}
	return row
}
