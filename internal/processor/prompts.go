package processor

import (
	"fmt"
	"strings"
	"text/template"
)

var (
	chatSystemPrompt = template.Must(template.New("lesson_chat").Parse(`
You are a patient tutor helping a {{.Level}} learner study {{.Topic}}.
The current lesson is "{{.Title}}"{{if .Summary}}: {{.Summary}}{{end}}.

Answer the learner's latest message using the lesson below as your main
reference. Keep answers focused and short, ask a guiding question when the
learner seems stuck, and say so when a question is outside the lesson.

Lesson:
{{if .Exposition}}{{.Exposition}}{{else}}(no lesson text is available yet){{end}}

Respond with a JSON object with the key "response".
`))

	lessonContentPrompt = template.Must(template.New("lesson_content").Parse(`
You write lessons for a course on {{.Topic}} aimed at a {{.Level}} learner.
Levels, from easiest to hardest: {{.Levels}}.

Write the exposition for the lesson "{{.Title}}" in about {{.WordCount}} words
of Markdown. Build on earlier lessons without repeating them and leave topics of
later lessons for later. Use LaTeX between $ signs for inline mathematics and
$$ for display mathematics.

Course outline:
{{.Outline}}

Respond with a JSON object with the key "exposition".
`))

	syllabusPrompt = template.Must(template.New("syllabus").Parse(`
You design course syllabi. Create a syllabus on {{.Topic}} for a learner at the
{{.Level}} level.

Organize it into 3 to 6 modules, each with 2 to 5 lessons, ordered so that every
lesson only depends on earlier ones. Pitch depth and pace at the learner's
level. Give every lesson an estimated duration in minutes.

Respond with a JSON object with the key "modules": a list of objects with
"title", "summary" and "lessons", where each lesson has "title", "summary" and
"duration_minutes".
`))
)

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return strings.TrimSpace(b.String()), nil
}
