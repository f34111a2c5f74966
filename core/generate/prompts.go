package generate

import (
	"bytes"
	"text/template"
)

const systemPrompt = `You are an expert curriculum designer writing self-paced course material.
Write in the language of the course. Be concrete, accurate and concise.
When asked for JSON, answer with a single JSON document and nothing else.`

var prompts = template.Must(template.New("prompts").Parse(`
{{define "outline_lessons"}}Course: {{.Course}} (language: {{.Language}})
Chapter: {{.Chapter}}
{{with .Description}}Chapter description: {{.}}
{{end}}
Split this chapter into {{.MinLessons}} to {{.MaxLessons}} lessons, ordered from the simplest to the most advanced.
Answer with: {"lessons": [{"title": "...", "description": "one or two sentences", "kind": "core|language|custom"}]}
Use the "language" kind for lessons teaching vocabulary, grammar or pronunciation, "core" otherwise.{{end}}

{{define "lesson_kind"}}Course: {{.Course}} (language: {{.Language}})
Chapter: {{.Chapter}}
Lesson: {{.Lesson}}
{{with .Description}}Lesson description: {{.}}
{{end}}
Classify this lesson. Answer with: {"kind": "core|language|custom"}
"language" lessons teach vocabulary, grammar or pronunciation; "custom" lessons fit no usual structure; everything else is "core".{{end}}

{{define "plan_activities"}}Course: {{.Course}} (language: {{.Language}})
Chapter: {{.Chapter}}
Lesson: {{.Lesson}} (kind: {{.Kind}})
{{with .Description}}Lesson description: {{.}}
{{end}}
Plan the activities of this lesson, in the order a learner goes through them.
Available kinds: background, explanation, examples, quiz, review, custom.
A lesson usually has one explanation, some examples, one quiz and ends with one review.
Answer with: {"activities": [{"kind": "...", "title": "...", "goal": "what the learner gets out of it"}]}{{end}}

{{define "write_activity"}}Course: {{.Course}} (language: {{.Language}})
Chapter: {{.Chapter}}
Lesson: {{.Lesson}} (kind: {{.Kind}})
Activity: {{.Activity.Title}} ({{.Activity.Kind}})
Goal: {{.Activity.Goal}}
{{with .Material}}
Material already taught in this lesson:
{{range .}}- {{.}}
{{end}}{{end}}
{{if eq .Activity.Kind "background"}}Answer with: {"title": "...", "body": "markdown: context & motivation"}
{{else if eq .Activity.Kind "explanation"}}Answer with: {"title": "...", "body": "markdown: the explanation"}
{{else if eq .Activity.Kind "examples"}}Answer with: {"examples": [{"text": "...", "translation": "optional", "note": "optional"}]}
{{else if eq .Activity.Kind "quiz"}}Only ask about the material above. Answer with: {"questions": [{"question": "...", "choices": ["..."], "answer": <index of the right choice>, "explanation": "..."}]}
{{else if eq .Activity.Kind "review"}}Answer with: {"summary": "...", "key_points": ["..."]}
{{else}}Answer with: {"title": "...", "body": "markdown"}
{{end}}{{end}}
`))

func render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
