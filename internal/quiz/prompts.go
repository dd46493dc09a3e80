package quiz

import (
	"strings"
	"text/template"
)

var (
	generateQuestionPrompt = template.Must(template.New("generate_question").Funcs(promptFuncs).Parse(`
You write quiz questions for a technical lesson. Create one clear multiple-choice
question that tests understanding of the lesson content below.

Match the target difficulty. Avoid questions whose main focus is a previously
covered subtopic. When incorrectly answered subtopics are listed, prefer a
question that targets one or more of them.

Provide exactly four options, one of them correct, with plausible distractors
drawn from the lesson.

Respond with a JSON object with these keys:
- "question_text": the question.
- "options": a list of four option strings.
- "correct_answer": the correct option, matching one of the options exactly.
- "subtopics": one to three precise subtopics of the lesson the question covers.
- "difficulty": the difficulty of the question you wrote.

Lesson content:
{{.LessonContent}}

Target difficulty: {{.Difficulty}}

Previously covered subtopics:
{{join .PreviousSubtopics}}

Incorrectly answered subtopics:
{{join .IncorrectSubtopics}}
`))

	retryQuestionPrompt = template.Must(template.New("retry_question").Funcs(promptFuncs).Parse(`
You write follow-up quiz questions for a learner who struggled with parts of a
technical lesson. Create one multiple-choice question that focuses on the
subtopics the learner answered incorrectly. It must differ from earlier
questions while testing the same concepts. You may lower the difficulty
slightly.

Provide exactly four options, one of them correct, with plausible distractors
drawn from the lesson.

Respond with a JSON object with these keys:
- "question_text": the question.
- "options": a list of four option strings.
- "correct_answer": the correct option, matching one of the options exactly.
- "subtopics": the incorrectly answered subtopics this question covers.
- "difficulty": the difficulty of the question you wrote.

Incorrectly answered subtopics:
{{join .IncorrectSubtopics}}

Lesson content:
{{.LessonContent}}

Target difficulty: {{.Difficulty}}
`))

	evaluateAnswerPrompt = template.Must(template.New("evaluate_answer").Funcs(promptFuncs).Parse(`
You grade answers to technical quiz questions. Compare the learner's answer
with the correct answer and give constructive feedback. For a wrong or
incomplete answer explain what is missing without simply revealing the
answer. Decide which of the question's subtopics the learner understood and
which they did not.

Respond with a JSON object with these keys:
- "is_correct": true only if the answer is fully correct.
- "feedback": feedback for the learner.
- "subtopics_covered": question subtopics the learner understood.
- "subtopics_missed": question subtopics the learner did not understand.
- "prompt_for_detail": true if the answer is partly right but needs elaboration.

Question:
{{.QuestionText}}

Correct answer:
{{.CorrectAnswer}}

Learner's answer:
{{.UserAnswer}}

Question subtopics:
{{join .Subtopics}}
`))
)

var promptFuncs = template.FuncMap{
	"join": func(items []string) string {
		if len(items) == 0 {
			return "(none)"
		}
		return strings.Join(items, ", ")
	},
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
