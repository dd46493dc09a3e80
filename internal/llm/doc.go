// Package llm is the structured-output language model capability used by
// the quiz graph and task processors. A Provider turns a prompt plus a JSON
// Schema into validated JSON; Gemini, Anthropic and OpenAI backends are
// available, wrapped with logging and retry decorators.
package llm
