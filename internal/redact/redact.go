// Package redact scrubs credentials and infrastructure details from error
// text before it is logged, stored on a task record or relayed to a learner.
package redact

import (
	"log/slog"
	"regexp"
)

// Placeholders substituted for matched text.
const (
	Credential = "[REDACTED_CREDENTIAL]"
	Key        = "[REDACTED_KEY]"
	Token      = "[REDACTED_JWT]"
	Path       = "[REDACTED_PATH]"
	Host       = "[REDACTED_HOST]"
	SQL        = "[REDACTED_SQL]"
	Stack      = "[STACK_TRACE_REDACTED]"
)

type rule struct {
	re          *regexp.Regexp
	placeholder string
}

// rules run in order; earlier rules see the original text.
var rules = []rule{
	// user:password@ in postgres, kafka and generic URLs
	{regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://[^/\s@]+@`), Credential},
	{regexp.MustCompile(`(?i)\b(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`), Credential},

	// LLM provider keys: Anthropic, OpenAI, Google
	{regexp.MustCompile(`\bsk-(?:ant-)?[A-Za-z0-9_-]{16,}`), Key},
	{regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{30,}`), Key},
	// AWS access key ids and secret assignments
	{regexp.MustCompile(`\b(?:AKIA|ASIA)[A-Z0-9]{12,}`), Key},
	{regexp.MustCompile(`(?i)(api[_-]?key|x-api-key|x-goog-api-key|secret|access[_-]?key|authorization)(['"\s:=]+)(?:bearer\s+)?[A-Za-z0-9_\-.~+/]{8,}`), Key},

	{regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), Token},

	{regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`), Stack},
	{regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE)\b[\s\w,*()]+\b(FROM|INTO|SET)\b[\s\w,*()=$'"]*`), SQL},

	{regexp.MustCompile(`arn:aws:[a-z0-9-]+:[a-z0-9-]*:\d{12}:[^\s"']+`), Host},
	{regexp.MustCompile(`(/[\w.-]+){2,}`), Path},
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d{1,5})?\b`), Host},
	{regexp.MustCompile(`\b(?:[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?\.)+[A-Za-z]{2,}(?::\d{1,5})\b`), Host},
}

// String returns input with every sensitive match replaced.
func String(input string) string {
	if input == "" {
		return input
	}
	for _, r := range rules {
		input = r.re.ReplaceAllString(input, r.placeholder)
	}
	return input
}

// Error redacts err.Error(). A nil error yields "".
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// Attr is a slog "error" attribute carrying the redacted message.
func Attr(err error) slog.Attr {
	return slog.String("error", Error(err))
}
