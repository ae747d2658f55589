// Package voice turns recorded audio into a transcript and rewrites the
// transcript in a requested style.
package voice

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Style selects how a transcript is rewritten.
type Style string

const (
	StyleClean    Style = "clean"
	StyleLinkedIn Style = "linkedin"
	StyleTwitter  Style = "twitter"
	StyleEmail    Style = "email"
	StyleBlog     Style = "blog"
)

var styleInstructions = map[Style]string{
	StyleClean:    "Clean up this transcript: fix grammar and punctuation, remove filler words, keep the meaning and voice.",
	StyleLinkedIn: "Rewrite this transcript as a concise, professional LinkedIn post.",
	StyleTwitter:  "Rewrite this transcript as a single tweet under 280 characters.",
	StyleEmail:    "Rewrite this transcript as a clear, polite email body.",
	StyleBlog:     "Rewrite this transcript as a short blog post with a title and paragraphs.",
}

// ParseStyle returns the style for s; empty means StyleClean.
func ParseStyle(s string) (Style, error) {
	st := Style(strings.ToLower(strings.TrimSpace(s)))
	if st == "" {
		return StyleClean, nil
	}
	if _, ok := styleInstructions[st]; !ok {
		return "", fmt.Errorf("unknown style %q", s)
	}
	return st, nil
}

// Instruction returns the one-line rewrite instruction for a style.
func (s Style) Instruction() string {
	if ins, ok := styleInstructions[s]; ok {
		return ins
	}
	return styleInstructions[StyleClean]
}

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Enhancer rewrites a transcript in a style.
type Enhancer interface {
	Enhance(ctx context.Context, transcript string, style Style) (string, error)
}

// Provider does both.
type Provider interface {
	Transcriber
	Enhancer
}
