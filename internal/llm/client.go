// Package llm defines the minimal model-query surface the agentic loop
// depends on. The network call itself is out of scope (spec §1): this
// package only describes the interface and carries a deterministic stub
// used for wiring and tests.
package llm

import "context"

// Part is one fragment of a multimodal prompt (text, image, audio, file).
type Part struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Options carries the handful of knobs the loop is allowed to pass through.
// EnableThinking is a no-op-tolerant field: a Client that does not support
// extended reasoning may ignore it.
type Options struct {
	EnableThinking bool
}

// Client is the query(prompt, options, parts) -> text surface described by
// the spec. Implementations own model selection, auth, retries and network
// transport.
type Client interface {
	Query(ctx context.Context, prompt string, opts Options, parts []Part) (string, error)
}

// StaticClient is a deterministic Client used where no real model backend is
// wired (the serve command in cmd/toolserver, unit tests). It never calls
// out to a network.
type StaticClient struct {
	Response string
	Err      error
}

func (s *StaticClient) Query(ctx context.Context, prompt string, opts Options, parts []Part) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Response, nil
}
