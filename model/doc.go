// Package model defines the provider-agnostic generation interface concrete
// agents use as their capability implementation. The orchestration core only
// depends on the Model signature; what a model does with a prompt is an
// external concern. Provider adapters live in subpackages (anthropic,
// openai); MockModel provides deterministic responses for tests and examples.
package model
