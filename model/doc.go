// Package model defines the provider-agnostic abstractions for streaming a
// completion from the interviewer model.
//
// Providers (OpenAI-compatible servers such as LM Studio, Anthropic) live in
// sub-packages and implement Model, so the streaming consumer stays
// decoupled from vendor SDKs. ScriptedModel plays deterministic rounds for
// tests and examples.
package model
