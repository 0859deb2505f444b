// Package llm selects a generation backend by provider name.
//
// Concrete adapters live in the openai and anthropic subpackages. LM Studio,
// OpenAI and Groq all speak the OpenAI chat completions protocol and share
// the openai adapter with different base URLs.
package llm
