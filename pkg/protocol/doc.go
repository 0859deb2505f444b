// Package protocol parses the structured parts of model output: embedded JSON
// objects (plans, coverage verdicts) and tool-call lines of the form
// name(arg="value", ...). Model output is untrusted; every parser returns a
// *domain.ParseError instead of guessing.
package protocol
