// Package aceerr names the error kinds the ACE loop distinguishes between so
// callers can decide whether a failure degrades a pipeline stage or aborts a cycle.
package aceerr

import "errors"

var (
	// ErrUpstreamUnavailable covers transport failures and timeouts talking to
	// the LLM or market-data providers. Recoverable: the caller degrades to a
	// safe default for the current stage.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrResponseBlocked means the model returned no usable content because a
	// safety filter fired. Recoverable the same way as ErrUpstreamUnavailable.
	ErrResponseBlocked = errors.New("response blocked by safety filter")

	// ErrEmptyResponse means the model's text was empty or whitespace-only.
	ErrEmptyResponse = errors.New("empty response")

	// ErrMalformedJSON means text was present but no JSON object could be
	// extracted from it.
	ErrMalformedJSON = errors.New("malformed json")

	// ErrSchemaViolation means JSON parsed but failed structural or semantic
	// validation against the expected artifact schema.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrCorruptState means the on-disk Playbook failed to parse or validate
	// and was quarantined; the cycle continues on a fresh seed.
	ErrCorruptState = errors.New("corrupt state")

	// ErrPublishFailed means the state bundle store write failed. A cycle
	// that cannot publish its bundle aborts with this error.
	ErrPublishFailed = errors.New("publish failed")
)
