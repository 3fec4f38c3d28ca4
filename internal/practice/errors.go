package practice

import "errors"

var (
	// ErrPriorGenerationRequired means verification was requested before
	// any generation happened for the session (or the log vanished).
	ErrPriorGenerationRequired = errors.New("no prior generation for this session")
	// ErrUnknownQuestion means a submitted id is not in the latest
	// generation batch: the client is answering against a stale batch.
	ErrUnknownQuestion = errors.New("question not found in latest generation batch")
	// ErrMissingContent means the stored question has no content, which
	// indicates a corrupted or partial earlier write.
	ErrMissingContent = errors.New("stored question has no content")
	// ErrSchemaViolation means the LLM response was not parseable JSON
	// or did not match the declared shape.
	ErrSchemaViolation = errors.New("llm response does not match expected schema")
)

// IsSessionStateError reports whether err is user-actionable: the client
// must (re)generate questions before verifying. Everything else is an
// internal failure.
func IsSessionStateError(err error) bool {
	return errors.Is(err, ErrPriorGenerationRequired) ||
		errors.Is(err, ErrUnknownQuestion) ||
		errors.Is(err, ErrMissingContent)
}
