package openai

import (
	"errors"

	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/resilience"
)

// streamInterruptedError is a stream failure after output already reached the caller.
type streamInterruptedError struct {
	err      error
	consumer bool
}

func (e *streamInterruptedError) Error() string {
	if e.consumer {
		return "llm stream consumer: " + e.err.Error()
	}
	return "llm stream interrupted: " + e.err.Error()
}

func (e *streamInterruptedError) Unwrap() error {
	return e.err
}

func classifyLLMError(err error) resilience.ErrorClassification {
	var interrupted *streamInterruptedError
	if errors.As(err, &interrupted) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: !interrupted.consumer,
		}
	}
	return resilience.ClassifyHTTPError(err)
}
