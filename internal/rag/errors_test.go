package rag

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindsSurviveWrapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		as   func(error) bool
	}{
		{
			"validation",
			NewValidationError("question must not be empty"),
			func(err error) bool { var e *ValidationError; return errors.As(err, &e) },
		},
		{
			"data integrity",
			NewDataIntegrityError("dimension mismatch"),
			func(err error) bool { var e *DataIntegrityError; return errors.As(err, &e) },
		},
		{
			"embedding",
			&EmbeddingError{StatusCode: 500, Detail: "model unavailable"},
			func(err error) bool { var e *EmbeddingError; return errors.As(err, &e) },
		},
		{
			"generation",
			&RemoteGenerationError{StatusCode: 502, Detail: "bad gateway"},
			func(err error) bool { var e *RemoteGenerationError; return errors.As(err, &e) },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("chat pipeline failed: %w", tc.err)
			if !tc.as(wrapped) {
				t.Errorf("error kind lost through wrapping: %v", wrapped)
			}
		})
	}
}

func TestRemoteGenerationError_IsRateLimited(t *testing.T) {
	limited := &RemoteGenerationError{StatusCode: 429, Detail: "slow down"}
	if !limited.IsRateLimited() {
		t.Error("status 429 must be treated as rate limited")
	}
	server := &RemoteGenerationError{StatusCode: 500, Detail: "boom"}
	if server.IsRateLimited() {
		t.Error("status 500 must not be treated as rate limited")
	}
}
