package simerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		want bool
	}{
		{"job timeout matches", JobTimeout("job-1"), KindJobTimeout, true},
		{"job timeout does not match killed", JobTimeout("job-1"), KindJobKilled, false},
		{"wrapped error still classifies", fmt.Errorf("outer: %w", NotEnoughResources("job-1", "svc")), KindNotEnoughResources, true},
		{"plain error has no kind", errors.New("boom"), KindJobTimeout, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Is(tt.err, tt.kind))
		})
	}
}

func TestErrorsIsSentinel(t *testing.T) {
	err := FunctionAlreadyRegistered("f1", "svc-a")
	assert.True(t, errors.Is(err, &Error{Kind: KindFunctionAlreadyRegistered}))
	assert.False(t, errors.Is(err, &Error{Kind: KindFunctionNotRegistered}))
}

func TestInvocationNotReadyMessage(t *testing.T) {
	err := InvocationNotReady()
	assert.Contains(t, err.Error(), "not yet complete")
}
