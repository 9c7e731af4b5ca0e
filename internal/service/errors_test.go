package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected *Error
	}{
		{
			name:     "nil stays nil",
			err:      nil,
			expected: nil,
		},
		{
			name:     "wrapped domain error is recovered",
			err:      fmt.Errorf("transaction function failed: %w", NewError(ErrorCodeForbidden, "nope")),
			expected: NewError(ErrorCodeForbidden, "nope"),
		},
		{
			name:     "other failures become unspecified",
			err:      fmt.Errorf("failed to commit transaction: %w", fmt.Errorf("conn closed")),
			expected: NewError(ErrorCodeUnspecified, "fallback"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, asError(tt.err, "fallback"))
		})
	}
}
