package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionGroupID(t *testing.T) {
	t.Run("uses the hostname", func(t *testing.T) {
		got := sessionGroupID(func() (string, error) { return "storefront-7d9f", nil })
		assert.Equal(t, "storefront-sessions-storefront-7d9f", got)
	})

	for name, hostname := range map[string]func() (string, error){
		"hostname error": func() (string, error) { return "", errors.New("uname failed") },
		"empty hostname": func() (string, error) { return "", nil },
	} {
		t.Run(name+" falls back to a unique group", func(t *testing.T) {
			first := sessionGroupID(hostname)
			second := sessionGroupID(hostname)

			suffix, ok := strings.CutPrefix(first, "storefront-sessions-")
			require.True(t, ok)
			_, err := uuid.Parse(suffix)
			require.NoError(t, err)
			assert.NotEqual(t, first, second)
		})
	}
}
