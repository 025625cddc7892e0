package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssignableRole(t *testing.T) {
	assert.True(t, AssignableRole(RoleAdmin))
	assert.True(t, AssignableRole(RoleUser))
	assert.True(t, AssignableRole(RoleViewer))

	// The agent credential is minted under its own secret, never granted.
	assert.False(t, AssignableRole(RoleAgent))
	assert.False(t, AssignableRole("root"))
}
