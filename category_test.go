// SPDX-License-Identifier: GPL-3.0-or-later

package meshmq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryRegistryRegistrationErrors(t *testing.T) {
	noop := func(context.Context, *Message) {}

	t.Run("category name with dot rejected", func(t *testing.T) {
		reg := NewCategoryRegistry()
		_, err := reg.AddCategory("a.b", Access{})
		require.Error(t, err)
	})

	t.Run("duplicate category rejected", func(t *testing.T) {
		reg := NewCategoryRegistry()
		_, err := reg.AddCategory("x", Access{})
		require.NoError(t, err)
		_, err = reg.AddCategory("x", Access{})
		require.Error(t, err)
	})

	t.Run("command name with dot rejected", func(t *testing.T) {
		reg := NewCategoryRegistry()
		b, err := reg.AddCategory("x", Access{})
		require.NoError(t, err)
		err = b.AddCommand("a.b", noop)
		require.Error(t, err)
	})

	t.Run("duplicate command rejected", func(t *testing.T) {
		reg := NewCategoryRegistry()
		b, err := reg.AddCategory("x", Access{})
		require.NoError(t, err)
		require.NoError(t, b.AddCommand("cmd", noop))
		err = b.AddCommand("cmd", noop)
		require.Error(t, err)
	})

	t.Run("cannot register after freeze", func(t *testing.T) {
		reg := NewCategoryRegistry()
		reg.freeze()
		_, err := reg.AddCategory("x", Access{})
		require.Error(t, err)
	})
}

func TestCategoryRegistryLookup(t *testing.T) {
	noop := func(context.Context, *Message) {}
	reg := NewCategoryRegistry()

	b, err := reg.AddCategory("x", Access{Level: AuthBasic})
	require.NoError(t, err)
	require.NoError(t, b.AddCommand("cmd", noop))
	require.NoError(t, b.AddRequestCommand("r", noop))

	override := Access{Level: AuthAdmin}
	require.NoError(t, b.WithAccess(override).AddCommand("admincmd", noop))

	t.Run("unknown command string without dot", func(t *testing.T) {
		_, _, ok := reg.Lookup("noseparator")
		assert.False(t, ok)
	})

	t.Run("unknown category", func(t *testing.T) {
		_, _, ok := reg.Lookup("y.cmd")
		assert.False(t, ok)
	})

	t.Run("unknown command in known category", func(t *testing.T) {
		_, _, ok := reg.Lookup("x.nope")
		assert.False(t, ok)
	})

	t.Run("known fire-and-forget command", func(t *testing.T) {
		def, rec, ok := reg.Lookup("x.cmd")
		require.True(t, ok)
		assert.Equal(t, AuthBasic, def.Level)
		assert.Equal(t, KindFireAndForget, rec.Kind)
		assert.Equal(t, AuthBasic, rec.effectiveAccess(def).Level)
	})

	t.Run("known request command", func(t *testing.T) {
		_, rec, ok := reg.Lookup("x.r")
		require.True(t, ok)
		assert.Equal(t, KindRequest, rec.Kind)
	})

	t.Run("per-command access override", func(t *testing.T) {
		def, rec, ok := reg.Lookup("x.admincmd")
		require.True(t, ok)
		assert.Equal(t, AuthAdmin, rec.effectiveAccess(def).Level)
	})
}
