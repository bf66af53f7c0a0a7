package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacotes-bot/internal/packages"
)

type listerStub struct {
	subs []packages.Subscription
}

func (l listerStub) ListActive(groupID string) []packages.Subscription {
	var out []packages.Subscription
	for _, sub := range l.subs {
		if groupID == "" || sub.GroupID == groupID {
			out = append(out, sub)
		}
	}
	return out
}

func (l listerStub) FindByPhone(phone string) []packages.Subscription {
	var out []packages.Subscription
	for _, sub := range l.subs {
		if sub.Phone == phone {
			out = append(out, sub)
		}
	}
	return out
}

func TestSelectPackages(t *testing.T) {
	store := listerStub{subs: []packages.Subscription{
		{Reference: "A", Phone: "1", GroupID: "g1"},
		{Reference: "B", Phone: "1", GroupID: "g2"},
		{Reference: "C", Phone: "2", GroupID: "g1"},
	}}

	assert.Len(t, selectPackages(store, "", ""), 3)
	assert.Len(t, selectPackages(store, "g1", ""), 2)
	assert.Len(t, selectPackages(store, "", "1"), 2)

	got := selectPackages(store, "g2", "1")
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Reference)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeJSON(&buf, packages.TickResult{Renewed: 2}))

	assert.Contains(t, buf.String(), `"renovados": 2`)
	assert.Equal(t, byte('\n'), buf.Bytes()[buf.Len()-1])
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	assert.True(t, names["serve"])
	assert.True(t, names["tick"])
	assert.True(t, names["list"])
}
