package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAuth(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"REGISTER alice secret", Command{Kind: Register, Name: "alice", Arg: "secret"}},
		{"LOGIN alice secret", Command{Kind: Login, Name: "alice", Arg: "secret"}},
		{"LOGIN  alice   secret", Command{Kind: Login, Name: "alice", Arg: "secret"}},
		{"HELP", Command{Kind: Help}},
		{"EXIT", Command{Kind: Exit}},
		{"login alice secret", Command{Kind: Unknown}},
		{"LOGIN alice", Command{Kind: Unknown}},
		{"REGISTER alice", Command{Kind: Unknown}},
		{"REGISTER alice secret extra", Command{Kind: Unknown}},
		{"HELP me", Command{Kind: Unknown}},
		{"bob: hi", Command{Kind: Unknown}},
		{"", Command{Kind: Unknown}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseAuth(tt.line), "line %q", tt.line)
	}
}

func TestParseSession(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"bob: hi there", Command{Kind: Send, Name: "bob", Arg: "hi there"}},
		{"bob: x: y", Command{Kind: Send, Name: "bob", Arg: "x: y"}},
		{"ADD bob", Command{Kind: Add, Name: "bob"}},
		{"DELETE bob", Command{Kind: Delete, Name: "bob"}},
		{"STATUS", Command{Kind: Status}},
		{"HELP", Command{Kind: Help}},
		{"EXIT", Command{Kind: Exit}},
		{"add bob", Command{Kind: Unknown}},
		{"ADD", Command{Kind: Unknown}},
		{"bob:", Command{Kind: Unknown}},
		{"bob:hi", Command{Kind: Unknown}},
		{"STATUS bob", Command{Kind: Unknown}},
		{"REGISTER alice secret", Command{Kind: Unknown}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseSession(tt.line), "line %q", tt.line)
	}
}
