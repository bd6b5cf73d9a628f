// Package protocol recognizes the line-oriented command grammar. Parsing is
// pure and stateless; the server decides what a command means in its phase.
package protocol

import "regexp"

type Kind int

const (
	Unknown Kind = iota
	Register
	Login
	Help
	Exit
	Send
	Add
	Delete
	Status
)

// Command is one recognized input line. Name carries the username argument
// (the recipient for Send); Arg carries the credential for Register/Login and
// the message text for Send.
type Command struct {
	Kind Kind
	Name string
	Arg  string
}

type matcher struct {
	kind Kind
	re   *regexp.Regexp
}

// Keywords are case-sensitive and every pattern must consume the whole line.
var (
	authMatchers = []matcher{
		{Register, regexp.MustCompile(`^REGISTER\s+(\w+)\s+(\S+)$`)},
		{Login, regexp.MustCompile(`^LOGIN\s+(\w+)\s+(\S+)$`)},
		{Help, regexp.MustCompile(`^HELP$`)},
		{Exit, regexp.MustCompile(`^EXIT$`)},
	}

	sessionMatchers = []matcher{
		{Send, regexp.MustCompile(`^(\w+): (.+)$`)},
		{Add, regexp.MustCompile(`^ADD\s+(\w+)$`)},
		{Delete, regexp.MustCompile(`^DELETE\s+(\w+)$`)},
		{Status, regexp.MustCompile(`^STATUS$`)},
		{Help, regexp.MustCompile(`^HELP$`)},
		{Exit, regexp.MustCompile(`^EXIT$`)},
	}
)

// ParseAuth recognizes the pre-auth grammar: REGISTER, LOGIN, HELP, EXIT.
func ParseAuth(line string) Command {
	return match(authMatchers, line)
}

// ParseSession recognizes the post-auth grammar. Matchers are tried in a
// fixed priority order; the first full match wins.
func ParseSession(line string) Command {
	return match(sessionMatchers, line)
}

func match(matchers []matcher, line string) Command {
	for _, m := range matchers {
		groups := m.re.FindStringSubmatch(line)
		if groups == nil {
			continue
		}

		cmd := Command{Kind: m.kind}
		if len(groups) > 1 {
			cmd.Name = groups[1]
		}
		if len(groups) > 2 {
			cmd.Arg = groups[2]
		}
		return cmd
	}

	return Command{Kind: Unknown}
}
