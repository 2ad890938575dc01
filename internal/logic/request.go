package logic

import "strings"

// commandPrefix is where a form submission places the command in the
// request target ("/?DOOR=UP").
const commandPrefix = "/?"

var requestCommands = []struct {
	literal string
	cmd     Command
}{
	{"DOOR=UP", CommandUp},
	{"DOOR=DOWN", CommandDown},
	{"DOOR=VENT", CommandVent},
	{"DOOR=LIGHT", CommandLight},
	{"DOOR=STOP", CommandStop},
}

// ParseRequestTarget extracts a door command from an HTTP request target.
// The literal must sit immediately after "/?"; anything else, including a
// bare "/" or an unrelated query, is a page refresh and yields CommandNone.
func ParseRequestTarget(target string) Command {
	if !strings.HasPrefix(target, commandPrefix) {
		return CommandNone
	}
	rest := target[len(commandPrefix):]
	for _, rc := range requestCommands {
		if !strings.HasPrefix(rest, rc.literal) {
			continue
		}
		tail := rest[len(rc.literal):]
		if tail == "" || tail[0] == '&' {
			return rc.cmd
		}
	}
	return CommandNone
}
