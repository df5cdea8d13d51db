package drone

import "strings"

// SplitCommands decodes one read from the channel into commands. Lines are
// separated by '\n', a trailing '\r' is dropped and blank lines are skipped.
// Invalid UTF-8 is replaced rather than rejected.
//
// Each read is decoded on its own: a command cut in two by the buffer size
// arrives as two separate commands.
func SplitCommands(b []byte) []string {
	text := strings.ToValidUTF8(string(b), "�")
	lines := strings.Split(text, "\n")
	cmds := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cmds = append(cmds, line)
	}
	return cmds
}
