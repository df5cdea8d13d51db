package process

import (
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/shell"
)

// ErrEmptyCommand is returned when a command string holds no words.
var ErrEmptyCommand = errors.New("empty command")

// Tokenize splits command into a program and its arguments using POSIX
// shell word rules: whitespace separates words, quotes group them and
// $VAR / ${VAR} are resolved through lookup (the current environment when
// lookup is nil). Nothing is executed by a shell; command substitution is
// rejected.
func Tokenize(command string, lookup func(string) string) ([]string, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrEmptyCommand
	}
	fields, err := shell.Fields(command, lookup)
	if err != nil {
		return nil, fmt.Errorf("tokenize %q: %w", command, err)
	}
	if len(fields) == 0 || fields[0] == "" {
		return nil, fmt.Errorf("tokenize %q: %w", command, ErrEmptyCommand)
	}
	return fields, nil
}
