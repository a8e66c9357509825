package task

import (
	"fmt"
	"strings"
)

// Placeholders that Expand substitutes in tool argument templates.
var Placeholders = []string{"target", "remote", "branch", "dir", "image", "size", "songs"}

type MissingValueError struct {
	Placeholder string
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("no value for {%s}", e.Placeholder)
}

// Expand fills the known placeholders of args from values. A known
// placeholder without a value is an error; unknown ones are left as is.
func Expand(args []string, values map[string]string) ([]string, error) {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, name := range Placeholders {
			token := "{" + name + "}"
			if !strings.Contains(arg, token) {
				continue
			}
			value := values[name]
			if value == "" {
				return nil, &MissingValueError{Placeholder: name}
			}
			arg = strings.ReplaceAll(arg, token, value)
		}
		result[i] = arg
	}
	return result, nil
}

// Uses reports whether any of args references the placeholder name.
func Uses(args []string, name string) bool {
	token := "{" + name + "}"
	for _, arg := range args {
		if strings.Contains(arg, token) {
			return true
		}
	}
	return false
}
