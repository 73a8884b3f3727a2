package hlserr

import (
	"regexp"
	"strings"
)

// missingToolPatterns match diagnostics from the server wrapper and hie-bios
// that name a tool the project's cradle needs. The first capture group is the
// tool name.
var missingToolPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Cradle requires (\S+) but couldn't find it`),
	regexp.MustCompile(`Couldn't execute (\S+)`),
	regexp.MustCompile(`(?m)^\s*(\S+): (?:executable file not found in \$PATH|command not found)`),
	regexp.MustCompile(`Cannot find (?:the )?(\S+) executable`),
}

// Classify inspects stderr output from a failed invocation and returns a
// MissingToolError when it names a missing tool. It returns nil otherwise.
func Classify(stderr string) error {
	for _, re := range missingToolPatterns {
		m := re.FindStringSubmatch(stderr)
		if m == nil {
			continue
		}
		tool := strings.Trim(m[1], "\"'`")
		if tool == "" {
			continue
		}
		return NewMissingTool(tool)
	}
	return nil
}
