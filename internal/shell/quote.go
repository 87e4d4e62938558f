package shell

import "strings"

// Quote wraps value in single quotes so sh passes it through as one word.
func Quote(value string) string {
	if value == "" {
		return "''"
	}

	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// Join quotes cmd and args into a single sh command line.
func Join(cmd string, args ...string) string {
	if len(args) == 0 {
		return Quote(cmd)
	}

	var builder strings.Builder
	builder.WriteString(Quote(cmd))
	for _, arg := range args {
		builder.WriteByte(' ')
		builder.WriteString(Quote(arg))
	}

	return builder.String()
}

// AsUser runs script as user through su. An empty user leaves script unchanged.
func AsUser(user, script string) string {
	user = strings.TrimSpace(user)
	if user == "" {
		return script
	}
	return "su " + user + " -c " + Quote(script)
}

// Detach backgrounds script with its output discarded so the caller's
// session returns immediately.
func Detach(script string) string {
	return "nohup " + script + " >/dev/null 2>&1 &"
}

// WithEnv prefixes script with one NAME=value assignment.
func WithEnv(name, value, script string) string {
	return name + "=" + Quote(value) + " " + script
}
