package process

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// MergeEnv layers override maps over a KEY=VALUE environment. Later layers
// win. Values are expanded against the environment merged so far, so "$PATH"
// in an override refers to the inherited PATH.
func MergeEnv(base []string, layers ...map[string]string) []string {
	merged := make(map[string]string, len(base))
	names := make(map[string]string, len(base))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		merged[envKey(k)] = v
		names[envKey(k)] = k
	}

	for _, layer := range layers {
		keys := make([]string, 0, len(layer))
		for k := range layer {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		snapshot := make(map[string]string, len(merged))
		for k, v := range merged {
			snapshot[k] = v
		}
		for _, k := range keys {
			expanded := os.Expand(layer[k], func(name string) string {
				return snapshot[envKey(name)]
			})
			merged[envKey(k)] = expanded
			if _, ok := names[envKey(k)]; !ok {
				names[envKey(k)] = k
			}
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, names[k]+"="+merged[k])
	}
	return out
}

// Lookup returns the value of name in a KEY=VALUE environment.
func Lookup(env []string, name string) (string, bool) {
	want := envKey(name)
	for i := len(env) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(env[i], "=")
		if ok && envKey(k) == want {
			return v, true
		}
	}
	return "", false
}

// PrependPath returns a PATH value with dir placed before the current
// entries of env.
func PrependPath(env []string, dir string) string {
	current, _ := Lookup(env, "PATH")
	if current == "" {
		return dir
	}
	return dir + string(os.PathListSeparator) + current
}

var errNotFound = errors.New("executable file not found in PATH")

// LookPath searches the PATH of env rather than the current process for
// name. Names containing a path separator are checked directly.
func LookPath(name string, env []string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		if isExecutable(name) {
			return name, nil
		}
		return "", &os.PathError{Op: "lookpath", Path: name, Err: errNotFound}
	}
	pathVar, _ := Lookup(env, "PATH")
	for _, dir := range filepath.SplitList(pathVar) {
		if dir == "" {
			continue
		}
		for _, candidate := range executableNames(name) {
			full := filepath.Join(dir, candidate)
			if isExecutable(full) {
				return full, nil
			}
		}
	}
	return "", &os.PathError{Op: "lookpath", Path: name, Err: errNotFound}
}

// ExecutableName appends the platform executable suffix.
func ExecutableName(base string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(base), ".exe") {
		return base + ".exe"
	}
	return base
}

func executableNames(name string) []string {
	if runtime.GOOS == "windows" {
		return []string{ExecutableName(name), name}
	}
	return []string{name}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}

func envKey(k string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(k)
	}
	return k
}
