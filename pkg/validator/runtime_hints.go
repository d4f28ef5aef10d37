package validator

import (
	"strconv"
	"strings"

	"github.com/cuemby/warren/pkg/types"
)

// deriveRuntimeHints scans the emitted argument vector for --nthreads and
// --nproc, clamping each to limits and defaulting non-positive values to 1.
// It never errors: a malformed or absent flag simply yields the default.
func deriveRuntimeHints(args []string, limits RuntimeLimits) types.RuntimeHints {
	hints := types.RuntimeHints{NThreads: 1, NProc: 1}

	for _, arg := range args {
		name, value, ok := splitFlag(arg)
		if !ok {
			continue
		}
		switch name {
		case "nthreads":
			hints.NThreads = clampPositive(parseIntOrDefault(value, 1), limits.MaxNThreads)
		case "nproc":
			hints.NProc = clampPositive(parseIntOrDefault(value, 1), limits.MaxNProc)
		}
	}

	return hints
}

func splitFlag(arg string) (name, value string, ok bool) {
	if !strings.HasPrefix(arg, "--") {
		return "", "", false
	}
	trimmed := strings.TrimPrefix(arg, "--")
	if idx := strings.IndexByte(trimmed, '='); idx >= 0 {
		return trimmed[:idx], trimmed[idx+1:], true
	}
	return trimmed, "", true
}

func parseIntOrDefault(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func clampPositive(n, max int) int {
	if n <= 0 {
		n = 1
	}
	if max > 0 && n > max {
		return max
	}
	return n
}
