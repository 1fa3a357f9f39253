package graph

import "strings"

// Name mangling maps (module full name, function name) pairs onto LLVM
// symbol names with a deterministic, reversible escaping: `_` becomes `__`,
// `/` becomes `_s`, `.` becomes `_d`, and the two halves are joined with
// `_m`.  The `main` function of a module whose short name is `main` maps to
// the fixed symbol `chigraph_main`.

// MangleFunctionName mangles a (module, function) pair into a symbol name.
func MangleFunctionName(moduleFullName, name string) string {
	short := moduleFullName
	if idx := strings.LastIndexByte(short, '/'); idx != -1 {
		short = short[idx+1:]
	}
	if short == "main" && name == "main" {
		return "chigraph_main"
	}

	escaped := strings.NewReplacer("_", "__", "/", "_s", ".", "_d").Replace(moduleFullName)
	return escaped + "_m" + name
}

// UnmangleFunctionName recovers the (module, function) pair from a mangled
// symbol name.  `chigraph_main` always yields ("main", "main"), whatever the
// full name of the module it came from.
func UnmangleFunctionName(mangled string) (moduleFullName, name string) {
	if mangled == "chigraph_main" {
		return "main", "main"
	}

	// find the _m separator: the first `_m` preceded by an even number of
	// escape underscores
	sep := -1
	for i := 0; i+1 < len(mangled); i++ {
		if mangled[i] == '_' {
			switch mangled[i+1] {
			case '_', 's', 'd':
				i++ // escape sequence, skip its second byte
			case 'm':
				sep = i
			}
			if sep != -1 {
				break
			}
		}
	}
	if sep == -1 {
		return "", mangled
	}

	escaped := mangled[:sep]
	name = mangled[sep+2:]

	var sb strings.Builder
	for i := 0; i < len(escaped); i++ {
		if escaped[i] == '_' && i+1 < len(escaped) {
			switch escaped[i+1] {
			case '_':
				sb.WriteByte('_')
			case 's':
				sb.WriteByte('/')
			case 'd':
				sb.WriteByte('.')
			}
			i++
			continue
		}
		sb.WriteByte(escaped[i])
	}

	return sb.String(), name
}
