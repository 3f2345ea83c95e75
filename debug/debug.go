// Package debug gates the expensive construction-time invariant checks.
//
// With the "debug" build tag the circuit builder tracks which witness-bound
// variables are actually referenced by a constraint, lookup or memory column
// and fails finalization when one is not (an unpaired witness is otherwise a
// silent soundness gap). Release builds skip the bookkeeping entirely.
package debug

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Stack returns a trimmed rendering of the calling stack, used to point at
// the construction site of an offending constraint or invariant.
func Stack() string {
	var sbb strings.Builder
	WriteStack(&sbb)
	return sbb.String()
}

// WriteStack writes the trimmed stack into sbb. Frames internal to the
// builder and the panic machinery are skipped unless the debug tag is set;
// walking stops once the machine-level build function is reached.
func WriteStack(sbb *strings.Builder) {
	pc := make([]uintptr, 10)
	n := runtime.Callers(3, pc)
	if n == 0 {
		return
	}
	pc = pc[:n]
	frames := runtime.CallersFrames(pc)
	for {
		frame, more := frames.Next()
		fe := strings.Split(frame.Function, "/")
		function := fe[len(fe)-1]
		file := frame.File

		if !Debug {
			if strings.Contains(function, "runtime.gopanic") {
				continue
			}
			if strings.Contains(file, "gnark-air/cs") {
				continue
			}
			file = filepath.Base(file)
		}

		sbb.WriteString(function)
		sbb.WriteByte('\n')
		sbb.WriteByte('\t')
		sbb.WriteString(file)
		sbb.WriteByte(':')
		sbb.WriteString(strconv.Itoa(frame.Line))
		sbb.WriteByte('\n')
		if !more {
			break
		}
		if strings.HasSuffix(function, "Build") {
			break
		}
	}
}
