package profile

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/google/pprof/profile"
)

// since we are assuming usage of this package from a single go routine, this channel only has
// one "producer", and one "consumer". it's purpose is to guarantee the order of execution of
// adding / removing a profiling session and sampling events, while enabling the caller
// (the circuit builder) to sample the events asynchronously.
var chCommands = make(chan command, 100)
var onceInit sync.Once

type command struct {
	p      *Profile
	pc     []uintptr
	remove bool
}

func worker() {
	for c := range chCommands {
		if c.p != nil {
			if c.remove {
				for i := 0; i < len(sessions); i++ {
					if sessions[i] == c.p {
						sessions[i] = sessions[len(sessions)-1]
						sessions = sessions[:len(sessions)-1]
						break
					}
				}
				close(c.p.chDone)

				// decrement active sessions
				atomic.AddUint32(&activeSessions, ^uint32(0))
			} else {
				sessions = append(sessions, c.p)
			}
			continue
		}

		// it's a sampling of event (constraint)
		collectSample(c.pc)
	}

}

// collectSample must be called from the worker go routine
func collectSample(pc []uintptr) {
	// for each session we may have a distinct sample, since ids of functions and locations may mismatch
	samples := make([]*profile.Sample, len(sessions))
	for i := range samples {
		samples[i] = &profile.Sample{Value: []int64{1}} // for now, we just collect new constraints count
	}

	frames := runtime.CallersFrames(pc)
	// Loop to get frames.
	// A fixed number of pcs can expand to an indefinite number of Frames.
	for {
		frame, more := frames.Next()

		if strings.Contains(frame.Function, "air.Compile") {
			// we stop; previous frame was the entry point of the circuit build
			break
		}

		if strings.HasSuffix(frame.Function, ".func1") {
			// skip anonymous closures; they display poorly and rarely carry
			// attribution value
			continue
		}

		// filter internal builder functions
		if filterBuilderPrivateFunc(frame.Function) {
			continue
		}

		// generic instantiations display poorly in pprof
		// https://github.com/golang/go/issues/54105
		frame.Function = strings.ReplaceAll(frame.Function, "[...]", "[T]")

		for i := range samples {
			samples[i].Location = append(samples[i].Location, sessions[i].getLocation(&frame))
		}

		if !more {
			break
		}
		if strings.HasSuffix(frame.Function, ".Build") {
			for i := range sessions {
				sessions[i].onceSetName.Do(func() {
					// once per profile session, we set the "name of the binary":
					// the struct name the Build method hangs off, hopefully the
					// machine name.
					fe := strings.Split(frame.Function, "/")
					circuitName := strings.TrimSuffix(fe[len(fe)-1], ".Build")
					sessions[i].pprof.Mapping = []*profile.Mapping{
						{ID: 1, File: circuitName},
					}
				})
			}
			break
		}
	}

	for i := range sessions {
		sessions[i].pprof.Sample = append(sessions[i].pprof.Sample, samples[i])
	}
}

func filterBuilderPrivateFunc(f string) bool {
	const csPrefix = "github.com/consensys/gnark-air/cs.(*Builder"
	if idx := strings.Index(f, csPrefix); idx == 0 {
		// filter builder private APIs from the trace: the generic receiver
		// renders as (*Builder[...]).method, the method name follows the
		// closing parenthesis and a dot.
		if j := strings.LastIndex(f, "."); j >= 0 && j+1 < len(f) {
			c := []rune(f[j+1:])[0]
			if unicode.IsLower(c) {
				return true
			}
		}
	}
	return false
}

// Top returns a flat, pprof-top-like view of the profile: one line per
// function, sorted by flat count (samples whose leaf location is in that
// function), with cumulative counts (samples the function appears anywhere
// in).
func (p *Profile) Top() string {
	type row struct {
		name string
		flat int64
		cum  int64
	}
	byFn := make(map[string]*row)
	total := int64(0)

	rowFor := func(l *profile.Location) *row {
		fn := l.Line[0].Function
		key := fmt.Sprintf("%s %s:%d", fn.Name, shortFile(fn.Filename), l.Line[0].Line)
		r, ok := byFn[key]
		if !ok {
			r = &row{name: key}
			byFn[key] = r
		}
		return r
	}

	for _, s := range p.pprof.Sample {
		if len(s.Location) == 0 {
			continue
		}
		total += s.Value[0]
		rowFor(s.Location[0]).flat += s.Value[0]
		seen := make(map[*row]struct{}, len(s.Location))
		for _, l := range s.Location {
			r := rowFor(l)
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			r.cum += s.Value[0]
		}
	}

	rows := make([]*row, 0, len(byFn))
	for _, r := range byFn {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].flat != rows[j].flat {
			return rows[i].flat > rows[j].flat
		}
		return rows[i].name < rows[j].name
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Showing nodes accounting for %d, 100%% of %d total\n", total, total)
	fmt.Fprintf(&sb, "      flat  flat%%   sum%%        cum   cum%%\n")
	sum := int64(0)
	for _, r := range rows {
		if r.flat == 0 {
			continue
		}
		sum += r.flat
		fmt.Fprintf(&sb, "%10d %6.2f%% %6.2f%% %10d %6.2f%%  %s\n",
			r.flat, pct(r.flat, total), pct(sum, total), r.cum, pct(r.cum, total), r.name)
	}
	return sb.String()
}

func pct(v, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(v) / float64(total) * 100
}

func shortFile(f string) string {
	// keep the two trailing path elements, enough to situate the package
	parts := strings.Split(f, "/")
	if len(parts) <= 2 {
		return f
	}
	return strings.Join(parts[len(parts)-2:], "/")
}
