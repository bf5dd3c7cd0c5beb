package vm

import (
	"fmt"
	"io"
	"sort"
)

// FunctionProfile holds profiling data for a single function.
type FunctionProfile struct {
	Function     *Function
	Invocations  uint64 // entries at instruction 0
	Instructions uint64
}

// Profiler counts executed instructions and invocations per function. It
// runs as a step hook, so it sees every instruction the VM executes.
type Profiler struct {
	profiles map[*Function]*FunctionProfile
	opcodes  map[Opcode]uint64
	total    uint64

	// last instruction seen, to tell a call from a jump back to 0
	lastFn *Function
	lastOp Opcode
}

// NewProfiler creates an empty profiler.
func NewProfiler() *Profiler {
	return &Profiler{
		profiles: make(map[*Function]*FunctionProfile),
		opcodes:  make(map[Opcode]uint64),
	}
}

// Hook returns a step hook that records each instruction and then calls
// next, if any.
func (p *Profiler) Hook(next StepHook) StepHook {
	return func(fn *Function, ip int) error {
		p.record(fn, ip)
		if next != nil {
			return next(fn, ip)
		}
		return nil
	}
}

func (p *Profiler) record(fn *Function, ip int) {
	prof, ok := p.profiles[fn]
	if !ok {
		prof = &FunctionProfile{Function: fn}
		p.profiles[fn] = prof
	}
	if ip == 0 && !(p.lastFn == fn && p.lastOp.IsJump()) {
		prof.Invocations++
	}
	prof.Instructions++
	p.lastFn = fn
	if ip < len(fn.Code) {
		p.lastOp = fn.Code[ip].Op
		p.opcodes[p.lastOp]++
	}
	p.total++
}

// Total returns the number of instructions recorded.
func (p *Profiler) Total() uint64 {
	return p.total
}

// Profile returns the data recorded for fn, or nil.
func (p *Profiler) Profile(fn *Function) *FunctionProfile {
	return p.profiles[fn]
}

// OpcodeCount returns how often op was executed.
func (p *Profiler) OpcodeCount(op Opcode) uint64 {
	return p.opcodes[op]
}

// TopFunctions returns up to n profiles ordered by instruction count, ties
// broken by function index.
func (p *Profiler) TopFunctions(n int) []*FunctionProfile {
	out := make([]*FunctionProfile, 0, len(p.profiles))
	for _, prof := range p.profiles {
		out = append(out, prof)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Instructions != out[j].Instructions {
			return out[i].Instructions > out[j].Instructions
		}
		return out[i].Function.Index < out[j].Function.Index
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Report writes the n hottest functions to w.
func (p *Profiler) Report(w io.Writer, n int) {
	fmt.Fprintf(w, "%d instructions\n", p.total)
	for _, prof := range p.TopFunctions(n) {
		fmt.Fprintf(w, "  %-20s %10d instrs %8d calls\n",
			prof.Function.DisplayName(), prof.Instructions, prof.Invocations)
	}
}

// Reset discards all recorded data.
func (p *Profiler) Reset() {
	clear(p.profiles)
	clear(p.opcodes)
	p.total = 0
	p.lastFn = nil
}
