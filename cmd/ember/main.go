// Ember CLI - compile and run scripts, inspect bytecode, serve the LSP
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/ember/cache"
	"github.com/chazu/ember/compiler"
	"github.com/chazu/ember/manifest"
	"github.com/chazu/ember/server"
	"github.com/chazu/ember/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("ember.cli")

// ErrStepLimit and ErrTimeout abort scripts that exceed the run limits.
var (
	ErrStepLimit = errors.New("step limit exceeded")
	ErrTimeout   = errors.New("execution timed out")
)

type options struct {
	interactive bool
	dumpAST     bool
	disassemble bool
	output      string
	call        string
	maxSteps    int
	timeout     time.Duration
	verbosity   int
	serveLSP    bool
	noCache     bool
	profile     bool
}

func main() {
	var opts options
	flag.BoolVar(&opts.interactive, "i", false, "Start interactive REPL")
	flag.BoolVar(&opts.dumpAST, "ast", false, "Print the syntax tree and exit")
	flag.BoolVar(&opts.disassemble, "d", false, "Print the bytecode listing and exit")
	flag.StringVar(&opts.output, "o", "", "Write a program image (.embc) and exit")
	flag.StringVar(&opts.call, "call", "", "Call a top-level function after the run; remaining args are its arguments")
	flag.IntVar(&opts.maxSteps, "max-steps", 0, "Abort after this many instructions (0 = unlimited)")
	flag.DurationVar(&opts.timeout, "timeout", 0, "Abort after this long (0 = unlimited)")
	flag.IntVar(&opts.verbosity, "v", -1, "Log verbosity (0-4)")
	flag.BoolVar(&opts.serveLSP, "serve-lsp", false, "Start the language server on stdio")
	flag.BoolVar(&opts.profile, "profile", false, "Print the hottest functions to stderr after the run")
	flag.BoolVar(&opts.noCache, "no-cache", false, "Compile without the image cache configured in ember.toml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ember [options] [file.js|file.embc] [call args...]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles and runs a script. Settings are read from the nearest ember.toml.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ember -i                        # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  ember app.js                    # Run app.js, print its completion value\n")
		fmt.Fprintf(os.Stderr, "  ember -call fact app.js 10      # Run app.js, then fact(10)\n")
		fmt.Fprintf(os.Stderr, "  ember -o app.embc app.js        # Compile to an image\n")
		fmt.Fprintf(os.Stderr, "  ember -d app.embc               # Disassemble an image\n")
		fmt.Fprintf(os.Stderr, "  ember -serve-lsp                # Language server for editors\n")
	}
	flag.Parse()

	cwd, err := os.Getwd()
	if err != nil {
		fatal(err)
	}
	m, err := manifest.FindAndLoad(cwd)
	if err != nil {
		fatal(err)
	}
	applyManifest(&opts, m)
	configureLogging(opts.verbosity, m)

	vmInst := vm.New()
	if m != nil {
		log.Infof("using manifest %s", filepath.Join(m.Dir, manifest.FileName))
		if err := registerGlobals(vmInst, m.Globals); err != nil {
			fatal(err)
		}
	}
	log.Debugf("vm %s created", vmInst.ID())

	if opts.serveLSP {
		if err := server.NewLSP(vmInst).Run(); err != nil {
			fatal(fmt.Errorf("language server: %w", err))
		}
		return
	}

	args := flag.Args()
	path := ""
	if len(args) > 0 {
		path, args = args[0], args[1:]
	} else if m != nil {
		path = m.EntryPath()
	}

	if path == "" || opts.interactive {
		runREPL(newSession(vmInst, installLimits(vmInst, opts)), os.Stdin, os.Stdout)
		return
	}

	var c *cache.Cache
	if m != nil && m.CachePath() != "" && !opts.noCache {
		c, err = cache.Open(m.CachePath())
		if err != nil {
			fatal(err)
		}
		defer c.Close()
		log.Debugf("image cache %s", c.Path())
	}

	if err := runFile(vmInst, c, path, args, opts); err != nil {
		c.Close()
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// applyManifest fills options the command line left at their defaults.
func applyManifest(opts *options, m *manifest.Manifest) {
	if m == nil {
		return
	}
	if opts.maxSteps == 0 {
		opts.maxSteps = m.Run.MaxSteps
	}
	if opts.timeout == 0 {
		opts.timeout = m.TimeoutDuration()
	}
	if opts.verbosity < 0 {
		opts.verbosity = m.Log.Verbosity
	}
}

func configureLogging(verbosity int, m *manifest.Manifest) {
	var path *string
	if m != nil && m.LogPath() != "" {
		p := m.LogPath()
		path = &p
	}
	commonlog.Configure(max(verbosity, 0), path)
}

func registerGlobals(v *vm.VM, globals map[string]any) error {
	for name, x := range globals {
		if err := v.Register(name, x); err != nil {
			return fmt.Errorf("manifest global %s: %w", name, err)
		}
	}
	return nil
}

// limiter enforces the step and time limits through the VM step hook.
// The deadline is checked every 1024 instructions.
type limiter struct {
	maxSteps int
	timeout  time.Duration
	steps    int
	deadline time.Time
}

// installLimits sets a step hook on v when opts carry a limit. The returned
// limiter is nil when there is nothing to enforce.
func installLimits(v *vm.VM, opts options) *limiter {
	if opts.maxSteps <= 0 && opts.timeout <= 0 {
		return nil
	}
	l := &limiter{maxSteps: opts.maxSteps, timeout: opts.timeout}
	l.reset()
	v.SetStepHook(l.step)
	return l
}

// reset starts a new budget. A nil limiter is a no-op.
func (l *limiter) reset() {
	if l == nil {
		return
	}
	l.steps = 0
	if l.timeout > 0 {
		l.deadline = time.Now().Add(l.timeout)
	}
}

func (l *limiter) step(fn *vm.Function, ip int) error {
	l.steps++
	if l.maxSteps > 0 && l.steps > l.maxSteps {
		return fmt.Errorf("%w (%d) in %s", ErrStepLimit, l.maxSteps, fn.DisplayName())
	}
	if l.timeout > 0 && l.steps%1024 == 0 && time.Now().After(l.deadline) {
		return fmt.Errorf("%w after %s", ErrTimeout, l.timeout)
	}
	return nil
}

// load reads a script or a program image. Scripts go through the image
// cache when c is not nil.
func load(path string, c *cache.Cache) (*vm.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".embc") {
		prog, err := vm.DecodeProgram(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return prog, nil
	}
	var prog *vm.Program
	if c != nil {
		prog, err = c.Compile(string(data))
	} else {
		prog, err = compiler.CompileSource(string(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

func runFile(v *vm.VM, c *cache.Cache, path string, args []string, opts options) error {
	if opts.dumpAST {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tree, err := compiler.Parse(string(data))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for _, s := range tree.Stmts {
			fmt.Println(compiler.Sexpr(s))
		}
		return nil
	}

	prog, err := load(path, c)
	if err != nil {
		return err
	}
	if opts.disassemble {
		fmt.Print(vm.Disassemble(prog))
		return nil
	}
	if opts.output != "" {
		data, err := vm.EncodeProgram(prog)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.output, data, 0644); err != nil {
			return err
		}
		log.Infof("wrote %s (%d bytes)", opts.output, len(data))
		return nil
	}

	lim := installLimits(v, opts)
	var prof *vm.Profiler
	if opts.profile {
		prof = vm.NewProfiler()
		var next vm.StepHook
		if lim != nil {
			next = lim.step
		}
		v.SetStepHook(prof.Hook(next))
		defer prof.Report(os.Stderr, 10)
	}

	if err := v.Load(prog); err != nil {
		return err
	}
	result, err := v.Run()
	if err != nil {
		return err
	}
	if opts.call == "" {
		if !result.IsUndefined() {
			fmt.Println(vm.Inspect(result))
		}
		return nil
	}

	callArgs := make([]vm.Value, len(args))
	for i, a := range args {
		callArgs[i] = parseArg(a)
	}
	lim.reset()
	result, err = v.Call(opts.call, callArgs...)
	if err != nil {
		return err
	}
	fmt.Println(vm.Inspect(result))
	return nil
}

// parseArg converts a command-line argument to a number, boolean, null or
// string value.
func parseArg(s string) vm.Value {
	switch s {
	case "true":
		return vm.Bool(true)
	case "false":
		return vm.Bool(false)
	case "null":
		return vm.Null()
	case "undefined":
		return vm.Undefined
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return vm.Int(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return vm.Float(f)
	}
	return vm.String(s)
}
