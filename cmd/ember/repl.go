package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chazu/ember/compiler"
	"github.com/chazu/ember/vm"
)

// session carries REPL state across inputs. Every input is compiled as a
// fresh program: top-level variables survive as globals and named functions
// survive as source appended to the next input.
type session struct {
	vm    *vm.VM
	lim   *limiter
	decls map[string]string
	order []string
}

func newSession(v *vm.VM, lim *limiter) *session {
	return &session{vm: v, lim: lim, decls: make(map[string]string)}
}

// runREPL starts an interactive read-eval-print loop
func runREPL(s *session, in io.Reader, out io.Writer) {
	fmt.Fprintln(out, "Ember REPL (type 'exit' to quit, ':help' for commands)")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	lineBuffer := strings.Builder{}

	for {
		if lineBuffer.Len() == 0 {
			fmt.Fprint(out, ">> ")
		} else {
			fmt.Fprint(out, ".. ")
		}

		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if lineBuffer.Len() == 0 {
			trimmed := strings.TrimSpace(line)
			if trimmed == "exit" || trimmed == "quit" {
				break
			}
			if strings.HasPrefix(trimmed, ":") {
				s.command(trimmed, out)
				continue
			}
		}

		if lineBuffer.Len() > 0 {
			lineBuffer.WriteString("\n")
		}
		lineBuffer.WriteString(line)

		input := lineBuffer.String()
		if strings.TrimSpace(input) == "" {
			lineBuffer.Reset()
			continue
		}
		// Keep reading while the input stops mid-construct.
		if incomplete(input) && line != "" {
			continue
		}
		lineBuffer.Reset()

		result, err := s.eval(input)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		if !result.IsUndefined() {
			fmt.Fprintln(out, vm.Inspect(result))
		}
	}

	fmt.Fprintln(out)
}

// incomplete reports whether src fails to parse only because it ends early.
func incomplete(src string) bool {
	_, err := compiler.Parse(src)
	var se *compiler.SyntaxError
	return errors.As(err, &se) && se.Msg == "unexpected end of input"
}

// command handles REPL meta-commands
func (s *session) command(cmd string, out io.Writer) {
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Fprintln(out, "REPL Commands:")
		fmt.Fprintln(out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(out, "  :globals          List global bindings")
		fmt.Fprintln(out, "  :functions        List functions kept between inputs")
		fmt.Fprintln(out, "  :dis              Disassemble the last program")
		fmt.Fprintln(out, "  :reset            Forget functions kept between inputs")
		fmt.Fprintln(out, "  exit, quit        Exit REPL")
	case ":globals":
		names := s.vm.Globals()
		sort.Strings(names)
		for _, name := range names {
			v, _ := s.vm.Global(name)
			fmt.Fprintf(out, "  %-16s %s\n", name, v.Kind())
		}
	case ":functions":
		for _, name := range s.order {
			fmt.Fprintf(out, "  %s\n", name)
		}
	case ":dis":
		if prog := s.vm.Program(); prog != nil {
			fmt.Fprint(out, vm.Disassemble(prog))
		} else {
			fmt.Fprintln(out, "nothing compiled yet")
		}
	case ":reset":
		s.decls = make(map[string]string)
		s.order = nil
		fmt.Fprintln(out, "functions cleared")
	default:
		fmt.Fprintf(out, "Unknown command: %s (type :help for commands)\n", cmd)
	}
}

// eval compiles input together with the kept function declarations, runs
// it and carries its top-level state over to the next input.
func (s *session) eval(input string) (vm.Value, error) {
	tree, err := compiler.Parse(input)
	if err != nil {
		return vm.Undefined, err
	}

	declared := make(map[string]bool)
	for _, stmt := range tree.Stmts {
		switch n := stmt.(type) {
		case *compiler.FunctionDecl:
			declared[n.Func.Name] = true
		case *compiler.VarDecl:
			for _, d := range n.Declarators {
				declared[d.Name] = true
			}
		}
	}

	// Kept declarations go after the input so error positions match what
	// was typed. Declarations are hoisted, so order does not matter.
	var src strings.Builder
	src.WriteString(input)
	for _, name := range s.order {
		if declared[name] {
			continue
		}
		src.WriteString("\n")
		src.WriteString(s.decls[name])
	}

	prog, err := compiler.CompileSource(src.String())
	if err != nil {
		return vm.Undefined, err
	}
	if err := s.vm.Load(prog); err != nil {
		return vm.Undefined, err
	}
	s.lim.reset()
	result, err := s.vm.Run()
	if err != nil {
		return vm.Undefined, err
	}

	for _, stmt := range tree.Stmts {
		if fd, ok := stmt.(*compiler.FunctionDecl); ok {
			sp := fd.Span()
			s.keep(fd.Func.Name, input[sp.Start.Offset:sp.End.Offset])
		}
	}
	for name := range declared {
		if _, isFunc := prog.Named[name]; isFunc {
			continue
		}
		s.forget(name)
		v, err := s.vm.GetVar(name)
		if err != nil {
			continue
		}
		// Function values point into this program and die with it.
		if v.Kind() == vm.KindFunc {
			log.Warningf("repl: %s holds a function expression and is not kept", name)
			continue
		}
		if err := s.vm.Register(name, v); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (s *session) keep(name, src string) {
	if _, ok := s.decls[name]; !ok {
		s.order = append(s.order, name)
	}
	s.decls[name] = src
}

func (s *session) forget(name string) {
	if _, ok := s.decls[name]; !ok {
		return
	}
	delete(s.decls, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
