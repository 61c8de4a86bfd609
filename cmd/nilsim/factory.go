package main

import (
	"fmt"
	"strings"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"chibi/kernel"
	"chibi/oslib/factory"
	"chibi/oslib/heap"
	"chibi/oslib/memcore"
)

var (
	factoryCore   = Size(factory.DefaultCoreSize)
	factoryHeap   Size
	factoryDetach bool
)

func init() {
	cmd := newFactoryCmd()
	cmd.Flags().Var(&factoryCore, "core", "Core memory arena size")
	cmd.Flags().Var(&factoryHeap, "heap", "Fixed heap size (default: heap grows from the core)")
	cmd.Flags().BoolVar(&factoryDetach, "detach-on-release", false, "Unlink objects on every release")
	rootCmd.AddCommand(cmd)
}

func newFactoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "factory [op kind name [size|count]]...",
		Short: "Run a script of objects factory operations",
		Long: `The factory command runs create, find and release operations against an
objects factory and prints the outcome of each one. Operations come from the
scenario file or from the arguments, one "op kind name [size|count]" group per
operation, groups separated by "/".

Kinds: buffer, semaphore, mailbox, fifo, pipe, object. A fifo holds count
objects of size bytes; from the arguments both take the one number given.

Example:
  nilsim factory create semaphore sem1 1 / find semaphore sem1 / release semaphore sem1
  nilsim factory -s scenario.yaml --detach-on-release`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadScenario(scenario)
			if err != nil {
				return err
			}
			fs := sc.Factory
			if len(args) > 0 {
				if fs.Ops, err = parseOps(args); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("core") || fs.Core == 0 {
				fs.Core = factoryCore
			}
			if cmd.Flags().Changed("heap") {
				fs.Heap = factoryHeap
			}
			fs.Detach = fs.Detach || factoryDetach
			return runFactory(cmd, fs)
		},
	}
}

func parseOps(args []string) ([]FactoryOp, error) {
	var ops []FactoryOp
	for _, group := range splitGroups(args) {
		if len(group) < 3 || len(group) > 4 {
			return nil, fmt.Errorf("operation %q: want op kind name [size|count]", strings.Join(group, " "))
		}
		op := FactoryOp{Op: group[0], Kind: group[1], Name: group[2]}
		if len(group) == 4 {
			var n Size
			if err := n.Set(group[3]); err != nil {
				return nil, err
			}
			op.Size, op.Count = n, int(n)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func splitGroups(args []string) [][]string {
	var groups [][]string
	var cur []string
	for _, a := range args {
		if a == "/" {
			if len(cur) > 0 {
				groups = append(groups, cur)
			}
			cur = nil
			continue
		}
		cur = append(cur, a)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// factoryRun keeps the references obtained by the script, per name, so
// releases give back the most recent one.
type factoryRun struct {
	f    *factory.Factory
	refs map[string][]any
}

func runFactory(cmd *cobra.Command, fs FactorySection) error {
	log, err := newLogger(writerLogger{cmd})
	if err != nil {
		return err
	}
	sys, err := kernel.New(kernel.Config{Debug: debug, Logger: log})
	if err != nil {
		return err
	}
	defer sys.Stop()

	cfg := factory.Config{Core: memcore.New(sys, int(fs.Core)), DetachOnRelease: fs.Detach}
	if fs.Heap > 0 {
		cfg.Heap = heap.New(sys, make([]byte, fs.Heap))
	}
	r := &factoryRun{f: factory.New(sys, cfg), refs: map[string][]any{}}

	var failed int
	for _, op := range fs.Ops {
		res, err := r.apply(op)
		if err != nil {
			failed++
			res = "error: " + err.Error()
		}
		cmd.Printf("%-7s %-9s %-8s %s\n", op.Op, op.Kind, op.Name, res)
	}
	cmd.Printf("objects: %s\n", fmtFactory(r.f.Stats()))
	cmd.Printf("core free: %s, heap: %s\n", fmtBytes(r.f.Core().Status()), r.f.Heap())
	if failed > 0 {
		return fmt.Errorf("%d of %d operations failed", failed, len(fs.Ops))
	}
	return nil
}

func (r *factoryRun) apply(op FactoryOp) (string, error) {
	switch op.Op {
	case "create", "find":
		d, err := r.get(op)
		if err != nil {
			return "", err
		}
		r.refs[op.Name] = append(r.refs[op.Name], d)
		return fmt.Sprintf("ok refs=%d", refsOf(d)), nil
	case "release":
		stack := r.refs[op.Name]
		if len(stack) == 0 {
			return "", fmt.Errorf("no reference held on %q", op.Name)
		}
		d := stack[len(stack)-1]
		r.refs[op.Name] = stack[:len(stack)-1]
		refs, err := r.release(d)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ok refs=%d", refs), nil
	}
	return "", fmt.Errorf("unknown operation %q", op.Op)
}

func (r *factoryRun) get(op FactoryOp) (any, error) {
	f := r.f
	create := op.Op == "create"
	switch op.Kind {
	case "buffer":
		if create {
			return f.CreateBuffer(op.Name, int(op.Size))
		}
		return f.FindBuffer(op.Name)
	case "semaphore":
		if create {
			return f.CreateSemaphore(op.Name, int32(op.Count))
		}
		return f.FindSemaphore(op.Name)
	case "mailbox":
		if create {
			return f.CreateMailbox(op.Name, max(op.Count, 1))
		}
		return f.FindMailbox(op.Name)
	case "fifo":
		if create {
			return f.CreateObjectsFIFO(op.Name, max(int(op.Size), 1), max(op.Count, 1), memcore.DefaultAlign)
		}
		return f.FindObjectsFIFO(op.Name)
	case "pipe":
		if create {
			return f.CreatePipe(op.Name, max(int(op.Size), 1))
		}
		return f.FindPipe(op.Name)
	case "object":
		if create {
			return f.RegisterObject(op.Name, &struct{ name string }{op.Name})
		}
		return f.FindObject(op.Name)
	}
	return nil, fmt.Errorf("unknown kind %q", op.Kind)
}

func (r *factoryRun) release(d any) (uint32, error) {
	f := r.f
	switch d := d.(type) {
	case *factory.Buffer:
		return f.ReleaseBuffer(d)
	case *factory.Semaphore:
		return f.ReleaseSemaphore(d)
	case *factory.Mailbox:
		return f.ReleaseMailbox(d)
	case *factory.ObjectsFIFO:
		return f.ReleaseObjectsFIFO(d)
	case *factory.Pipe:
		return f.ReleasePipe(d)
	case *factory.RegisteredObject:
		return f.ReleaseObject(d)
	}
	return 0, fmt.Errorf("unexpected reference %T", d)
}

func refsOf(d any) uint32 {
	if r, ok := d.(interface{ Refs() uint32 }); ok {
		return r.Refs()
	}
	return 0
}

func fmtFactory(st factory.Stats) string {
	return fmt.Sprintf("%d objects, %d buffers, %d semaphores, %d mailboxes, %d pipes, %d fifos",
		st.Objects, st.Buffers, st.Semaphores, st.Mailboxes, st.Pipes, st.FIFOs)
}

func fmtBytes(n int) string { return units.BytesSize(float64(n)) }
