package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// Scenario is the YAML description of a simulation. Every section is
// optional, command line flags override it.
type Scenario struct {
	Run     RunSection     `yaml:"run"`
	Factory FactorySection `yaml:"factory"`
	Cache   CacheSection   `yaml:"cache"`
}

// RunSection configures the demo system.
type RunSection struct {
	Hz           int      `yaml:"hz"`
	TickHz       int      `yaml:"tick_hz"`
	Ticks        uint64   `yaml:"ticks"`
	Flash        string   `yaml:"flash"`
	FlashSize    Size     `yaml:"flash_size"`
	Lines        []string `yaml:"lines"`
	Keys         int      `yaml:"keys"`
	CacheObjects int      `yaml:"cache_objects"`
	FlushEvery   int      `yaml:"flush_every"`
	Jobs         int      `yaml:"jobs"`
	Core         Size     `yaml:"core"`
	Detach       bool     `yaml:"detach_on_release"`
}

// FactorySection is a script of factory operations.
type FactorySection struct {
	Core   Size        `yaml:"core"`
	Heap   Size        `yaml:"heap"`
	Detach bool        `yaml:"detach_on_release"`
	Ops    []FactoryOp `yaml:"ops"`
}

// FactoryOp is one factory operation: create, find or release of an
// object kind (buffer, semaphore, mailbox, fifo, pipe, object).
type FactoryOp struct {
	Op    string `yaml:"op"`
	Kind  string `yaml:"kind"`
	Name  string `yaml:"name"`
	Size  Size   `yaml:"size"`
	Count int    `yaml:"count"`
}

// CacheSection is a sequence of cache accesses.
type CacheSection struct {
	Objects int      `yaml:"objects"`
	Block   Size     `yaml:"block"`
	Keys    []uint32 `yaml:"keys"`
	Modify  bool     `yaml:"modify"`
}

// Size is a byte count written as a human readable size ("4KiB", "1m").
type Size int64

func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	var str string
	if err := node.Decode(&str); err != nil {
		return err
	}
	return s.Set(str)
}

// Set parses str, it makes Size a pflag.Value.
func (s *Size) Set(str string) error {
	n, err := units.RAMInBytes(str)
	if err != nil {
		return fmt.Errorf("size %q: %w", str, err)
	}
	if n < 0 {
		return fmt.Errorf("size %q: negative", str)
	}
	*s = Size(n)
	return nil
}

func (s *Size) String() string { return units.BytesSize(float64(*s)) }
func (s *Size) Type() string   { return "size" }

// loadScenario reads the scenario at path, an empty path returns the
// zero scenario.
func loadScenario(path string) (*Scenario, error) {
	sc := &Scenario{}
	if path == "" {
		return sc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(sc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}
