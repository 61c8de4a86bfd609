package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chibi/oslib/factory"
)

// testCmd returns a command capturing its output.
func testCmd() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	return cmd, &buf
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	path := writeFile(t, "sc.yaml", `
run:
  ticks: 100
  core: 8KiB
  lines: [SIG5HZ]
factory:
  ops:
    - {op: create, kind: buffer, name: buf1, size: 1k}
cache:
  objects: 2
  keys: [1, 2, 1]
`)
	sc, err := loadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), sc.Run.Ticks)
	assert.Equal(t, Size(8192), sc.Run.Core)
	assert.Equal(t, []string{"SIG5HZ"}, sc.Run.Lines)
	require.Len(t, sc.Factory.Ops, 1)
	assert.Equal(t, Size(1024), sc.Factory.Ops[0].Size)
	assert.Equal(t, []uint32{1, 2, 1}, sc.Cache.Keys)

	sc, err = loadScenario(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Zero(t, sc.Run.Ticks)

	_, err = loadScenario(writeFile(t, "bad.yaml", "run:\n  tick: 1\n"))
	assert.Error(t, err, "unknown field")
	_, err = loadScenario(writeFile(t, "size.yaml", "run:\n  core: lots\n"))
	assert.Error(t, err)
}

func TestParseOps(t *testing.T) {
	ops, err := parseOps([]string{"create", "semaphore", "sem1", "2", "/", "find", "semaphore", "sem1"})
	require.NoError(t, err)
	assert.Equal(t, []FactoryOp{
		{Op: "create", Kind: "semaphore", Name: "sem1", Size: 2, Count: 2},
		{Op: "find", Kind: "semaphore", Name: "sem1"},
	}, ops)

	_, err = parseOps([]string{"create", "semaphore"})
	assert.Error(t, err)
}

func TestFactoryScript(t *testing.T) {
	cmd, out := testCmd()
	err := runFactory(cmd, FactorySection{
		Core: factory.DefaultCoreSize,
		Ops: []FactoryOp{
			{Op: "create", Kind: "semaphore", Name: "sem1", Count: 1},
			{Op: "find", Kind: "semaphore", Name: "sem1"},
			{Op: "release", Kind: "semaphore", Name: "sem1"},
			{Op: "find", Kind: "semaphore", Name: "sem1"},
			{Op: "create", Kind: "buffer", Name: "buf1", Size: 128},
			{Op: "create", Kind: "pipe", Name: "p1", Size: 16},
			{Op: "create", Kind: "mailbox", Name: "mb1", Count: 4},
			{Op: "create", Kind: "object", Name: "obj1"},
			{Op: "create", Kind: "fifo", Name: "f1", Size: 24, Count: 4},
			{Op: "find", Kind: "fifo", Name: "f1"},
			{Op: "release", Kind: "fifo", Name: "f1"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "find    semaphore sem1     ok refs=2")
	assert.Contains(t, out.String(), "1 objects, 1 buffers, 1 semaphores, 1 mailboxes, 1 pipes, 1 fifos")
}

func TestFactoryScriptLegacyRelease(t *testing.T) {
	cmd, out := testCmd()
	err := runFactory(cmd, FactorySection{
		Core:   factory.DefaultCoreSize,
		Detach: true,
		Ops: []FactoryOp{
			{Op: "create", Kind: "semaphore", Name: "sem1", Count: 1},
			{Op: "find", Kind: "semaphore", Name: "sem1"},
			{Op: "release", Kind: "semaphore", Name: "sem1"},
			{Op: "find", Kind: "semaphore", Name: "sem1"},
		},
	})
	assert.EqualError(t, err, "1 of 4 operations failed")
	assert.Contains(t, out.String(), factory.ErrNotFound.Error())
}

func TestFactoryScriptErrors(t *testing.T) {
	cmd, out := testCmd()
	err := runFactory(cmd, FactorySection{
		Core: factory.DefaultCoreSize,
		Ops: []FactoryOp{
			{Op: "create", Kind: "semaphore", Name: "toolongname"},
			{Op: "release", Kind: "buffer", Name: "none"},
			{Op: "create", Kind: "widget", Name: "w"},
			{Op: "frob", Kind: "buffer", Name: "b"},
		},
	})
	assert.EqualError(t, err, "4 of 4 operations failed")
	assert.Contains(t, out.String(), factory.ErrNameTooLong.Error())
	assert.Contains(t, out.String(), `unknown kind "widget"`)
}

func TestCacheTrace(t *testing.T) {
	cmd, out := testCmd()
	err := runCache(cmd, CacheSection{Objects: 2, Block: 256, Keys: []uint32{1, 2, 1, 3, 2}, Modify: true})
	require.NoError(t, err)
	s := out.String()
	assert.Contains(t, s, "5 accesses, 1 hits")
	assert.Contains(t, s, "write 2,read 3", "key 2 is the LRU object when 3 is loaded")
	assert.Contains(t, s, "sync")

	assert.Error(t, runCache(cmd, CacheSection{Objects: 2, Block: 256}))
}

func TestParseKeys(t *testing.T) {
	keys, err := parseKeys("1, 2,3")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, keys)
	_, err = parseKeys("1,x")
	assert.Error(t, err)
}

func TestFlashCreateAndDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.flash")
	cmd, out := testCmd()
	require.NoError(t, createFlash(cmd, path, 2*4096))
	assert.Contains(t, out.String(), "8KiB erased")

	out.Reset()
	require.NoError(t, dumpFlash(cmd, path, 3))
	assert.Equal(t, "key 0   erased\nkey 1   erased\n", out.String())

	assert.Error(t, dumpFlash(cmd, filepath.Join(t.TempDir(), "missing"), 1))
}

func TestRunDemoPrintsStats(t *testing.T) {
	cmd, out := testCmd()
	cmd.SetContext(context.Background())
	err := runDemo(cmd, RunSection{Ticks: 50, Hz: 1000})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "systime:   50 ticks")
	assert.Contains(t, out.String(), "cache:")
}
