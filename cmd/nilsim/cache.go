package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"chibi/hal"
	"chibi/kernel"
	"chibi/oslib/objcache"
)

var (
	cacheObjects = 4
	cacheBlock   = Size(4096)
	cacheKeys    string
	cacheModify  bool
)

func init() {
	cmd := newCacheCmd()
	cmd.Flags().IntVar(&cacheObjects, "objects", cacheObjects, "Number of cached objects")
	cmd.Flags().Var(&cacheBlock, "block", "Object size, one flash erase block")
	cmd.Flags().StringVar(&cacheKeys, "keys", "", "Comma separated keys to access, in order")
	cmd.Flags().BoolVar(&cacheModify, "modify", false, "Mark every accessed object modified")
	rootCmd.AddCommand(cmd)
}

func newCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cache",
		Short: "Trace an objects cache access sequence",
		Long: `The cache command accesses keys of an objects cache backed by an in memory
flash and prints, for each access, whether it hit and which backing store
operations it caused.

Example:
  nilsim cache --objects 2 --keys 1,2,1,3,2
  nilsim cache --keys 1,2,3 --modify`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadScenario(scenario)
			if err != nil {
				return err
			}
			cs := sc.Cache
			if cmd.Flags().Changed("objects") || cs.Objects == 0 {
				cs.Objects = cacheObjects
			}
			if cmd.Flags().Changed("block") || cs.Block == 0 {
				cs.Block = cacheBlock
			}
			if cacheKeys != "" {
				if cs.Keys, err = parseKeys(cacheKeys); err != nil {
					return err
				}
			}
			cs.Modify = cs.Modify || cacheModify
			return runCache(cmd, cs)
		},
	}
}

func parseKeys(s string) ([]uint32, error) {
	var keys []uint32
	for _, f := range strings.Split(s, ",") {
		k, err := strconv.ParseUint(strings.TrimSpace(f), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("--keys: %w", err)
		}
		keys = append(keys, uint32(k))
	}
	return keys, nil
}

// tracingStore records the backing store operations of one access.
type tracingStore struct {
	*objcache.FlashStore
	ops []string
}

func (ts *tracingStore) read(obj *objcache.Object) error {
	ts.ops = append(ts.ops, fmt.Sprintf("read %d", obj.Key))
	return ts.Read(obj)
}

func (ts *tracingStore) write(obj *objcache.Object) error {
	ts.ops = append(ts.ops, fmt.Sprintf("write %d", obj.Key))
	return ts.Write(obj)
}

func runCache(cmd *cobra.Command, cs CacheSection) error {
	if len(cs.Keys) == 0 {
		return fmt.Errorf("no keys to access")
	}
	var maxKey uint32
	for _, k := range cs.Keys {
		maxKey = max(maxKey, k)
	}
	log, err := newLogger(writerLogger{cmd})
	if err != nil {
		return err
	}
	sys, err := kernel.New(kernel.Config{Debug: debug, Logger: log})
	if err != nil {
		return err
	}
	defer sys.Stop()

	blocks := maxKey + 1
	fs, err := objcache.NewFlashStore(hal.NewMemFlash(uint32(cs.Block)*blocks, uint32(cs.Block)), blocks)
	if err != nil {
		return err
	}
	ts := &tracingStore{FlashStore: fs}
	c, err := objcache.New(sys, objcache.Config{
		Objects:    cs.Objects,
		ObjectSize: fs.BlockSize(),
		Read:       ts.read,
		Write:      ts.write,
	})
	if err != nil {
		return err
	}

	var hits int
	for _, k := range cs.Keys {
		ts.ops = ts.ops[:0]
		obj := c.GetObject(0, k)
		state := "miss"
		if obj.Flags&objcache.FlagCacheHit != 0 {
			state = "hit"
			hits++
		}
		if cs.Modify {
			obj.Data[0]++
			c.MarkModified(obj)
		}
		flags := obj.Flags
		c.ReleaseObject(obj)
		cmd.Printf("get %-4d %-4s %-14s %s\n", k, state, strings.Join(ts.ops, ","), flags)
	}

	ts.ops = ts.ops[:0]
	if err := c.Sync(); err != nil {
		return err
	}
	if len(ts.ops) > 0 {
		cmd.Printf("sync     %s\n", strings.Join(ts.ops, ","))
	}
	cmd.Printf("%d accesses, %d hits\n", len(cs.Keys), hits)
	return nil
}
