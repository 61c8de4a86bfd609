package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chibi/hal"
)

var (
	flashSize = Size(256 * 1024)
	flashKeys = 8
)

func init() {
	cmd := &cobra.Command{
		Use:   "flash",
		Short: "Create and inspect flash images",
	}

	create := &cobra.Command{
		Use:   "create <image>",
		Short: "Create an erased flash image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return createFlash(cmd, args[0], uint32(flashSize))
		},
	}
	create.Flags().Var(&flashSize, "size", "Image size, a multiple of the erase block")

	dump := &cobra.Command{
		Use:   "dump <image>",
		Short: "Print the counters stored by the demo system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dumpFlash(cmd, args[0], flashKeys)
		},
	}
	dump.Flags().IntVar(&flashKeys, "keys", flashKeys, "Number of counters")

	cmd.AddCommand(create, dump)
	rootCmd.AddCommand(cmd)
}

type closer interface{ Close() error }

func createFlash(cmd *cobra.Command, path string, size uint32) error {
	f, err := hal.OpenFlash(path, size)
	if err != nil {
		return err
	}
	defer f.(closer).Close()
	if f.SizeBytes() != size {
		return fmt.Errorf("%s: existing image of %s", path, fmtBytes(int(f.SizeBytes())))
	}
	if err := f.Erase(0, size); err != nil {
		return err
	}
	cmd.Printf("%s: %s erased, %s blocks\n", path, fmtBytes(int(size)), fmtBytes(int(f.EraseBlockBytes())))
	return nil
}

func dumpFlash(cmd *cobra.Command, path string, keys int) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	f, err := hal.OpenFlash(path, 0)
	if err != nil {
		return err
	}
	defer f.(closer).Close()
	bs := f.EraseBlockBytes()
	b := make([]byte, 4)
	for k := 0; k < keys; k++ {
		off := uint32(k) * bs
		if off >= f.SizeBytes() {
			break
		}
		if _, err := f.ReadAt(b, off); err != nil {
			return err
		}
		v := binary.LittleEndian.Uint32(b)
		if v == ^uint32(0) {
			cmd.Printf("key %-3d erased\n", k)
			continue
		}
		cmd.Printf("key %-3d %d\n", k, v)
	}
	return nil
}
