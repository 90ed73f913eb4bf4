// Package storage mounts a littlefs filesystem on a block device,
// formatting the device when no valid filesystem is found.
package storage

import (
	"fmt"

	"tinygo.org/x/tinyfs"
	"tinygo.org/x/tinyfs/littlefs"
)

// Config carries the littlefs tuning handed over at mount time. The
// zero value matches the driver's reference deployment: one page of
// cache, a 128-byte lookahead window, and block cycles pinned to 1.
//
// BlockCycles 1 disables littlefs's own wear-leveling rotation and
// leaves endurance management to the chip. Raise it to let littlefs
// rotate metadata blocks.
type Config struct {
	CacheSize     uint32
	LookaheadSize uint32
	BlockCycles   int32
}

func (c *Config) setDefaults() {
	if c.CacheSize == 0 {
		c.CacheSize = 2048
	}
	if c.LookaheadSize == 0 {
		c.LookaheadSize = 128
	}
	if c.BlockCycles == 0 {
		c.BlockCycles = 1
	}
}

// filesystem is the slice of the littlefs surface the bootstrap needs.
type filesystem interface {
	Mount() error
	Format() error
}

// Mount configures littlefs over dev and mounts it. A failed mount is
// taken as "no filesystem yet": the device is formatted and mounted
// once more, and any error from that second attempt is returned.
func Mount(dev tinyfs.BlockDevice, cfg Config) (*littlefs.LFS, error) {
	cfg.setDefaults()
	fs := littlefs.New(dev)
	fs.Configure(&littlefs.Config{
		CacheSize:     cfg.CacheSize,
		LookaheadSize: cfg.LookaheadSize,
		BlockCycles:   cfg.BlockCycles,
	})
	if err := mountOrFormat(fs); err != nil {
		return nil, err
	}
	return fs, nil
}

func mountOrFormat(fs filesystem) error {
	if err := fs.Mount(); err == nil {
		return nil
	}
	if err := fs.Format(); err != nil {
		return fmt.Errorf("storage format: %w", err)
	}
	if err := fs.Mount(); err != nil {
		return fmt.Errorf("storage mount after format: %w", err)
	}
	return nil
}
