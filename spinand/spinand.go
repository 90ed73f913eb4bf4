// Package spinand drives Winbond W25N-family SPI NAND flash chips and
// exposes them through the tinyfs block-device contract.
//
// The chip is page-addressable and block-erasable: reads and programs
// move data through an on-chip page buffer, erases clear a whole block
// to 0xFF. Program and erase run asynchronously inside the chip, so the
// driver polls the status register until the busy bit clears before
// reporting completion. The caller-visible operations never return while
// the chip is still working, which is why Sync is a no-op.
package spinand

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"nandfs/hal"
)

var (
	// ErrInvalidAddress indicates a block, offset, or size outside the
	// configured geometry, or a region crossing a page boundary.
	ErrInvalidAddress = errors.New("spinand: invalid address")
	// ErrReadyTimeout indicates the chip never cleared its busy bit
	// within the configured budget.
	ErrReadyTimeout = errors.New("spinand: ready timeout")
)

// writeBlockSize is the program granularity reported to the filesystem
// library. It is deliberately smaller than the physical page so littlefs
// can issue sub-page programs against the chip's partial-page support.
const writeBlockSize = 256

// Config fixes the chip geometry and the ready-wait budget. Geometry is
// a property of the chip model and never changes at runtime; the zero
// value selects the W25N01GV.
type Config struct {
	PageSize      uint32 // bytes per page (default 2048)
	PagesPerBlock uint32 // pages per erase block (default 64)
	BlockCount    uint32 // erase blocks on the chip (default 1024)

	PollInterval time.Duration // status poll spacing (default 1ms)
	ReadyTimeout time.Duration // busy-wait budget (default 1s)
}

func (c *Config) setDefaults() {
	if c.PageSize == 0 {
		c.PageSize = 2048
	}
	if c.PagesPerBlock == 0 {
		c.PagesPerBlock = 64
	}
	if c.BlockCount == 0 {
		c.BlockCount = 1024
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Millisecond
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = time.Second
	}
}

// Device is a single SPI NAND chip behind a Transport.
//
// The chip has no internal concurrency: one command sequence may be in
// flight at a time, and load/execute and poll loops must not interleave
// with other commands. A single mutex is therefore held for the full
// duration of every operation.
type Device struct {
	mu  sync.Mutex
	tr  hal.Transport
	cfg Config

	blockSize uint32

	// One frame of scratch each way, sized command header plus a full
	// page, allocated once so per-call work never heap-allocates.
	tx []byte
	rx []byte
}

// New validates cfg, applies W25N01GV defaults, and returns a Device
// over tr. It does not touch the chip.
func New(tr hal.Transport, cfg Config) (*Device, error) {
	if tr == nil {
		return nil, errors.New("spinand: nil transport")
	}
	cfg.setDefaults()
	if cfg.PageSize%writeBlockSize != 0 {
		return nil, fmt.Errorf("spinand: page size %d not a multiple of %d", cfg.PageSize, writeBlockSize)
	}
	return &Device{
		tr:        tr,
		cfg:       cfg,
		blockSize: cfg.PageSize * cfg.PagesPerBlock,
		tx:        make([]byte, frameHeaderLen+cfg.PageSize),
		rx:        make([]byte, frameHeaderLen+cfg.PageSize),
	}, nil
}

// translate maps a logical (block, offset) address to the chip's
// physical (page, column) address. It is a pure function of the address
// and the geometry.
func (d *Device) translate(block, offset uint32) (page, column uint32) {
	return block*d.cfg.PagesPerBlock + offset/d.cfg.PageSize, offset % d.cfg.PageSize
}

// checkRegion rejects geometry violations before any command reaches
// the chip: blocks beyond the chip, regions leaving the erase block,
// and regions crossing a page boundary from their start column.
func (d *Device) checkRegion(block, offset uint32, size int) error {
	if size < 0 {
		return ErrInvalidAddress
	}
	if block >= d.cfg.BlockCount {
		return ErrInvalidAddress
	}
	if offset >= d.blockSize || uint64(offset)+uint64(size) > uint64(d.blockSize) {
		return ErrInvalidAddress
	}
	if column := offset % d.cfg.PageSize; uint64(column)+uint64(size) > uint64(d.cfg.PageSize) {
		return ErrInvalidAddress
	}
	return nil
}
