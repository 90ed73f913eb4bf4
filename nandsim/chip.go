// Package nandsim models a W25N-family SPI NAND chip in memory.
//
// The simulator speaks the chip's wire protocol one chip-select frame at
// a time, so it plugs in wherever a real chip would: behind the driver
// in tests, or behind host tooling that builds flash images. It enforces
// the protocol rules a real chip merely assumes — write enable before
// program or erase, no commands while busy, programs only clearing bits —
// and fails loudly when a caller breaks them.
package nandsim

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	cmdWriteEnable    = 0x06
	cmdLoadProgram    = 0x02
	cmdProgramExecute = 0x10
	cmdReadStatus     = 0x0F
	cmdPageDataRead   = 0x13
	cmdReadData       = 0x03
	cmdBlockErase     = 0xD8
	cmdReadJEDEC      = 0x9F

	statusBusy = 0x01
)

// ErasedByte is the value every cell holds after an erase.
const ErasedByte = 0xFF

var ErrProtocol = errors.New("nandsim: protocol violation")

// Config sets the simulated geometry and timing. The zero value models
// a W25N01GV that is ready again by the first status poll.
type Config struct {
	PageSize      uint32
	PagesPerBlock uint32
	BlockCount    uint32

	// BusyPolls is how many status polls report busy after each
	// program, erase, or page read. Negative keeps the chip busy
	// forever, for exercising ready-wait bounds.
	BusyPolls int

	// JEDECID overrides the identifier returned for read-JEDEC.
	// Zero selects the W25N01GV id (EF AA 21).
	JEDECID [3]byte
}

// Chip is one simulated SPI NAND chip. It implements the transport
// contract directly: every Tx call is one chip-select-framed command.
type Chip struct {
	mu  sync.Mutex
	cfg Config

	mem []byte // flash array, ErasedByte when erased
	buf []byte // internal page buffer shared by load and read

	wel       bool
	busy      int // remaining busy polls; negative means stuck
	transfers int
}

// New returns an erased chip.
func New(cfg Config) *Chip {
	if cfg.PageSize == 0 {
		cfg.PageSize = 2048
	}
	if cfg.PagesPerBlock == 0 {
		cfg.PagesPerBlock = 64
	}
	if cfg.BlockCount == 0 {
		cfg.BlockCount = 1024
	}
	if cfg.JEDECID == ([3]byte{}) {
		cfg.JEDECID = [3]byte{0xEF, 0xAA, 0x21}
	}
	c := &Chip{
		cfg: cfg,
		mem: make([]byte, int(cfg.PageSize)*int(cfg.PagesPerBlock)*int(cfg.BlockCount)),
		buf: make([]byte, cfg.PageSize),
	}
	for i := range c.mem {
		c.mem[i] = ErasedByte
	}
	return c
}

// Transfers reports how many chip-select frames the chip has seen.
func (c *Chip) Transfers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transfers
}

// WriteTo dumps the raw flash array, page by page, in address order.
func (c *Chip) WriteTo(w io.Writer) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := w.Write(c.mem)
	return int64(n), err
}

// Tx decodes and executes one command frame. w holds the transmitted
// bytes; responses are written into r when it is long enough, matching
// full-duplex SPI where tx and rx advance in lockstep.
func (c *Chip) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transfers++
	if len(w) == 0 {
		return fmt.Errorf("%w: empty frame", ErrProtocol)
	}
	op := w[0]

	if c.busy != 0 && op != cmdReadStatus {
		return fmt.Errorf("%w: command %#02x while busy", ErrProtocol, op)
	}

	switch op {
	case cmdWriteEnable:
		c.wel = true
		return nil

	case cmdReadStatus:
		if len(w) < 3 {
			return fmt.Errorf("%w: short read-status frame (%d bytes)", ErrProtocol, len(w))
		}
		var status byte
		if c.busy != 0 {
			status |= statusBusy
			if c.busy > 0 {
				c.busy--
			}
		}
		// The register repeats on the wire from the third byte on.
		for i := 2; i < len(r); i++ {
			r[i] = status
		}
		return nil

	case cmdBlockErase:
		if len(w) != 4 {
			return fmt.Errorf("%w: block-erase frame is %d bytes", ErrProtocol, len(w))
		}
		if !c.wel {
			return fmt.Errorf("%w: block erase without write enable", ErrProtocol)
		}
		c.wel = false
		row := uint32(w[1])<<16 | uint32(w[2])<<8 | uint32(w[3])
		block := row / c.cfg.PagesPerBlock
		if block >= c.cfg.BlockCount {
			return fmt.Errorf("%w: erase row %d beyond chip", ErrProtocol, row)
		}
		blockBytes := int(c.cfg.PageSize) * int(c.cfg.PagesPerBlock)
		start := int(block) * blockBytes
		for i := start; i < start+blockBytes; i++ {
			c.mem[i] = ErasedByte
		}
		c.busy = c.cfg.BusyPolls
		return nil

	case cmdLoadProgram:
		if len(w) < 4 {
			return fmt.Errorf("%w: short load frame (%d bytes)", ErrProtocol, len(w))
		}
		column := uint32(w[1])<<8 | uint32(w[2])
		data := w[4:]
		if uint64(column)+uint64(len(data)) > uint64(c.cfg.PageSize) {
			return fmt.Errorf("%w: load column %d size %d beyond page", ErrProtocol, column, len(data))
		}
		// Load resets the page buffer; unloaded bytes stay erased.
		for i := range c.buf {
			c.buf[i] = ErasedByte
		}
		copy(c.buf[column:], data)
		return nil

	case cmdProgramExecute:
		if len(w) != 4 {
			return fmt.Errorf("%w: program-execute frame is %d bytes", ErrProtocol, len(w))
		}
		if !c.wel {
			return fmt.Errorf("%w: program execute without write enable", ErrProtocol)
		}
		c.wel = false
		page := uint32(w[1])<<16 | uint32(w[2])<<8 | uint32(w[3])
		if page >= c.cfg.PagesPerBlock*c.cfg.BlockCount {
			return fmt.Errorf("%w: program page %d beyond chip", ErrProtocol, page)
		}
		start := int(page) * int(c.cfg.PageSize)
		// Programming can only clear bits; set bits survive only
		// where the buffer keeps them set.
		for i, b := range c.buf {
			c.mem[start+i] &= b
		}
		c.busy = c.cfg.BusyPolls
		return nil

	case cmdPageDataRead:
		if len(w) != 4 {
			return fmt.Errorf("%w: page-data-read frame is %d bytes", ErrProtocol, len(w))
		}
		page := uint32(w[1])<<16 | uint32(w[2])<<8 | uint32(w[3])
		if page >= c.cfg.PagesPerBlock*c.cfg.BlockCount {
			return fmt.Errorf("%w: read page %d beyond chip", ErrProtocol, page)
		}
		start := int(page) * int(c.cfg.PageSize)
		copy(c.buf, c.mem[start:start+int(c.cfg.PageSize)])
		c.busy = c.cfg.BusyPolls
		return nil

	case cmdReadData:
		if len(w) < 4 {
			return fmt.Errorf("%w: short read-data frame (%d bytes)", ErrProtocol, len(w))
		}
		if len(r) != len(w) {
			return fmt.Errorf("%w: read-data needs a full-length receive buffer", ErrProtocol)
		}
		column := uint32(w[1])<<8 | uint32(w[2])
		count := len(w) - 4
		if uint64(column)+uint64(count) > uint64(c.cfg.PageSize) {
			return fmt.Errorf("%w: read column %d size %d beyond page", ErrProtocol, column, count)
		}
		copy(r[4:], c.buf[column:int(column)+count])
		return nil

	case cmdReadJEDEC:
		if len(r) < 5 {
			return fmt.Errorf("%w: read-JEDEC needs a 5-byte frame", ErrProtocol)
		}
		copy(r[2:5], c.cfg.JEDECID[:])
		return nil

	default:
		return fmt.Errorf("%w: unknown command %#02x", ErrProtocol, op)
	}
}
