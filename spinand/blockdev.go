package spinand

import (
	"fmt"

	"tinygo.org/x/tinyfs"
)

// Device satisfies the block-device contract littlefs operates on.
var _ tinyfs.BlockDevice = (*Device)(nil)

// ReadBlock reads len(p) bytes at offset within the given erase block.
// The region must stay inside one page from its start column; the
// filesystem library reads in page-aligned chunks, so the driver does
// not auto-split here.
func (d *Device) ReadBlock(block, offset uint32, p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkRegion(block, offset, len(p)); err != nil {
		return fmt.Errorf("spinand read block %d offset %d size %d: %w", block, offset, len(p), err)
	}
	if len(p) == 0 {
		return nil
	}
	page, column := d.translate(block, offset)
	if err := d.pageDataRead(page); err != nil {
		return fmt.Errorf("spinand read page %d: %w", page, err)
	}
	if err := d.readData(column, p); err != nil {
		return fmt.Errorf("spinand read page %d column %d: %w", page, column, err)
	}
	return nil
}

// ProgramBlock writes p at offset within the given erase block. The
// target region must have been erased since it was last programmed;
// NAND cannot flip programmed bits back, and the filesystem library's
// allocation policy is what guarantees the precondition.
func (d *Device) ProgramBlock(block, offset uint32, p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkRegion(block, offset, len(p)); err != nil {
		return fmt.Errorf("spinand program block %d offset %d size %d: %w", block, offset, len(p), err)
	}
	if len(p) == 0 {
		return nil
	}
	page, column := d.translate(block, offset)
	if err := d.loadProgramData(column, p); err != nil {
		return fmt.Errorf("spinand load page %d column %d: %w", page, column, err)
	}
	if err := d.programExecute(page); err != nil {
		return fmt.Errorf("spinand program page %d: %w", page, err)
	}
	return nil
}

// EraseBlock erases one whole block to 0xFF.
func (d *Device) EraseBlock(block uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if block >= d.cfg.BlockCount {
		return fmt.Errorf("spinand erase block %d of %d: %w", block, d.cfg.BlockCount, ErrInvalidAddress)
	}
	if err := d.blockErase(block); err != nil {
		return fmt.Errorf("spinand erase block %d: %w", block, err)
	}
	return nil
}

// Sync is a no-op: every program and erase already blocks until the
// chip reports ready, so there is nothing buffered to flush.
func (d *Device) Sync() error { return nil }

// Size returns the chip capacity in bytes.
func (d *Device) Size() int64 {
	return int64(d.cfg.BlockCount) * int64(d.blockSize)
}

// WriteBlockSize returns the program granularity advertised to the
// filesystem library.
func (d *Device) WriteBlockSize() int64 { return writeBlockSize }

// EraseBlockSize returns the size of the smallest erasable unit.
func (d *Device) EraseBlockSize() int64 { return int64(d.blockSize) }

// EraseBlocks erases n consecutive blocks starting at block start.
func (d *Device) EraseBlocks(start, n int64) error {
	if start < 0 || n < 0 || start+n > int64(d.cfg.BlockCount) {
		return fmt.Errorf("spinand erase blocks %d+%d: %w", start, n, ErrInvalidAddress)
	}
	for i := int64(0); i < n; i++ {
		if err := d.EraseBlock(uint32(start + i)); err != nil {
			return err
		}
	}
	return nil
}

// ReadAt reads len(p) bytes from the flat byte offset off, splitting
// the request at page boundaries before issuing per-page command
// sequences.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	return d.chunked(p, off, "read", d.ReadBlock)
}

// WriteAt programs len(p) bytes at the flat byte offset off, split at
// page boundaries like ReadAt. The erased-precondition of ProgramBlock
// applies to the whole region.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	return d.chunked(p, off, "write", d.ProgramBlock)
}

func (d *Device) chunked(p []byte, off int64, op string, f func(block, offset uint32, p []byte) error) (int, error) {
	if off < 0 || off+int64(len(p)) > d.Size() {
		return 0, fmt.Errorf("spinand %s at %d size %d: %w", op, off, len(p), ErrInvalidAddress)
	}
	done := 0
	for done < len(p) {
		block := uint32(off / int64(d.blockSize))
		offset := uint32(off % int64(d.blockSize))
		chunk := len(p) - done
		if remain := int(d.cfg.PageSize - offset%d.cfg.PageSize); chunk > remain {
			chunk = remain
		}
		if err := f(block, offset, p[done:done+chunk]); err != nil {
			return done, err
		}
		done += chunk
		off += int64(chunk)
	}
	return done, nil
}
