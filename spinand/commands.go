package spinand

import (
	"time"
)

// Command set of the W25N family. All multi-byte addresses go out high
// byte first.
const (
	cmdWriteEnable    = 0x06
	cmdLoadProgram    = 0x02
	cmdProgramExecute = 0x10
	cmdReadStatus     = 0x0F
	cmdPageDataRead   = 0x13
	cmdReadData       = 0x03
	cmdBlockErase     = 0xD8
	cmdReadJEDEC      = 0x9F
)

const (
	statusRegAddr = 0xC0 // status register address byte for read-status
	statusBusy    = 0x01 // bit 0: program/erase in progress
)

// frameHeaderLen is the opcode plus address bytes in front of read-data
// and load-program-data payloads.
const frameHeaderLen = 4

// Each primitive below issues exactly one chip-select-framed transfer
// and assumes d.mu is held.

// writeEnable sets the chip's write-enable latch. The chip clears the
// latch automatically after every program or erase, so this must
// immediately precede each one.
func (d *Device) writeEnable() error {
	d.tx[0] = cmdWriteEnable
	return d.tr.Tx(d.tx[:1], nil)
}

// readStatus fetches the status register. The chip repeats the register
// contents for as long as it is clocked after the command and address
// bytes, so the last byte of the frame carries the response.
func (d *Device) readStatus() (byte, error) {
	tx := d.tx[:4]
	tx[0] = cmdReadStatus
	tx[1] = statusRegAddr
	tx[2] = 0
	tx[3] = 0
	rx := d.rx[:4]
	if err := d.tr.Tx(tx, rx); err != nil {
		return 0, err
	}
	return rx[3], nil
}

// waitReady polls the status register until the busy bit clears,
// sleeping PollInterval between polls. It gives up after ReadyTimeout;
// an unresponsive chip must not hang the caller forever.
func (d *Device) waitReady() error {
	deadline := time.Now().Add(d.cfg.ReadyTimeout)
	for {
		status, err := d.readStatus()
		if err != nil {
			return err
		}
		if status&statusBusy == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrReadyTimeout
		}
		time.Sleep(d.cfg.PollInterval)
	}
}

// blockErase erases one block. The row address is the block's first
// page number.
func (d *Device) blockErase(block uint32) error {
	if err := d.writeEnable(); err != nil {
		return err
	}
	row := block * d.cfg.PagesPerBlock
	tx := d.tx[:4]
	tx[0] = cmdBlockErase
	tx[1] = byte(row >> 16)
	tx[2] = byte(row >> 8)
	tx[3] = byte(row)
	if err := d.tr.Tx(tx, nil); err != nil {
		return err
	}
	return d.waitReady()
}

// loadProgramData stages data into the chip's page buffer starting at
// column. Nothing reaches the flash array until programExecute. A
// zero-length load skips the transfer.
func (d *Device) loadProgramData(column uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	tx := d.tx[:frameHeaderLen+len(data)]
	tx[0] = cmdLoadProgram
	tx[1] = byte(column >> 8)
	tx[2] = byte(column)
	tx[3] = 0
	copy(tx[frameHeaderLen:], data)
	return d.tr.Tx(tx, nil)
}

// programExecute commits the page buffer to the given physical page.
// The buffer must have been staged with loadProgramData first; callers
// guarantee the ordering.
func (d *Device) programExecute(page uint32) error {
	if err := d.writeEnable(); err != nil {
		return err
	}
	tx := d.tx[:4]
	tx[0] = cmdProgramExecute
	tx[1] = byte(page >> 16)
	tx[2] = byte(page >> 8)
	tx[3] = byte(page)
	if err := d.tr.Tx(tx, nil); err != nil {
		return err
	}
	return d.waitReady()
}

// pageDataRead loads a physical page into the chip's read buffer. The
// data itself is fetched afterwards with readData.
func (d *Device) pageDataRead(page uint32) error {
	tx := d.tx[:4]
	tx[0] = cmdPageDataRead
	tx[1] = byte(page >> 16)
	tx[2] = byte(page >> 8)
	tx[3] = byte(page)
	if err := d.tr.Tx(tx, nil); err != nil {
		return err
	}
	return d.waitReady()
}

// readData copies len(p) bytes out of the chip's read buffer starting
// at column. A zero-length read skips the transfer.
func (d *Device) readData(column uint32, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n := frameHeaderLen + len(p)
	tx := d.tx[:n]
	tx[0] = cmdReadData
	tx[1] = byte(column >> 8)
	tx[2] = byte(column)
	tx[3] = 0
	clear(tx[frameHeaderLen:])
	rx := d.rx[:n]
	if err := d.tr.Tx(tx, rx); err != nil {
		return err
	}
	copy(p, rx[frameHeaderLen:])
	return nil
}

// JEDECID reads the chip's three-byte JEDEC identifier (manufacturer,
// device high, device low; EF AA 21 for the W25N01GV). Useful as a
// presence check before mounting anything.
func (d *Device) JEDECID() ([3]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx := d.tx[:5]
	tx[0] = cmdReadJEDEC
	clear(tx[1:])
	rx := d.rx[:5]
	var id [3]byte
	if err := d.tr.Tx(tx, rx); err != nil {
		return id, err
	}
	copy(id[:], rx[2:5])
	return id, nil
}
