package nandsim

import (
	"bytes"
	"errors"
	"testing"
)

func testChip(busyPolls int) *Chip {
	return New(Config{
		PageSize:      128,
		PagesPerBlock: 2,
		BlockCount:    4,
		BusyPolls:     busyPolls,
	})
}

func TestProgramRequiresWriteEnable(t *testing.T) {
	c := testChip(0)

	if err := c.Tx([]byte{cmdLoadProgram, 0, 0, 0, 0xAB}, nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Tx([]byte{cmdProgramExecute, 0, 0, 0}, nil); !errors.Is(err, ErrProtocol) {
		t.Fatalf("program execute without write enable = %v; want ErrProtocol", err)
	}

	if err := c.Tx([]byte{cmdWriteEnable}, nil); err != nil {
		t.Fatalf("write enable: %v", err)
	}
	if err := c.Tx([]byte{cmdProgramExecute, 0, 0, 0}, nil); err != nil {
		t.Fatalf("program execute: %v", err)
	}

	// The latch auto-clears: a second program must fail again.
	if err := c.Tx([]byte{cmdProgramExecute, 0, 0, 0}, nil); !errors.Is(err, ErrProtocol) {
		t.Fatalf("program execute after latch clear = %v; want ErrProtocol", err)
	}
}

func TestEraseRequiresWriteEnable(t *testing.T) {
	c := testChip(0)
	if err := c.Tx([]byte{cmdBlockErase, 0, 0, 0}, nil); !errors.Is(err, ErrProtocol) {
		t.Fatalf("erase without write enable = %v; want ErrProtocol", err)
	}
}

func TestBusyRejectsCommands(t *testing.T) {
	c := testChip(2)

	if err := c.Tx([]byte{cmdWriteEnable}, nil); err != nil {
		t.Fatalf("write enable: %v", err)
	}
	if err := c.Tx([]byte{cmdBlockErase, 0, 0, 0}, nil); err != nil {
		t.Fatalf("erase: %v", err)
	}

	// Anything but read-status must be rejected mid-operation.
	if err := c.Tx([]byte{cmdPageDataRead, 0, 0, 0}, nil); !errors.Is(err, ErrProtocol) {
		t.Fatalf("page read while busy = %v; want ErrProtocol", err)
	}

	status := make([]byte, 4)
	frame := []byte{cmdReadStatus, 0xC0, 0, 0}
	if err := c.Tx(frame, status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status[3]&statusBusy == 0 {
		t.Fatal("expected busy on first poll")
	}
	if err := c.Tx(frame, status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if err := c.Tx(frame, status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status[3]&statusBusy != 0 {
		t.Fatal("expected ready after busy polls drained")
	}
}

func TestProgramOnlyClearsBits(t *testing.T) {
	c := testChip(0)

	program := func(col uint32, data []byte) {
		t.Helper()
		frame := append([]byte{cmdLoadProgram, byte(col >> 8), byte(col), 0}, data...)
		if err := c.Tx(frame, nil); err != nil {
			t.Fatalf("load: %v", err)
		}
		if err := c.Tx([]byte{cmdWriteEnable}, nil); err != nil {
			t.Fatalf("write enable: %v", err)
		}
		if err := c.Tx([]byte{cmdProgramExecute, 0, 0, 0}, nil); err != nil {
			t.Fatalf("program: %v", err)
		}
	}
	read := func(col uint32, n int) []byte {
		t.Helper()
		if err := c.Tx([]byte{cmdPageDataRead, 0, 0, 0}, nil); err != nil {
			t.Fatalf("page read: %v", err)
		}
		w := make([]byte, 4+n)
		w[0] = cmdReadData
		w[1] = byte(col >> 8)
		w[2] = byte(col)
		r := make([]byte, len(w))
		if err := c.Tx(w, r); err != nil {
			t.Fatalf("read data: %v", err)
		}
		return r[4:]
	}

	program(0, []byte{0xF0})
	program(0, []byte{0x0F})
	if got := read(0, 1); got[0] != 0x00 {
		t.Fatalf("byte after overlapping programs = %#02x; want 0x00", got[0])
	}

	// Bytes the second program left erased in the buffer stay intact.
	program(1, []byte{0x42})
	if got := read(0, 2); !bytes.Equal(got, []byte{0x00, 0x42}) {
		t.Fatalf("page head = %x; want 0042", got)
	}
}

func TestWriteToDumpsWholeArray(t *testing.T) {
	c := testChip(0)
	var buf bytes.Buffer
	n, err := c.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if want := int64(128 * 2 * 4); n != want {
		t.Fatalf("WriteTo = %d bytes; want %d", n, want)
	}
	for i, b := range buf.Bytes() {
		if b != ErasedByte {
			t.Fatalf("fresh chip byte %d = %#02x; want erased", i, b)
		}
	}
}
