package storage

import (
	"errors"
	"testing"
)

type fakeFS struct {
	mountErrs []error // successive Mount results; nil past the end
	formatErr error
	calls     []string
}

func (f *fakeFS) Mount() error {
	f.calls = append(f.calls, "mount")
	i := 0
	for _, c := range f.calls[:len(f.calls)-1] {
		if c == "mount" {
			i++
		}
	}
	if i < len(f.mountErrs) {
		return f.mountErrs[i]
	}
	return nil
}

func (f *fakeFS) Format() error {
	f.calls = append(f.calls, "format")
	return f.formatErr
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMountSucceedsWithoutFormat(t *testing.T) {
	fs := &fakeFS{}
	if err := mountOrFormat(fs); err != nil {
		t.Fatalf("mountOrFormat: %v", err)
	}
	if want := []string{"mount"}; !equal(fs.calls, want) {
		t.Fatalf("calls = %v; want %v", fs.calls, want)
	}
}

func TestMountFormatsOnceThenRemounts(t *testing.T) {
	fs := &fakeFS{mountErrs: []error{errors.New("corrupt superblock")}}
	if err := mountOrFormat(fs); err != nil {
		t.Fatalf("mountOrFormat: %v", err)
	}
	if want := []string{"mount", "format", "mount"}; !equal(fs.calls, want) {
		t.Fatalf("calls = %v; want %v", fs.calls, want)
	}
}

func TestMountSurfacesFormatError(t *testing.T) {
	formatErr := errors.New("device gone")
	fs := &fakeFS{
		mountErrs: []error{errors.New("corrupt superblock")},
		formatErr: formatErr,
	}
	if err := mountOrFormat(fs); !errors.Is(err, formatErr) {
		t.Fatalf("mountOrFormat err = %v; want wrapped %v", err, formatErr)
	}
	if want := []string{"mount", "format"}; !equal(fs.calls, want) {
		t.Fatalf("calls = %v; want %v", fs.calls, want)
	}
}

func TestMountSurfacesSecondMountError(t *testing.T) {
	secondErr := errors.New("still corrupt")
	fs := &fakeFS{mountErrs: []error{errors.New("corrupt superblock"), secondErr}}
	if err := mountOrFormat(fs); !errors.Is(err, secondErr) {
		t.Fatalf("mountOrFormat err = %v; want wrapped %v", err, secondErr)
	}
	if want := []string{"mount", "format", "mount"}; !equal(fs.calls, want) {
		t.Fatalf("calls = %v; want %v", fs.calls, want)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.setDefaults()
	if cfg.CacheSize != 2048 || cfg.LookaheadSize != 128 || cfg.BlockCycles != 1 {
		t.Fatalf("defaults = %+v; want cache 2048, lookahead 128, cycles 1", cfg)
	}

	cfg = Config{CacheSize: 512, LookaheadSize: 64, BlockCycles: 100}
	cfg.setDefaults()
	if cfg.CacheSize != 512 || cfg.LookaheadSize != 64 || cfg.BlockCycles != 100 {
		t.Fatalf("explicit config overwritten: %+v", cfg)
	}
}
