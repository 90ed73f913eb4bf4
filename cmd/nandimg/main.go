//go:build !tinygo

// Command nandimg builds a littlefs image for a W25N-family SPI NAND
// chip from a directory tree, using the simulated chip as the backing
// device. The output is the raw flash array, ready for preprogramming.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tinygo.org/x/tinyfs/littlefs"

	"nandfs/nandsim"
	"nandfs/spinand"
	"nandfs/storage"
)

const defaultImagePath = "nand.img"

func main() {
	var srcDir string
	var outPath string
	var blocks uint
	flag.StringVar(&srcDir, "src", "", "Source directory to import into littlefs.")
	flag.StringVar(&outPath, "out", defaultImagePath, "Output image path.")
	flag.UintVar(&blocks, "blocks", 64, "Erase blocks in the image (1024 for a full W25N01GV).")
	flag.Parse()

	if srcDir == "" {
		fmt.Fprintln(os.Stderr, "error: -src is required")
		os.Exit(2)
	}
	if blocks == 0 {
		fmt.Fprintln(os.Stderr, "error: -blocks must be positive")
		os.Exit(2)
	}

	if err := run(srcDir, outPath, uint32(blocks)); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(srcDir string, outPath string, blocks uint32) error {
	srcDir = filepath.Clean(srcDir)
	st, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("stat src %q: %w", srcDir, err)
	}
	if !st.IsDir() {
		return fmt.Errorf("src %q is not a directory", srcDir)
	}

	chip := nandsim.New(nandsim.Config{BlockCount: blocks})
	dev, err := spinand.New(chip, spinand.Config{BlockCount: blocks})
	if err != nil {
		return err
	}

	// The chip is blank, so the first mount fails and the bootstrap
	// formats before mounting again.
	fsys, err := storage.Mount(dev, storage.Config{})
	if err != nil {
		return err
	}

	dirs, files, err := collect(srcDir)
	if err != nil {
		return err
	}

	for _, d := range dirs {
		if err := fsys.Mkdir(d, 0o777); err != nil {
			return fmt.Errorf("mkdir %q: %w", d, err)
		}
	}
	for _, f := range files {
		hostPath := filepath.Join(srcDir, filepath.FromSlash(strings.TrimPrefix(f, "/")))
		if err := copyFile(fsys, hostPath, f); err != nil {
			return err
		}
	}

	if err := fsys.Unmount(); err != nil {
		return fmt.Errorf("unmount: %w", err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create image %q: %w", outPath, err)
	}
	if _, err := chip.WriteTo(out); err != nil {
		_ = out.Close()
		return fmt.Errorf("write image %q: %w", outPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close image %q: %w", outPath, err)
	}
	return nil
}

func collect(srcDir string) (dirs, files []string, err error) {
	walkErr := filepath.WalkDir(srcDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == srcDir {
			return nil
		}
		if entry.Type()&os.ModeSymlink != 0 {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		lfsPath := "/" + filepath.ToSlash(rel)
		if entry.IsDir() {
			dirs = append(dirs, lfsPath)
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		files = append(files, lfsPath)
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("walk src %q: %w", srcDir, walkErr)
	}
	sort.Strings(dirs)
	sort.Strings(files)
	return dirs, files, nil
}

func copyFile(fsys *littlefs.LFS, hostPath string, lfsPath string) error {
	in, err := os.Open(hostPath)
	if err != nil {
		return fmt.Errorf("open %q: %w", hostPath, err)
	}
	defer func() { _ = in.Close() }()

	w, err := fsys.OpenFile(lfsPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("open %q in image: %w", lfsPath, err)
	}

	if _, err := io.Copy(w, in); err != nil {
		_ = w.Close()
		if errors.Is(err, io.ErrShortWrite) {
			return fmt.Errorf("write %q: short write", lfsPath)
		}
		return fmt.Errorf("write %q: %w", lfsPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %q: %w", lfsPath, err)
	}
	return nil
}
