// Package pidfile records the PID of a running API server so a second
// instance refuses to start and the CLI can report or stop it.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrRunning is returned by Acquire when a live process already owns the file.
var ErrRunning = errors.New("server already running")

// File is a PID file at Path.
type File struct {
	Path string
}

// New returns a File for path. Nothing is touched on disk.
func New(path string) *File {
	return &File{Path: path}
}

// Acquire writes the current PID. A file left behind by a dead process is
// overwritten; a live one yields ErrRunning.
func (f *File) Acquire() error {
	if pid, ok := f.Running(); ok {
		return fmt.Errorf("%w (pid %d)", ErrRunning, pid)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	return f.write(os.Getpid())
}

// Release removes the file if it still holds the current PID.
func (f *File) Release() error {
	pid, err := f.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if pid != os.Getpid() {
		return nil
	}
	return os.Remove(f.Path)
}

// Read returns the PID stored in the file.
func (f *File) Read() (int, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file %s: %w", f.Path, err)
	}
	return pid, nil
}

// Running reports the stored PID and whether that process is alive.
func (f *File) Running() (int, bool) {
	pid, err := f.Read()
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, alive(pid)
}

// Stop asks the recorded process to shut down.
func (f *File) Stop() error {
	pid, ok := f.Running()
	if !ok {
		return errors.New("server not running")
	}
	return terminate(pid)
}

func (f *File) write(pid int) error {
	return os.WriteFile(f.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}
