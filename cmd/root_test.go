package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"danny/nn/internal/config"
)

// isolate resets discovery inputs so the host environment cannot leak in.
func isolate(t *testing.T) string {
	t.Helper()
	prevPath, prevCfg := dbPath, cfg
	t.Cleanup(func() { dbPath, cfg = prevPath, prevCfg })
	dbPath, cfg = "", config.Default()

	dir := t.TempDir()
	t.Setenv("DANNY_DB", "")
	t.Setenv("DANNY_CONFIG", "")
	t.Setenv("HOME", filepath.Join(dir, "home"))
	t.Chdir(dir)
	return dir
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
}

func sameFile(t *testing.T, a, b string) bool {
	t.Helper()
	fa, err := os.Stat(a)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := os.Stat(b)
	if err != nil {
		t.Fatal(err)
	}
	return os.SameFile(fa, fb)
}

func TestDiscoverDB_Env(t *testing.T) {
	dir := isolate(t)
	envDB := filepath.Join(dir, "env.db")
	touch(t, envDB)
	touch(t, filepath.Join(dir, "flag.db"))
	t.Setenv("DANNY_DB", envDB)
	dbPath = filepath.Join(dir, "flag.db")

	got, err := DiscoverDB()
	if err != nil {
		t.Fatal(err)
	}
	if got != envDB {
		t.Errorf("DiscoverDB() = %q, want env path %q", got, envDB)
	}
}

func TestDiscoverDB_Flag(t *testing.T) {
	dir := isolate(t)
	dbPath = filepath.Join(dir, "flag.db")
	touch(t, dbPath)

	got, err := DiscoverDB()
	if err != nil {
		t.Fatal(err)
	}
	if got != dbPath {
		t.Errorf("DiscoverDB() = %q, want %q", got, dbPath)
	}

	dbPath = filepath.Join(dir, "missing.db")
	if _, err := DiscoverDB(); err == nil || errors.Is(err, errNoDB) {
		t.Errorf("missing --db should fail with its path, got %v", err)
	}
}

func TestDiscoverDB_ConfigPath(t *testing.T) {
	dir := isolate(t)
	cfg.Store.Path = filepath.Join(dir, "configured.db")
	touch(t, cfg.Store.Path)

	got, err := DiscoverDB()
	if err != nil {
		t.Fatal(err)
	}
	if got != cfg.Store.Path {
		t.Errorf("DiscoverDB() = %q, want %q", got, cfg.Store.Path)
	}
}

func TestDiscoverDB_WalkUp(t *testing.T) {
	dir := isolate(t)
	want := filepath.Join(dir, DBFileName)
	touch(t, want)
	nested := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)

	got, err := DiscoverDB()
	if err != nil {
		t.Fatal(err)
	}
	if !sameFile(t, got, want) {
		t.Errorf("DiscoverDB() = %q, want %q", got, want)
	}
}

func TestDiscoverDB_XDG(t *testing.T) {
	isolate(t)
	xdg, err := xdgDBPath()
	if err != nil {
		t.Fatal(err)
	}
	touch(t, xdg)

	got, err := DiscoverDB()
	if err != nil {
		t.Fatal(err)
	}
	if got != xdg {
		t.Errorf("DiscoverDB() = %q, want %q", got, xdg)
	}
}

func TestDiscoverDB_NotFound(t *testing.T) {
	isolate(t)
	if _, err := DiscoverDB(); !errors.Is(err, errNoDB) {
		t.Errorf("DiscoverDB() error = %v, want errNoDB", err)
	}
}
