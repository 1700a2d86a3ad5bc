package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func Test_Real_Exists(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	dir := t.TempDir()

	file := filepath.Join(dir, "doc.md")

	err := os.WriteFile(file, []byte("# Doc\n"), 0o600)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "missing", path: filepath.Join(dir, "missing.md"), want: false},
		{name: "file", path: file, want: true},
		{name: "directory", path: dir, want: true},
	}

	for _, tt := range tests {
		got, err := fs.Exists(tt.path)
		if err != nil {
			t.Fatalf("%s: err=%v", tt.name, err)
		}

		if got != tt.want {
			t.Errorf("%s: exists=%v, want=%v", tt.name, got, tt.want)
		}
	}
}

func Test_Real_Link_Fails_When_Target_Exists(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	dir := t.TempDir()

	tmp := filepath.Join(dir, "record.tmp")
	target := filepath.Join(dir, "record.yaml")

	err := os.WriteFile(tmp, []byte("user: alice\n"), 0o600)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	err = fs.Link(tmp, target)
	if err != nil {
		t.Fatalf("first link: %v", err)
	}

	err = fs.Link(tmp, target)
	if !os.IsExist(err) {
		t.Fatalf("second link err=%v, want exists error", err)
	}

	data, err := fs.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := string(data), "user: alice\n"; got != want {
		t.Errorf("content=%q, want=%q", got, want)
	}
}

func Test_Real_RemoveAll_Missing_Path_Is_Not_An_Error(t *testing.T) {
	t.Parallel()

	err := NewReal().RemoveAll(filepath.Join(t.TempDir(), "gone"))
	if err != nil {
		t.Errorf("err=%v, want nil", err)
	}
}
