package document_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/scribe/internal/document"
	"github.com/calvinalkan/scribe/internal/lock"
	"github.com/calvinalkan/scribe/internal/marker"
	"github.com/calvinalkan/scribe/internal/scribe"
	"github.com/calvinalkan/scribe/internal/section"
	"github.com/calvinalkan/scribe/internal/store"
	"github.com/calvinalkan/scribe/internal/testutil"
	"github.com/calvinalkan/scribe/pkg/fs"
)

const twoSections = ">>>>>ID#intro\n# Intro\nHello\n<<<<<ID#intro\n>>>>>ID#usage\n## Usage\nRun it\n<<<<<ID#usage\n"

type env struct {
	dir   string
	db    *store.Store
	locks *lock.Manager
	docs  *document.Store
}

func newEnv(t *testing.T, opts ...document.Option) *env {
	t.Helper()

	root := t.TempDir()

	db, err := store.Open(t.Context(), filepath.Join(root, "data"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	clock := testutil.NewClock()
	locks := lock.NewManager(db.Locks(), lock.WithClock(clock))
	dir := filepath.Join(root, "docs")

	base := []document.Option{
		document.WithClock(clock),
		document.WithMeta(db.Meta()),
		document.WithSectionLocks(locks),
		document.WithPurgers(locks, db.Versions(), db.Activity()),
		document.WithRecorder(db.Activity()),
	}

	return &env{
		dir:   dir,
		db:    db,
		locks: locks,
		docs:  document.New(fs.NewReal(), dir, append(base, opts...)...),
	}
}

func (e *env) read(t *testing.T, name string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(e.dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}

	return string(data)
}

func Test_Create_Writes_Placeholder_Section_When_Content_Empty(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := t.Context()

	meta, err := e.docs.Create(ctx, document.CreateRequest{Name: "notes", User: "alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if got, want := meta.Name, "notes.md"; got != want {
		t.Errorf("name=%q, want=%q", got, want)
	}

	if diff := cmp.Diff(scribe.DefaultProfile(), meta.Profile); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}

	want := ">>>>>ID#20250205013016_1\n# notes\n<<<<<ID#20250205013016_1\n"
	if diff := cmp.Diff(want, e.read(t, "notes.md")); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}

	got, err := e.docs.Meta(ctx, "notes.md")
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}

	if got.Creator != "alice" || !got.CreatedAt.Equal(meta.CreatedAt) {
		t.Errorf("meta=%+v", got)
	}

	_, err = e.docs.Create(ctx, document.CreateRequest{Name: "notes.md", User: "bob"})
	if !errors.Is(err, scribe.ErrDocumentExists) {
		t.Fatalf("second Create err=%v, want ErrDocumentExists", err)
	}
}

func Test_Create_Uses_Title_And_Labels_Content(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := t.Context()

	_, err := e.docs.Create(ctx, document.CreateRequest{Name: "a", User: "alice", Title: "Release Plan"})
	if err != nil {
		t.Fatalf("Create titled: %v", err)
	}

	if got := e.read(t, "a.md"); !containsLine(got, "# Release Plan") {
		t.Errorf("content=%q, want title heading", got)
	}

	_, err = e.docs.Create(ctx, document.CreateRequest{Name: "b", User: "alice", Content: "# One\n1\n# Two\n2\n"})
	if err != nil {
		t.Fatalf("Create with content: %v", err)
	}

	content := e.read(t, "b.md")
	if got, want := len(section.List(content)), 2; got != want {
		t.Errorf("sections=%d, want=%d in %q", got, want, content)
	}

	if valid, msg := marker.Validate(content); !valid {
		t.Errorf("Validate: %s", msg)
	}
}

func Test_Create_Rejects_Invalid_Input(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	for _, tt := range []struct {
		name string
		req  document.CreateRequest
	}{
		{"empty name", document.CreateRequest{Name: "", User: "alice"}},
		{"path traversal", document.CreateRequest{Name: "../etc/passwd", User: "alice"}},
		{"empty user", document.CreateRequest{Name: "x", User: ""}},
	} {
		_, err := e.docs.Create(t.Context(), tt.req)
		if !errors.Is(err, scribe.ErrInvalidInput) {
			t.Errorf("%s: err=%v, want ErrInvalidInput", tt.name, err)
		}
	}
}

func Test_Load_Reports_Missing_Document(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	_, err := e.docs.Load(t.Context(), "missing")
	if !errors.Is(err, scribe.ErrDocumentNotFound) {
		t.Fatalf("err=%v, want ErrDocumentNotFound", err)
	}
}

func Test_Save_Refuses_Content_That_Cannot_Be_Repaired(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := t.Context()

	_, err := e.docs.Create(ctx, document.CreateRequest{Name: "doc", User: "alice", Content: twoSections})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	nested := ">>>>>ID#a\n# A\n>>>>>ID#b\n## B\n<<<<<ID#b\n<<<<<ID#a\n"

	err = e.docs.Save(ctx, "doc", nested)
	if !errors.Is(err, marker.ErrRepairFailed) {
		t.Fatalf("err=%v, want ErrRepairFailed", err)
	}

	if got := e.read(t, "doc.md"); got != twoSections {
		t.Errorf("document changed on failed save:\n%s", got)
	}

	err = e.docs.Save(ctx, "doc", "# Fresh\ntext\n")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if got := e.read(t, "doc.md"); len(section.List(got)) != 1 {
		t.Errorf("saved content=%q, want one labelled section", got)
	}
}

func Test_Update_Leaves_File_Untouched_On_Failure(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := t.Context()

	_, _ = e.docs.Create(ctx, document.CreateRequest{Name: "doc", User: "alice", Content: twoSections})

	boom := errors.New("boom")

	err := e.docs.Update(ctx, "doc", func(string) (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}

	err = e.docs.Update(ctx, "doc", func(c string) (string, error) { return c + "# stray heading\n", nil })
	if !errors.Is(err, scribe.ErrStructure) {
		t.Fatalf("err=%v, want ErrStructure", err)
	}

	if got := e.read(t, "doc.md"); got != twoSections {
		t.Errorf("document changed:\n%s", got)
	}
}

func Test_Sanitize_Reports_Change_Only_Once(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := t.Context()

	err := os.MkdirAll(e.dir, 0o755)
	if err != nil {
		t.Fatal(err)
	}

	err = os.WriteFile(filepath.Join(e.dir, "raw.md"), []byte("# Raw\ntext\n"), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	changed, err := e.docs.Sanitize(ctx, "raw", "alice")
	if err != nil || !changed {
		t.Fatalf("first Sanitize: changed=%v err=%v", changed, err)
	}

	changed, err = e.docs.Sanitize(ctx, "raw", "alice")
	if err != nil || changed {
		t.Fatalf("second Sanitize: changed=%v err=%v", changed, err)
	}

	events, err := e.db.Activity().List(ctx, "raw.md", 0)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}

	if len(events) != 1 || events[0].Action != scribe.ActionRepair {
		t.Errorf("events=%+v, want one repair", events)
	}
}

func Test_DeleteSection_Rules(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := t.Context()

	_, _ = e.docs.Create(ctx, document.CreateRequest{Name: "doc", User: "alice", Content: twoSections})

	err := e.docs.DeleteSection(ctx, "doc", "intro", "alice")
	if !errors.Is(err, scribe.ErrFirstSection) {
		t.Fatalf("first section err=%v, want ErrFirstSection", err)
	}

	_, _ = e.locks.Lock(ctx, "doc.md", "usage", "bob")

	err = e.docs.DeleteSection(ctx, "doc", "usage", "alice")
	if !errors.Is(err, scribe.ErrLockHeld) {
		t.Fatalf("locked section err=%v, want ErrLockHeld", err)
	}

	err = e.docs.DeleteSection(ctx, "doc", "missing", "alice")
	if !errors.Is(err, scribe.ErrSectionNotFound) {
		t.Fatalf("missing section err=%v, want ErrSectionNotFound", err)
	}

	err = e.docs.DeleteSection(ctx, "doc", "usage", "bob")
	if err != nil {
		t.Fatalf("DeleteSection: %v", err)
	}

	want := ">>>>>ID#intro\n# Intro\nHello\n<<<<<ID#intro\n"
	if diff := cmp.Diff(want, e.read(t, "doc.md")); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}

	owner, _ := e.locks.Owner(ctx, "doc.md", "usage")
	if owner != "" {
		t.Errorf("lock of deleted section still held by %q", owner)
	}
}

// lockedDuringCheck reports bob as the holder and records whether the
// document write lock was held when it was asked.
type lockedDuringCheck struct {
	other      *document.Store
	writeHeld  bool
	ownerCalls int
}

func (l *lockedDuringCheck) Owner(ctx context.Context, doc, _ string) (string, error) {
	l.ownerCalls++

	err := l.other.Update(ctx, doc, func(content string) (string, error) { return content, nil })
	l.writeHeld = errors.Is(err, fs.ErrWouldBlock)

	return "bob", nil
}

func (*lockedDuringCheck) Break(context.Context, string, string, string) (string, error) {
	return "", nil
}

func Test_DeleteSection_Checks_Lock_Under_Write_Lock(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	locks := &lockedDuringCheck{
		other: document.New(fs.NewReal(), dir, document.WithWriteWait(20*time.Millisecond)),
	}
	docs := document.New(fs.NewReal(), dir, document.WithSectionLocks(locks))
	ctx := t.Context()

	_, err := docs.Create(ctx, document.CreateRequest{Name: "doc", User: "alice", Content: twoSections})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	err = docs.DeleteSection(ctx, "doc", "usage", "alice")
	if !errors.Is(err, scribe.ErrLockHeld) {
		t.Fatalf("err=%v, want ErrLockHeld", err)
	}

	if locks.ownerCalls != 1 || !locks.writeHeld {
		t.Errorf("owner checked %d time(s), write lock held=%v; want once under the write lock", locks.ownerCalls, locks.writeHeld)
	}

	data, err := os.ReadFile(filepath.Join(dir, "doc.md"))
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(twoSections, string(data)); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
}

func Test_Delete_Purges_Everything(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := t.Context()

	_, _ = e.docs.Create(ctx, document.CreateRequest{Name: "doc", User: "alice", Content: twoSections})
	_, _ = e.locks.Lock(ctx, "doc.md", "usage", "bob")

	err := e.docs.Delete(ctx, "doc", "alice")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}

	exists, _ := e.docs.Exists("doc")
	if exists {
		t.Error("file still exists")
	}

	locks, _ := e.locks.CheckAll(ctx, "doc.md")
	if len(locks) != 0 {
		t.Errorf("locks=%v", locks)
	}

	_, ok, _ := e.db.Meta().GetMeta(ctx, "doc.md")
	if ok {
		t.Error("metadata survived delete")
	}

	err = e.docs.Delete(ctx, "doc", "alice")
	if !errors.Is(err, scribe.ErrDocumentNotFound) {
		t.Errorf("second Delete err=%v, want ErrDocumentNotFound", err)
	}
}

func Test_Delete_Joins_Failures_And_Runs_Every_Step(t *testing.T) {
	t.Parallel()

	boom := errors.New("purge failed")
	tail := &countingPurger{}
	e := newEnv(t, document.WithPurgers(failingPurger{err: boom}, tail))
	ctx := t.Context()

	err := e.docs.Delete(ctx, "never-created", "alice")
	if !errors.Is(err, scribe.ErrDocumentNotFound) {
		t.Errorf("err=%v, want ErrDocumentNotFound", err)
	}

	if !errors.Is(err, boom) {
		t.Errorf("err=%v, want purge failure joined", err)
	}

	if tail.calls != 1 {
		t.Errorf("purger after failure ran %d times, want 1", tail.calls)
	}
}

func Test_List_Includes_Unregistered_Files(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := t.Context()

	_, _ = e.docs.Create(ctx, document.CreateRequest{Name: "b", User: "alice"})

	err := os.WriteFile(filepath.Join(e.dir, "a.md"), []byte("# A\n"), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	err = os.WriteFile(filepath.Join(e.dir, "ignored.txt"), []byte("x"), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	list, err := e.docs.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	var names []string
	for _, m := range list {
		names = append(names, m.Name)
	}

	if diff := cmp.Diff([]string{"a.md", "b.md"}, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	if list[0].Creator != "" || list[1].Creator != "alice" {
		t.Errorf("creators=%q,%q", list[0].Creator, list[1].Creator)
	}
}

func Test_SetProfile_Merges_And_Adopts_Unregistered_Documents(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := t.Context()

	err := os.MkdirAll(e.dir, 0o755)
	if err != nil {
		t.Fatal(err)
	}

	err = os.WriteFile(filepath.Join(e.dir, "old.md"), []byte("# Old\n"), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	got, err := e.docs.SetProfile(ctx, "old", "carol", scribe.Profile{Purpose: "onboarding guide"})
	if err != nil {
		t.Fatalf("SetProfile: %v", err)
	}

	want := scribe.Profile{Role: "technical writer", Purpose: "onboarding guide", Lang: "English"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}

	meta, err := e.docs.Meta(ctx, "old")
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}

	if meta.Creator != "carol" || meta.Profile != want {
		t.Errorf("meta=%+v", meta)
	}

	got, err = e.docs.SetProfile(ctx, "old", "carol", scribe.Profile{Lang: "German"})
	if err != nil {
		t.Fatalf("second SetProfile: %v", err)
	}

	if got.Purpose != "onboarding guide" || got.Lang != "German" {
		t.Errorf("merged=%+v", got)
	}
}

func containsLine(content, line string) bool {
	for _, l := range marker.Split(content) {
		if l == line {
			return true
		}
	}

	return false
}

type failingPurger struct{ err error }

func (p failingPurger) DeleteDocument(context.Context, string) error { return p.err }

type countingPurger struct{ calls int }

func (p *countingPurger) DeleteDocument(context.Context, string) error {
	p.calls++

	return nil
}
