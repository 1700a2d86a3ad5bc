package version_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/scribe/internal/document"
	"github.com/calvinalkan/scribe/internal/lock"
	"github.com/calvinalkan/scribe/internal/scribe"
	"github.com/calvinalkan/scribe/internal/section"
	"github.com/calvinalkan/scribe/internal/store"
	"github.com/calvinalkan/scribe/internal/testutil"
	"github.com/calvinalkan/scribe/internal/version"
	"github.com/calvinalkan/scribe/pkg/fs"
)

const guide = ">>>>>ID#intro\n# Intro\nHello\n<<<<<ID#intro\n>>>>>ID#usage\n## Usage\nRun it\n<<<<<ID#usage\n"

type fixture struct {
	db       *store.Store
	clock    *testutil.Clock
	docs     *document.Store
	locks    *lock.Manager
	versions *version.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	clock := testutil.NewClock()

	s, err := store.Open(t.Context(), filepath.Join(root, "data"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	docs := document.New(fs.NewReal(), filepath.Join(root, "docs"), document.WithClock(clock))
	locks := lock.NewManager(s.Locks(), lock.WithClock(clock), lock.WithWait(2, 10*time.Millisecond))

	f := &fixture{
		db:       s,
		clock:    clock,
		docs:     docs,
		locks:    locks,
		versions: version.NewManager(s.Versions(), docs, locks, version.WithClock(clock)),
	}

	_, err = docs.Create(t.Context(), document.CreateRequest{Name: "guide", User: "alice", Content: guide})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	return f
}

func (f *fixture) body(t *testing.T, id string) string {
	t.Helper()

	content, err := f.docs.Load(t.Context(), "guide.md")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	body, err := section.Extract(content, id)
	if err != nil {
		t.Fatalf("Extract %s: %v", id, err)
	}

	return body
}

func Test_SaveSection_Writes_Body_And_Records_Version(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	ts, err := f.versions.SaveSection(ctx, "guide.md", "usage", "alice", "## Usage\nRun it twice")
	if err != nil {
		t.Fatalf("SaveSection: %v", err)
	}

	if got, want := ts, "20250205013016"; got != want {
		t.Errorf("ts=%q, want=%q", got, want)
	}

	if got, want := f.body(t, "usage"), "## Usage\nRun it twice"; got != want {
		t.Errorf("body=%q, want=%q", got, want)
	}

	if got, want := f.body(t, "intro"), "# Intro\nHello"; got != want {
		t.Errorf("untouched section body=%q, want=%q", got, want)
	}

	v, err := f.versions.Get(ctx, "guide.md", "usage", ts)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got, want := v.Content, "## Usage\nRun it twice"; got != want {
		t.Errorf("version content=%q, want=%q", got, want)
	}

	if v.User != "alice" {
		t.Errorf("version user=%q", v.User)
	}
}

func Test_SaveSection_Waits_For_Next_Second_When_Timestamp_Taken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	first, err := f.versions.SaveSection(ctx, "guide.md", "usage", "alice", "one")
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	second, err := f.versions.SaveSection(ctx, "guide.md", "usage", "alice", "two")
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if second <= first {
		t.Fatalf("second=%q not after first=%q", second, first)
	}

	if diff := cmp.Diff([]time.Duration{time.Second}, f.clock.Sleeps()); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}

	history, err := f.versions.History(ctx, "guide.md", "usage")
	if err != nil {
		t.Fatalf("History: %v", err)
	}

	want := []version.Entry{{Timestamp: second, User: "alice"}, {Timestamp: first, User: "alice"}}
	if diff := cmp.Diff(want, history); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func Test_SaveSection_Fails_When_Locked_By_Other_User(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	ok, err := f.locks.Lock(ctx, "guide.md", "usage", "bob")
	if err != nil || !ok {
		t.Fatalf("Lock: ok=%v err=%v", ok, err)
	}

	_, err = f.versions.SaveSection(ctx, "guide.md", "usage", "alice", "stolen")
	if !errors.Is(err, scribe.ErrLockHeld) {
		t.Fatalf("err=%v, want ErrLockHeld", err)
	}

	if got, want := f.body(t, "usage"), "## Usage\nRun it"; got != want {
		t.Errorf("body=%q, want=%q", got, want)
	}

	history, _ := f.versions.History(ctx, "guide.md", "usage")
	if len(history) != 0 {
		t.Errorf("history=%v, want none", history)
	}

	_, err = f.versions.SaveSection(ctx, "guide.md", "usage", "bob", "mine")
	if err != nil {
		t.Fatalf("holder SaveSection: %v", err)
	}
}

// lockedAfterWait lets AwaitFree pass and then reports bob as the holder,
// as if bob locked the section while the save waited for the write lock.
type lockedAfterWait struct{}

func (lockedAfterWait) AwaitFree(context.Context, string, string, string) error { return nil }

func (lockedAfterWait) Owner(context.Context, string, string) (string, error) { return "bob", nil }

func Test_SaveSection_Rechecks_Lock_Under_Write_Lock(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	m := version.NewManager(f.db.Versions(), f.docs, lockedAfterWait{}, version.WithClock(f.clock))

	_, err := m.SaveSection(ctx, "guide.md", "usage", "alice", "stolen")
	if !errors.Is(err, scribe.ErrLockHeld) {
		t.Fatalf("err=%v, want ErrLockHeld", err)
	}

	if got, want := f.body(t, "usage"), "## Usage\nRun it"; got != want {
		t.Errorf("body=%q, want=%q", got, want)
	}

	history, _ := m.History(ctx, "guide.md", "usage")
	if len(history) != 0 {
		t.Errorf("history=%v, want none", history)
	}
}

var errDiskFull = errors.New("disk full")

// failingWrites runs the update callback but never persists its result.
type failingWrites struct {
	docs *document.Store
}

func (w failingWrites) Load(ctx context.Context, name string) (string, error) {
	return w.docs.Load(ctx, name)
}

func (w failingWrites) Update(ctx context.Context, name string, fn func(string) (string, error)) error {
	content, err := w.docs.Load(ctx, name)
	if err != nil {
		return err
	}

	_, err = fn(content)
	if err != nil {
		return err
	}

	return errDiskFull
}

func Test_SaveSection_Leaves_No_Versions_When_Write_Fails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	m := version.NewManager(f.db.Versions(), failingWrites{docs: f.docs}, f.locks, version.WithClock(f.clock))

	_, err := m.SaveSection(ctx, "guide.md", "usage", "alice", "## Usage\nRun it twice\n### Flags\n-v verbose")
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("err=%v, want errDiskFull", err)
	}

	content, _ := f.docs.Load(ctx, "guide.md")
	if content != guide {
		t.Errorf("document changed:\n%s", content)
	}

	for _, id := range []string{"usage", "20250205013016_1"} {
		history, err := m.History(ctx, "guide.md", id)
		if err != nil {
			t.Fatalf("History %s: %v", id, err)
		}

		if len(history) != 0 {
			t.Errorf("%s history=%v, want none", id, history)
		}
	}

	_, err = f.versions.SaveSection(ctx, "guide.md", "usage", "alice", "## Usage\nRun it twice")
	if err != nil {
		t.Fatalf("SaveSection: %v", err)
	}

	history, _ := f.versions.History(ctx, "guide.md", "usage")
	if len(history) != 1 {
		t.Errorf("history=%v, want one entry", history)
	}
}

func Test_SaveSection_Splits_Multiple_Headings_Into_Sections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	_, err := f.versions.SaveSection(ctx, "guide.md", "usage", "alice", "## Usage\nRun it\n### Flags\n-v verbose")
	if err != nil {
		t.Fatalf("SaveSection: %v", err)
	}

	content, _ := f.docs.Load(ctx, "guide.md")
	ids := section.List(content)

	if diff := cmp.Diff([]string{"intro", "usage", "20250205013016_1"}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}

	if got, want := f.body(t, "usage"), "## Usage\nRun it"; got != want {
		t.Errorf("usage body=%q, want=%q", got, want)
	}

	if got, want := f.body(t, ids[2]), "### Flags\n-v verbose"; got != want {
		t.Errorf("split body=%q, want=%q", got, want)
	}

	history, err := f.versions.History(ctx, "guide.md", ids[2])
	if err != nil {
		t.Fatalf("History: %v", err)
	}

	if len(history) != 1 {
		t.Errorf("split section history=%v, want one entry", history)
	}
}

func Test_SaveSection_Rejects_Body_That_Breaks_Structure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	_, err := f.versions.SaveSection(ctx, "guide.md", "usage", "alice", "## Usage\n>>>>>ID#evil\ntext")
	if !errors.Is(err, scribe.ErrStructure) {
		t.Fatalf("err=%v, want ErrStructure", err)
	}

	content, _ := f.docs.Load(ctx, "guide.md")
	if content != guide {
		t.Errorf("document changed:\n%s", content)
	}
}

func Test_SaveSection_Fails_When_Section_Missing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.versions.SaveSection(t.Context(), "guide.md", "nope", "alice", "x")
	if !errors.Is(err, scribe.ErrSectionNotFound) {
		t.Fatalf("err=%v, want ErrSectionNotFound", err)
	}
}

func Test_Rollback_Restores_Content_As_New_Version(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	v1, err := f.versions.SaveSection(ctx, "guide.md", "usage", "alice", "## Usage\nOne")
	if err != nil {
		t.Fatalf("save v1: %v", err)
	}

	v2, err := f.versions.SaveSection(ctx, "guide.md", "usage", "bob", "## Usage\nTwo")
	if err != nil {
		t.Fatalf("save v2: %v", err)
	}

	out, err := f.versions.Rollback(ctx, "guide.md", "usage", v1, "carol")
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if !out.Changed || out.Timestamp <= v2 {
		t.Fatalf("outcome=%+v, want a new version after %s", out, v2)
	}

	if got, want := f.body(t, "usage"), "## Usage\nOne"; got != want {
		t.Errorf("body=%q, want=%q", got, want)
	}

	history, _ := f.versions.History(ctx, "guide.md", "usage")

	want := []version.Entry{
		{Timestamp: out.Timestamp, User: "carol"},
		{Timestamp: v2, User: "bob"},
		{Timestamp: v1, User: "alice"},
	}
	if diff := cmp.Diff(want, history); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	again, err := f.versions.Rollback(ctx, "guide.md", "usage", v1, "carol")
	if err != nil {
		t.Fatalf("second Rollback: %v", err)
	}

	if diff := cmp.Diff(version.Outcome{Timestamp: v1, Changed: false}, again); diff != "" {
		t.Errorf("no-op outcome mismatch (-want +got):\n%s", diff)
	}

	history, _ = f.versions.History(ctx, "guide.md", "usage")
	if len(history) != 3 {
		t.Errorf("no-op rollback added history: %v", history)
	}
}

func Test_Rollback_Fails_When_Version_Missing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.versions.Rollback(t.Context(), "guide.md", "usage", "20000101000000", "alice")
	if !errors.Is(err, scribe.ErrVersionNotFound) {
		t.Fatalf("err=%v, want ErrVersionNotFound", err)
	}

	if !errors.Is(err, scribe.ErrNotFound) {
		t.Errorf("err=%v should match ErrNotFound", err)
	}
}

func Test_Rollback_Fails_When_Locked_By_Other_User(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	v1, _ := f.versions.SaveSection(ctx, "guide.md", "usage", "alice", "## Usage\nOne")
	_, _ = f.versions.SaveSection(ctx, "guide.md", "usage", "alice", "## Usage\nTwo")
	_, _ = f.locks.Lock(ctx, "guide.md", "usage", "bob")

	_, err := f.versions.Rollback(ctx, "guide.md", "usage", v1, "alice")
	if !errors.Is(err, scribe.ErrLockHeld) {
		t.Fatalf("err=%v, want ErrLockHeld", err)
	}

	if got, want := f.body(t, "usage"), "## Usage\nTwo"; got != want {
		t.Errorf("body=%q, want=%q", got, want)
	}
}

func Test_Concurrent_Saves_To_Different_Sections_Keep_Both(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	const rounds = 5

	var wg sync.WaitGroup

	for _, s := range []struct{ id, user, heading string }{
		{"intro", "alice", "# Intro"},
		{"usage", "bob", "## Usage"},
	} {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range rounds {
				_, err := f.versions.SaveSection(ctx, "guide.md", s.id, s.user, fmt.Sprintf("%s\nround %d", s.heading, i))
				if err != nil {
					t.Errorf("SaveSection %s: %v", s.id, err)

					return
				}
			}
		}()
	}

	wg.Wait()

	if got, want := f.body(t, "intro"), fmt.Sprintf("# Intro\nround %d", rounds-1); got != want {
		t.Errorf("intro=%q, want=%q", got, want)
	}

	if got, want := f.body(t, "usage"), fmt.Sprintf("## Usage\nround %d", rounds-1); got != want {
		t.Errorf("usage=%q, want=%q", got, want)
	}

	for _, id := range []string{"intro", "usage"} {
		history, _ := f.versions.History(ctx, "guide.md", id)
		if len(history) != rounds {
			t.Errorf("%s history=%d entries, want=%d", id, len(history), rounds)
		}
	}
}

func Test_Save_Gives_Up_When_Timestamp_Never_Frees(t *testing.T) {
	t.Parallel()

	clock := testutil.NewClock()
	m := version.NewManager(stuckStore{}, nil, nil, version.WithClock(clock))

	_, err := m.Save(t.Context(), "guide.md", "usage", "alice", "x")
	if !errors.Is(err, scribe.ErrTimestampPending) {
		t.Fatalf("err=%v, want ErrTimestampPending", err)
	}

	if got, want := len(clock.Sleeps()), 5; got != want {
		t.Errorf("sleeps=%d, want=%d", got, want)
	}
}

func Test_Save_Aborts_When_Context_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	m := version.NewManager(stuckStore{}, nil, nil, version.WithClock(testutil.NewClock()))

	_, err := m.Save(ctx, "guide.md", "usage", "alice", "x")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

// stuckStore reports a latest timestamp far in the future, so no save ever
// finds a free second.
type stuckStore struct{}

func (stuckStore) Insert(context.Context, version.Version) (bool, error) { return false, nil }

func (stuckStore) Latest(context.Context, string, string) (string, bool, error) {
	return "99991231235959", true, nil
}

func (stuckStore) Get(context.Context, string, string, string) (version.Version, bool, error) {
	return version.Version{}, false, nil
}

func (stuckStore) History(context.Context, string, string) ([]version.Entry, error) { return nil, nil }

func (stuckStore) Delete(context.Context, string, string, string) error { return nil }

func (stuckStore) DeleteDocument(context.Context, string) error { return nil }
