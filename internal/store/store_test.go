package store_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"

	"github.com/calvinalkan/scribe/internal/document"
	"github.com/calvinalkan/scribe/internal/lock"
	"github.com/calvinalkan/scribe/internal/scribe"
	"github.com/calvinalkan/scribe/internal/store"
	"github.com/calvinalkan/scribe/internal/version"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(t.Context(), t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func Test_Open_Creates_Database_And_Reopens(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := t.Context()

	s, err := store.Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got, want := s.Path(), filepath.Join(dir, store.FileName); got != want {
		t.Errorf("path=%q, want=%q", got, want)
	}

	_, _, err = s.Locks().Create(ctx, lock.Record{Document: "a.md", Section: "s1", User: "alice", LockedAt: time.Now()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	err = s.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = store.Open(ctx, dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	rec, ok, err := s.Locks().Get(ctx, "a.md", "s1")
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}

	if got, want := rec.User, "alice"; got != want {
		t.Errorf("holder=%q, want=%q", got, want)
	}
}

func Test_Open_Rejects_Newer_Schema(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	db, err := sql.Open("sqlite3", filepath.Join(dir, store.FileName))
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}

	_, err = db.Exec("PRAGMA user_version = 99")
	if err != nil {
		t.Fatalf("set user_version: %v", err)
	}

	_ = db.Close()

	_, err = store.Open(t.Context(), dir)
	if !errors.Is(err, store.ErrSchemaTooNew) {
		t.Fatalf("err=%v, want ErrSchemaTooNew", err)
	}
}

func Test_Open_Rejects_Empty_Dir(t *testing.T) {
	t.Parallel()

	_, err := store.Open(context.Background(), "")
	if err == nil {
		t.Fatal("expected error")
	}
}

func Test_Versions_Insert_Latest_History(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	v := openStore(t).Versions()

	_, ok, err := v.Latest(ctx, "a.md", "s1")
	if err != nil || ok {
		t.Fatalf("Latest on empty: ok=%v err=%v", ok, err)
	}

	for _, ver := range []version.Version{
		{Document: "a.md", Section: "s1", Timestamp: "20250101000001", User: "alice", Content: "one"},
		{Document: "a.md", Section: "s1", Timestamp: "20250101000003", User: "bob", Content: "three"},
		{Document: "a.md", Section: "s1", Timestamp: "20250101000002", User: "alice", Content: "two"},
		{Document: "a.md", Section: "s2", Timestamp: "20250101000009", User: "carol", Content: "other"},
	} {
		inserted, err := v.Insert(ctx, ver)
		if err != nil || !inserted {
			t.Fatalf("Insert %s: inserted=%v err=%v", ver.Timestamp, inserted, err)
		}
	}

	inserted, err := v.Insert(ctx, version.Version{Document: "a.md", Section: "s1", Timestamp: "20250101000003", User: "eve", Content: "x"})
	if err != nil {
		t.Fatalf("Insert duplicate: %v", err)
	}

	if inserted {
		t.Error("duplicate timestamp was inserted")
	}

	latest, ok, err := v.Latest(ctx, "a.md", "s1")
	if err != nil || !ok {
		t.Fatalf("Latest: ok=%v err=%v", ok, err)
	}

	if got, want := latest, "20250101000003"; got != want {
		t.Errorf("latest=%q, want=%q", got, want)
	}

	history, err := v.History(ctx, "a.md", "s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}

	want := []version.Entry{
		{Timestamp: "20250101000003", User: "bob"},
		{Timestamp: "20250101000002", User: "alice"},
		{Timestamp: "20250101000001", User: "alice"},
	}
	if diff := cmp.Diff(want, history); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	got, ok, err := v.Get(ctx, "a.md", "s1", "20250101000003")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}

	if got.Content != "three" || got.User != "bob" {
		t.Errorf("Get=%+v", got)
	}

	_, ok, err = v.Get(ctx, "a.md", "s1", "20990101000000")
	if err != nil || ok {
		t.Errorf("Get missing: ok=%v err=%v", ok, err)
	}

	err = v.Delete(ctx, "a.md", "s1", "20250101000003")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}

	latest, _, _ = v.Latest(ctx, "a.md", "s1")
	if got, want := latest, "20250101000002"; got != want {
		t.Errorf("latest after Delete=%q, want=%q", got, want)
	}

	err = v.Delete(ctx, "a.md", "s1", "20990101000000")
	if err != nil {
		t.Errorf("Delete missing: %v", err)
	}

	err = v.DeleteDocument(ctx, "a.md")
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	history, err = v.History(ctx, "a.md", "s2")
	if err != nil || len(history) != 0 {
		t.Errorf("history after delete=%v err=%v", history, err)
	}
}

func Test_Meta_CRUD(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := openStore(t).Meta()
	created := time.Date(2025, 2, 5, 1, 30, 16, 0, time.UTC)

	meta := document.Meta{Name: "b.md", Creator: "alice", CreatedAt: created, Profile: scribe.DefaultProfile()}

	err := m.CreateMeta(ctx, meta)
	if err != nil {
		t.Fatalf("CreateMeta: %v", err)
	}

	err = m.CreateMeta(ctx, meta)
	if !errors.Is(err, scribe.ErrDocumentExists) {
		t.Fatalf("second CreateMeta err=%v, want ErrDocumentExists", err)
	}

	err = m.CreateMeta(ctx, document.Meta{Name: "a.md", Creator: "bob", CreatedAt: created})
	if err != nil {
		t.Fatalf("CreateMeta a.md: %v", err)
	}

	got, ok, err := m.GetMeta(ctx, "b.md")
	if err != nil || !ok {
		t.Fatalf("GetMeta: ok=%v err=%v", ok, err)
	}

	if diff := cmp.Diff(meta, got); diff != "" {
		t.Errorf("meta mismatch (-want +got):\n%s", diff)
	}

	p := scribe.Profile{Role: "editor", Purpose: "release notes", Lang: "German"}

	err = m.SetProfile(ctx, "b.md", p)
	if err != nil {
		t.Fatalf("SetProfile: %v", err)
	}

	err = m.SetProfile(ctx, "missing.md", p)
	if !errors.Is(err, scribe.ErrDocumentNotFound) {
		t.Errorf("SetProfile missing err=%v", err)
	}

	list, err := m.ListMeta(ctx)
	if err != nil {
		t.Fatalf("ListMeta: %v", err)
	}

	if got, want := len(list), 2; got != want {
		t.Fatalf("len=%d, want=%d", got, want)
	}

	if list[0].Name != "a.md" || list[1].Profile != p {
		t.Errorf("list=%+v", list)
	}

	err = m.DeleteMeta(ctx, "b.md")
	if err != nil {
		t.Fatalf("DeleteMeta: %v", err)
	}

	_, ok, err = m.GetMeta(ctx, "b.md")
	if err != nil || ok {
		t.Errorf("GetMeta after delete: ok=%v err=%v", ok, err)
	}
}

func Test_Activity_Lists_Newest_First_With_Limit(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	a := openStore(t).Activity()
	at := time.Date(2025, 2, 5, 1, 30, 16, 0, time.UTC)

	for i, action := range []scribe.Action{scribe.ActionCreate, scribe.ActionLock, scribe.ActionSave} {
		err := a.Record(ctx, scribe.NewEvent(at.Add(time.Duration(i)*time.Second), "a.md", "s1", "alice", action, ""))
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	err := a.Record(ctx, scribe.NewEvent(at, "other.md", "", "bob", scribe.ActionCreate, ""))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	all, err := a.List(ctx, "a.md", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	var actions []scribe.Action
	for _, ev := range all {
		actions = append(actions, ev.Action)
	}

	want := []scribe.Action{scribe.ActionSave, scribe.ActionLock, scribe.ActionCreate}
	if diff := cmp.Diff(want, actions); diff != "" {
		t.Errorf("actions mismatch (-want +got):\n%s", diff)
	}

	limited, err := a.List(ctx, "a.md", 1)
	if err != nil {
		t.Fatalf("List limited: %v", err)
	}

	if len(limited) != 1 || limited[0].Action != scribe.ActionSave {
		t.Errorf("limited=%+v", limited)
	}

	err = a.DeleteDocument(ctx, "a.md")
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	all, err = a.List(ctx, "a.md", 0)
	if err != nil || len(all) != 0 {
		t.Errorf("after delete=%v err=%v", all, err)
	}
}
