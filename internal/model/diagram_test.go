package model

import (
	"reflect"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestSnapshotCloneIsDeep(t *testing.T) {
	orig := Snapshot{
		Tables: []Table{{
			ID:       "a",
			Name:     "users",
			Columns:  []Column{{ID: "c1", Name: "id", Type: ColumnUUID, IsPrimaryKey: true}},
			Color:    strPtr("#ff0000"),
			Comments: []Annotation{{ID: "n1", Content: "hello"}},
		}},
		Relations: []Relation{{ID: "r1", SourceTableID: "a", TargetTableID: "a"}},
		Viewport:  Viewport{X: 1, Y: 2, Zoom: 1.5},
	}
	cp := orig.Clone()
	if !reflect.DeepEqual(orig, cp) {
		t.Fatalf("clone differs: %+v vs %+v", orig, cp)
	}

	cp.Tables[0].Name = "changed"
	cp.Tables[0].Columns[0].Name = "changed"
	*cp.Tables[0].Color = "#000000"
	cp.Tables[0].Comments[0].Content = "changed"
	cp.Relations[0].Label = "changed"

	if orig.Tables[0].Name != "users" || orig.Tables[0].Columns[0].Name != "id" {
		t.Fatalf("table mutated through clone: %+v", orig.Tables[0])
	}
	if *orig.Tables[0].Color != "#ff0000" {
		t.Fatalf("color mutated through clone: %s", *orig.Tables[0].Color)
	}
	if orig.Tables[0].Comments[0].Content != "hello" {
		t.Fatalf("comment mutated through clone")
	}
	if orig.Relations[0].Label != "" {
		t.Fatalf("relation mutated through clone")
	}
}

func TestValidRelations(t *testing.T) {
	tables := []Table{{ID: "a"}, {ID: "b"}}
	rels := []Relation{
		{ID: "ok", SourceTableID: "a", TargetTableID: "b"},
		{ID: "dangling-src", SourceTableID: "x", TargetTableID: "b"},
		{ID: "dangling-dst", SourceTableID: "a", TargetTableID: "y"},
	}
	got := ValidRelations(tables, rels)
	if len(got) != 1 || got[0].ID != "ok" {
		t.Fatalf("ValidRelations=%v, want only ok", got)
	}
}

func TestColumnTypeValid(t *testing.T) {
	cases := []struct {
		t    ColumnType
		want bool
	}{
		{ColumnInt, true},
		{ColumnUUID, true},
		{"VARCHAR", true},
		{"BLOB", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := tc.t.Valid(); got != tc.want {
			t.Errorf("ColumnType(%q).Valid() = %v, want %v", tc.t, got, tc.want)
		}
	}
}

func TestRoleCanWrite(t *testing.T) {
	if RoleViewer.CanWrite() {
		t.Fatalf("viewer should be read-only")
	}
	for _, r := range []Role{RoleOwner, RoleAdmin, RoleEditor, ""} {
		if !r.CanWrite() {
			t.Fatalf("role %q should be writable", r)
		}
	}
}
