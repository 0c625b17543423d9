package tileset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	in := "x,y,description,base64\n" +
		"0,0,\"a red potion, bubbling\",iVBORw0\n" +
		"3, 7 ,rusty sword,\n"

	rows, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	want := Row{Description: "a red potion, bubbling", X: 0, Y: 0, Image: "iVBORw0"}
	if rows[0] != want {
		t.Fatalf("expected %+v, got %+v", want, rows[0])
	}
	if rows[1].X != 3 || rows[1].Y != 7 || rows[1].Image != "" {
		t.Fatalf("unexpected second row %+v", rows[1])
	}
}

func TestParseImageColumnAlias(t *testing.T) {
	rows, err := Parse(strings.NewReader("description,x,y,image\nstone wall,1,2,abc\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rows[0].Image != "abc" {
		t.Fatalf("expected image column to be read, got %q", rows[0].Image)
	}
}

func TestParseWithoutImageColumn(t *testing.T) {
	rows, err := Parse(strings.NewReader("description,x,y\nmossy wall,2,3\ncracked floor,4,0\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.Image != "" {
			t.Fatalf("row %d: expected empty image, got %q", i, row.Image)
		}
	}
	if rows[0].X != 2 || rows[0].Y != 3 {
		t.Fatalf("expected atlas position 2,3, got %d,%d", rows[0].X, rows[0].Y)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{name: "empty file", in: "", want: ErrMissingColumn},
		{name: "missing y", in: "description,x\nfoo,1\n", want: ErrMissingColumn},
		{name: "blank description", in: "description,x,y\n  ,1,2\n", want: ErrBlankDescription},
		{name: "negative coordinate", in: "description,x,y\nfoo,-1,2\n", want: ErrBadCoordinate},
		{name: "non integer coordinate", in: "description,x,y\nfoo,1,two\n", want: ErrBadCoordinate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.in))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.csv")
	if err := os.WriteFile(path, []byte("description,x,y\ngolden key,4,5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 1 || rows[0].Description != "golden key" {
		t.Fatalf("unexpected rows %+v", rows)
	}

	if _, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
