package task

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExpand(t *testing.T) {
	values := map[string]string{
		"target": "songbook.pdf",
		"dir":    "/work",
		"image":  "img/a.jpg",
		"size":   "128x128",
	}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "no placeholders",
			args: []string{"clean"},
			want: []string{"clean"},
		},
		{
			name: "single",
			args: []string{"{target}"},
			want: []string{"songbook.pdf"},
		},
		{
			name: "repeated and embedded",
			args: []string{"{image}", "-resize", "{size}>", "out/{image}"},
			want: []string{"img/a.jpg", "-resize", "128x128>", "out/img/a.jpg"},
		},
		{
			name: "unknown left verbatim",
			args: []string{"{file}", "--dir={dir}"},
			want: []string{"{file}", "--dir=/work"},
		},
		{
			name: "empty args",
			args: []string{},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.args, values)
			if err != nil {
				t.Fatalf("Expand: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Expand mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExpand_MissingValue(t *testing.T) {
	_, err := Expand([]string{"clone", "--branch", "{branch}"}, map[string]string{"branch": ""})

	var mv *MissingValueError
	if !errors.As(err, &mv) {
		t.Fatalf("expected MissingValueError, got %v", err)
	}
	if mv.Placeholder != "branch" {
		t.Errorf("Placeholder = %q, want branch", mv.Placeholder)
	}
}

func TestUses(t *testing.T) {
	if !Uses([]string{"--branch={branch}"}, "branch") {
		t.Error("expected branch to be used")
	}
	if Uses([]string{"pull"}, "branch") {
		t.Error("expected branch not to be used")
	}
}
