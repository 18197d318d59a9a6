package store

import (
	"errors"
	"testing"

	"github.com/dmarkelov/notesync/internal/common"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path string
		ok   bool
	}{
		{"notes/a.md", true},
		{"a.md", true},
		{"deep/nested/dir/file.txt", true},
		{"", false},
		{"/etc/passwd", false},
		{"../outside.md", false},
		{"notes/../../outside.md", false},
		{"notes\\a.md", false},
		{".", false},
		{"..", false},
		{"notes//a.md", false},
		{"notes/./a.md", false},
	}

	for _, tt := range tests {
		err := ValidatePath(tt.path)
		if tt.ok && err != nil {
			t.Errorf("ValidatePath(%q) = %v, want nil", tt.path, err)
		}
		if !tt.ok {
			if err == nil {
				t.Errorf("ValidatePath(%q) = nil, want error", tt.path)
			} else if !errors.Is(err, common.ErrValidation) {
				t.Errorf("ValidatePath(%q) = %v, want ErrValidation", tt.path, err)
			}
		}
	}
}

func TestIgnored(t *testing.T) {
	patterns := []string{"*.tmp", "drafts/*"}

	tests := []struct {
		path string
		want bool
	}{
		{"notes/a.md", false},
		{"a.tmp", true},
		{"notes/a.tmp", true},
		{"drafts/x.md", true},
		{".git/config", true},
		{"notes/.hidden", true},
		{"drafts.md", false},
	}

	for _, tt := range tests {
		if got := Ignored(tt.path, patterns); got != tt.want {
			t.Errorf("Ignored(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
