package security

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestResolveWithin(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"plain file", "transcript.txt", nil},
		{"nested", "2024/gita.docx", nil},
		{"devanagari name", "गीता_1.pdf", nil},
		{"parent traversal", "../etc/passwd", ErrPathTraversal},
		{"encoded traversal", "%2e%2e/secret", ErrPathTraversal},
		{"windows traversal", "..\\secret", ErrPathTraversal},
		{"empty", "", ErrPathTraversal},
		{"absolute outside", "/etc/passwd", ErrPathOutsideRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWithin(root, tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveWithin(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveWithin(%q) unexpected error: %v", tt.input, err)
			}
			if !strings.HasPrefix(got, root) {
				t.Errorf("ResolveWithin(%q) = %q, not under %q", tt.input, got, root)
			}
		})
	}
}

func TestResolveWithin_AbsoluteInside(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "out.html")

	got, err := ResolveWithin(root, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != path {
		t.Errorf("got %q, want %q", got, path)
	}
}

func TestResolveWithin_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()

	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	if _, err := ResolveWithin(root, "link/file.txt"); !errors.Is(err, ErrSymlinkEscape) {
		t.Errorf("expected ErrSymlinkEscape, got %v", err)
	}
	if IsWithin(root, "link/file.txt") {
		t.Error("IsWithin should reject symlink escape")
	}
}

func TestResolveWithin_SymlinkInside(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "real"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	if !IsWithin(root, "alias/file.txt") {
		t.Error("symlink staying inside root should be allowed")
	}
}

func TestValidatePDF(t *testing.T) {
	pdf := []byte("%PDF-1.7\n%âãÏÓ\n1 0 obj")

	if err := ValidatePDF(pdf, 0); err != nil {
		t.Errorf("valid PDF rejected: %v", err)
	}
	if err := ValidatePDF(append([]byte("junk\r\n"), pdf...), 0); err != nil {
		t.Errorf("PDF with leading junk rejected: %v", err)
	}
	if err := ValidatePDF(nil, 0); !errors.Is(err, ErrEmptyUpload) {
		t.Errorf("expected ErrEmptyUpload, got %v", err)
	}
	if err := ValidatePDF([]byte("\x89PNG\r\n"), 0); !errors.Is(err, ErrNotPDF) {
		t.Errorf("expected ErrNotPDF, got %v", err)
	}
	if err := ValidatePDF(pdf, 4); !errors.Is(err, ErrUploadTooLarge) {
		t.Errorf("expected ErrUploadTooLarge, got %v", err)
	}
}
