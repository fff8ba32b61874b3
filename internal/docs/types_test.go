package docs

import (
	"errors"
	"testing"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    Source
		wantErr bool
	}{
		{
			name: "plain repository URL",
			url:  "https://github.com/movementlabsxyz/movement",
			want: Source{Owner: "movementlabsxyz", Name: "movement", Path: "docs"},
		},
		{
			name: "git suffix stripped",
			url:  "https://github.com/movementlabsxyz/movement-docs.git",
			want: Source{Owner: "movementlabsxyz", Name: "movement-docs", Path: "docs"},
		},
		{
			name:    "non-github host",
			url:     "https://gitlab.com/owner/repo",
			wantErr: true,
		},
		{
			name:    "owner only",
			url:     "https://github.com/movementlabsxyz",
			wantErr: true,
		},
		{
			name:    "path too deep",
			url:     "https://github.com/owner/repo/tree/main",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSource(tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrFetch) {
					t.Errorf("ParseSource(%q) error = %v, want ErrFetch", tt.url, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSource(%q) error = %v", tt.url, err)
			}
			if got != tt.want {
				t.Errorf("ParseSource(%q) = %+v, want %+v", tt.url, got, tt.want)
			}
		})
	}
}

func TestIsDocFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"README.md", true},
		{"guide.mdx", true},
		{"notes.txt", true},
		{"index.rst", true},
		{"UPPER.MD", true},
		{"logo.png", false},
		{"main.go", false},
		{"Makefile", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsDocFile(tt.name); got != tt.want {
			t.Errorf("IsDocFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
