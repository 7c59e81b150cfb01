package workitem

import (
	"testing"

	ignore "github.com/sabhiram/go-gitignore"
)

func compilePatterns(patterns []string) *ignore.GitIgnore {
	return ignore.CompileIgnoreLines(patterns...)
}

func TestFilesFullyIgnored(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		patterns []string
		useNilGI bool
		want     bool
	}{
		{
			name:     "nil matcher returns false",
			files:    []string{"foo.go"},
			useNilGI: true,
			want:     false,
		},
		{
			name:     "empty file list returns false",
			files:    []string{},
			patterns: []string{"*.md"},
			want:     false,
		},
		{
			name:     "all files match patterns",
			files:    []string{"docs/README.md", "docs/guide.md"},
			patterns: []string{"docs/"},
			want:     true,
		},
		{
			name:     "mixed files returns false",
			files:    []string{"docs/README.md", "main.go"},
			patterns: []string{"docs/"},
			want:     false,
		},
		{
			name:     "glob patterns work",
			files:    []string{"README.md", "CHANGELOG.md"},
			patterns: []string{"*.md"},
			want:     true,
		},
		{
			name:     "nested paths",
			files:    []string{"vendor/data.json", "vendor/config.json"},
			patterns: []string{"vendor/"},
			want:     true,
		},
		{
			name:     "unmatched file among matched",
			files:    []string{"vendor/data.json", "src/main.go"},
			patterns: []string{"vendor/"},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gi *ignore.GitIgnore
			if !tt.useNilGI {
				gi = compilePatterns(tt.patterns)
			}
			got := FilesFullyIgnored(tt.files, gi)
			if got != tt.want {
				t.Errorf("FilesFullyIgnored(%v) = %v, want %v", tt.files, got, tt.want)
			}
		})
	}
}

func TestFilterIgnored(t *testing.T) {
	items := []Item{
		{ID: "a", TargetFiles: []string{"docs/a.md"}},
		{ID: "b", TargetFiles: []string{"src/b.go"}},
		{ID: "c", TargetFiles: []string{"docs/c.md", "src/c.go"}},
	}
	gi := compilePatterns([]string{"docs/"})

	filtered := FilterIgnored(items, gi)
	if len(filtered) != 2 {
		t.Fatalf("expected 2 items to survive, got %d", len(filtered))
	}
	for _, it := range filtered {
		if it.ID == "a" {
			t.Fatalf("item %q should have been filtered out", it.ID)
		}
	}
}

func TestComputeIDStable(t *testing.T) {
	id1 := ComputeID(SourceLint, []string{"a.go", "b.go"}, "fix lint")
	id2 := ComputeID(SourceLint, []string{"a.go", "b.go"}, "fix lint")
	if id1 != id2 {
		t.Fatalf("ComputeID not stable: %q != %q", id1, id2)
	}

	id3 := ComputeID(SourceLint, []string{"a.go", "b.go"}, "fix lint differently")
	if id1 == id3 {
		t.Fatalf("ComputeID collided for different titles")
	}
}

func TestComplexityOutputMultiplier(t *testing.T) {
	cases := map[Complexity]float64{
		ComplexityTrivial:  0.5,
		ComplexitySimple:   1.0,
		ComplexityModerate: 2.0,
		ComplexityComplex:  3.5,
	}
	for c, want := range cases {
		if got := c.OutputMultiplier(); got != want {
			t.Errorf("%s.OutputMultiplier() = %v, want %v", c, got, want)
		}
	}
}
