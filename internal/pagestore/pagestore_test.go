package pagestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jchilling/TCGweb-health-checker/pkg/types"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`News / Updates: "2024"`, "News_Updates_2024"},
		{"  spaced   out  ", "spaced_out"},
		{"a<b>c|d?e*f", "a_b_c_d_e_f"},
		{"關於我們 - 市政府", "關於我們_市政府"},
		{"///", "untitled"},
	}
	for _, tc := range cases {
		if got := SanitizeName(tc.in); got != tc.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeNameCapsLength(t *testing.T) {
	long := make([]rune, 400)
	for i := range long {
		long[i] = 'x'
	}
	got := SanitizeName(string(long))
	if len([]rune(got)) != 150 {
		t.Fatalf("sanitized length = %d, want 150", len([]rune(got)))
	}
}

func TestSaveTopLevelAndChildPages(t *testing.T) {
	root := t.TempDir()
	store := New(root, true)

	rel, err := store.Save("", "Home", []byte("<html>home</html>"))
	if err != nil {
		t.Fatal(err)
	}
	if rel != "Home.html" {
		t.Fatalf("top-level path = %q", rel)
	}

	rel, err = store.Save("Home", "About Us", []byte("<html>about</html>"))
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join("Home_links", "About_Us.html")
	if rel != want {
		t.Fatalf("child path = %q, want %q", rel, want)
	}

	body, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "<html>about</html>" {
		t.Fatalf("stored body = %q", body)
	}
}

func TestSaveCollisionsGetCounterSuffix(t *testing.T) {
	store := New(t.TempDir(), true)

	first, err := store.Save("List", "Notice", []byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Save("List", "Notice", []byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("collision not resolved: both %q", first)
	}
	if filepath.Base(second) != "Notice_2.html" {
		t.Fatalf("second path = %q", second)
	}
}

func TestSaveDisabledReturnsMarker(t *testing.T) {
	store := New(t.TempDir(), false)
	rel, err := store.Save("", "Home", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if rel != types.MarkerNotSaved {
		t.Fatalf("path = %q, want marker", rel)
	}
}
