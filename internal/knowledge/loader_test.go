package knowledge

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDocument_HTML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cards.html")
	page := `<html><head><title>Карты</title><style>p{color:red}</style></head>
<body><h1>Кредитные   карты</h1><p>Льготный период до <b>120</b> дней.</p>
<script>alert("x")</script><ul><li>Без комиссии</li></ul></body></html>`
	os.WriteFile(path, []byte(page), 0o644)

	got, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	for _, want := range []string{"Карты", "Кредитные карты", "Льготный период до 120 дней.", "Без комиссии"} {
		if !strings.Contains(got, want) {
			t.Errorf("text %q missing %q", got, want)
		}
	}
	for _, bad := range []string{"alert", "color:red"} {
		if strings.Contains(got, bad) {
			t.Errorf("text %q should not contain %q", got, bad)
		}
	}
}

func TestLoadDocument_Markdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "general.md")
	os.WriteFile(path, []byte("\n# Банк\n\nТекст\n\n"), 0o644)
	got, err := LoadDocument(path)
	if err != nil || got != "# Банк\n\nТекст" {
		t.Errorf("LoadDocument = %q, %v", got, err)
	}
}

func TestLoadDocument_Unsupported(t *testing.T) {
	_, err := LoadDocument("notes.docx")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestLoadDocument_InvalidPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	os.WriteFile(path, []byte("this is not a pdf"), 0o644)
	if _, err := LoadDocument(path); err == nil {
		t.Error("expected error for invalid pdf")
	}
}

func TestResolve_PrefersTxt(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.md"), []byte("md"), 0o644)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("txt"), 0o644)
	p, ok := resolve(dir, "a")
	if !ok || filepath.Base(p) != "a.txt" {
		t.Errorf("resolve = %q, %v; want a.txt", p, ok)
	}
}
