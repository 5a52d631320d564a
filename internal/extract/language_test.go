package extract

import "testing"

func TestForPath_RoutesByExtension(t *testing.T) {
	cases := []struct {
		path     string
		wantLang Language
		wantOK   bool
	}{
		{"app/views.py", Python, true},
		{"app/server.ts", TypeScript, true},
		{"app/Component.tsx", TypeScript, true},
		{"app/index.js", JavaScript, true},
		{"app/Widget.jsx", JavaScript, true},
		{"infra/main.tf", HCL, true},
		{"README.md", "", false},
	}
	for _, c := range cases {
		ex, ok := ForPath(c.path)
		if ok != c.wantOK {
			t.Fatalf("ForPath(%q) ok = %v, want %v", c.path, ok, c.wantOK)
		}
		if ok && ex.Language() != c.wantLang {
			t.Errorf("ForPath(%q) language = %v, want %v", c.path, ex.Language(), c.wantLang)
		}
	}
}

func TestForPath_PythonNeverFallsThroughToGeneric(t *testing.T) {
	ex, ok := ForPath("models.py")
	if !ok {
		t.Fatal("expected a Python extractor")
	}
	if _, isPython := ex.(PythonExtractor); !isPython {
		t.Errorf("expected PythonExtractor, got %T", ex)
	}
}
