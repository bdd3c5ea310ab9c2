package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"  clip: take/2?  ": "clip- take-2",
		"..hidden":          "hidden",
		"tab\there":         "tabhere",
		"":                  "",
	}
	for in, want := range tests {
		if got := SanitizeFileName(in); got != want {
			t.Errorf("SanitizeFileName(%q) = %q want %q", in, got, want)
		}
	}
}

func TestOutputName(t *testing.T) {
	tests := map[string]string{
		"Beyoncé Live":      "Beyonce_Live",
		"my  clip (final)":  "my_clip_(final)",
		"???":               "item",
		"Crème brûlée: 2/3": "Creme_brulee-_2-3",
	}
	for in, want := range tests {
		if got := OutputName(in); got != want {
			t.Errorf("OutputName(%q) = %q want %q", in, got, want)
		}
	}
}

func TestDisplayTitle(t *testing.T) {
	if got := DisplayTitle("live_at-the  hall"); got != "Live At The Hall" {
		t.Fatalf("unexpected title %q", got)
	}
}
