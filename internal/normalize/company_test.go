package normalize

import "testing"

func TestCompanyName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"corporate suffix", "Valve Corporation", "valve"},
		{"regional subsidiary", "Ubisoft Montreal Inc.", "ubisoft"},
		{"multiple fluff words", "Bethesda Game Studios", "bethesda"},
		{"softworks", "Bethesda Softworks LLC", "bethesda"},
		{"location and fluff", "Rockstar Games Toronto", "rockstar"},
		{"nothing to strip", "Nintendo", "nintendo"},
		{"all fluff", "Interactive Entertainment Inc", ""},
		{"empty", "", ""},
		{"fluff word inside a name kept", "Remedy", "remedy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CompanyName(tt.input)
			if result != tt.expected {
				t.Errorf("CompanyName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
