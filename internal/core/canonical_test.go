package core

import "testing"

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ahmed_Al-Salmi", "ahmed al salmi"},
		{"ahmed al salmi", "ahmed al salmi"},
		{"  Sara  ", "sara"},
		{"-_-", ""},
		{"", ""},
		{"JASIM", "jasim"},
		{"جاسم", "جاسم"},
	}
	for _, tt := range tests {
		if got := CanonicalName(tt.in); got != tt.want {
			t.Errorf("CanonicalName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"C -48", "c-48"},
		{"c-48", "c-48"},
		{" X 1 2 ", "x12"},
		{"\tA\n", "a"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := CanonicalCode(tt.in); got != tt.want {
			t.Errorf("CanonicalCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsValidExternalID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"123", false},
		{"123456789012345", true},
		{"1234567890123456789", true},
		{"12345678901234a", false},
		{" 123456789012345 ", true},
		{"", false},
		{"١٢٣٤٥٦٧٨٩٠١٢٣٤٥", false}, // Arabic-Indic digits are not ASCII
	}
	for _, tt := range tests {
		if got := IsValidExternalID(tt.in); got != tt.want {
			t.Errorf("IsValidExternalID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func FuzzCanonicalName(f *testing.F) {
	for _, seed := range []string{"Ahmed_Al-Salmi", "  x ", "", "-_", "ÀÉ_ß", "جاسم الصالمي"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, s string) {
		once := CanonicalName(s)
		if twice := CanonicalName(once); twice != once {
			t.Fatalf("CanonicalName not idempotent: %q -> %q -> %q", s, once, twice)
		}
	})
}

func FuzzCanonicalCode(f *testing.F) {
	for _, seed := range []string{"C -48", "c-48", " ", "", "Ǆ 1", "ك-١"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, s string) {
		once := CanonicalCode(s)
		if twice := CanonicalCode(once); twice != once {
			t.Fatalf("CanonicalCode not idempotent: %q -> %q -> %q", s, once, twice)
		}
	})
}
