package utils

import "testing"

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		current, target string
		want            int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.2.0", "1.1.9", 1},
		{"0.9", "1.0.0", -1},
		{"1.0.0.1", "1.0.0", 1},
		{"2", "1.9.9", 1},
		{"", "1.0", -1},
		{"1.0-beta", "1.0", 0},
	}
	for _, tc := range cases {
		if got := CompareVersions(tc.current, tc.target); got != tc.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", tc.current, tc.target, got, tc.want)
		}
	}
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(0)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if len(code) != 6 {
		t.Errorf("default length = %d, want 6", len(code))
	}
	code, err = GenerateCode(10)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if len(code) != 10 {
		t.Errorf("length = %d, want 10", len(code))
	}
	for _, r := range code {
		if r == '0' || r == 'O' || r == '1' || r == 'I' {
			t.Errorf("code %q contains ambiguous character %q", code, r)
		}
	}
}
