package blob

import "testing"

func TestSafeExt(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", ".pdf"},
		{"ARCHIVE.TAR.GZ", ".gz"},
		{"noext", ""},
		{"trailing.", ""},
		{"dir/evil.sh", ".sh"},
		{`C:\Users\me\photo.JPG`, ".jpg"},
		{"weird.p%f", ""},
		{"long.abcdefghijklmnopq", ""},
		{"unicode.pdé", ""},
	}
	for _, tt := range tests {
		if got := safeExt(tt.in); got != tt.want {
			t.Errorf("safeExt(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidRef(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"0b6c2a8e-7c1e-4d0f-9a51-3f1b2c4d5e6f.pdf", true},
		{"plain", true},
		{"", false},
		{".", false},
		{"..", false},
		{"../etc/passwd", false},
		{"a/b", false},
		{`a\b`, false},
		{"nul\x00byte", false},
	}
	for _, tt := range tests {
		if got := validRef(tt.ref); got != tt.want {
			t.Errorf("validRef(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}
