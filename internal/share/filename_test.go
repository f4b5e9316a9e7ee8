package share_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"shareonair/internal/share"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"Quarterly Report.pdf", "Quarterly Report.pdf"},
		{"../../etc/passwd", "_.._etc_passwd"},
		{`C:\Users\me\notes.txt`, "C:_Users_me_notes.txt"},
		{"nul\x00byte.txt", "nulbyte.txt"},
		{"  .hidden.  ", "hidden"},
		{"...", "unnamed"},
		{"", "unnamed"},
		{"résumé.docx", "résumé.docx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, share.SanitizeFilename(tt.in), tt.in)
	}
}

func TestSanitizeFilenameCapsLength(t *testing.T) {
	got := share.SanitizeFilename(strings.Repeat("a", 300) + ".tar.gz")
	assert.Len(t, got, 255)
	assert.True(t, strings.HasSuffix(got, ".gz"))

	got = share.SanitizeFilename(strings.Repeat("é", 200) + ".txt")
	assert.LessOrEqual(t, len(got), 255)
	assert.True(t, strings.HasSuffix(got, ".txt"))
}
