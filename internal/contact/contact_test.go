package contact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"0901234567", "0901234567", true},
		{"090 123 4567", "0901234567", true},
		{"(090) 123-45.67", "0901234567", true},
		{"+84 901 234 567", "0901234567", true},
		{"02812345678", "02812345678", true},
		{"090123456", "090123456", false},
		{"090123456789", "090123456789", false},
		{"09012345ab", "09012345ab", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizePhone(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.valid, ok)
		})
	}
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("an.nguyen+shop@example.com.vn"))
	assert.False(t, ValidEmail("an.nguyen@example"))
	assert.False(t, ValidEmail("not an email"))
	assert.Equal(t, "a@example.com", NormalizeEmail("  A@Example.COM "))
}
