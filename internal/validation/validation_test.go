package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateUsername(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"Valid", "test_user123", false},
		{"Exactly Min Length", "abc", false},
		{"Exactly Max Length", strings.Repeat("a", 30), false},
		{"Too Short", "tu", true},
		{"Too Long", strings.Repeat("a", 31), true},
		{"Illegal Chars", "user@123", true},
		{"Dash", "user-name", true},
		{"Empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	t.Parallel()
	emailAt254 := strings.Repeat("a", 64) + "@" + strings.Repeat("b", 185) + ".com"
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"Valid", "test@example.com", false},
		{"Exactly 254 Characters", emailAt254, false},
		{"Too Long", "a" + emailAt254, true},
		{"Invalid Format", "not-an-email", true},
		{"Missing Domain", "user@", true},
		{"Missing TLD", "user@example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTextLength(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateTextLength("Post", strings.Repeat("x", MaxPostTextLength), MaxPostTextLength))
	assert.Error(t, ValidateTextLength("Post", strings.Repeat("x", MaxPostTextLength+1), MaxPostTextLength))
	// Runes, not bytes.
	assert.NoError(t, ValidateTextLength("Comment", strings.Repeat("é", MaxCommentTextLength), MaxCommentTextLength))
}

func TestValidateVideoURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://www.youtube.com/watch?v=abc123", false},
		{"https://youtu.be/abc123", false},
		{"https://player.vimeo.com/video/1", false},
		{"https://vimeo.com/123456", false},
		{"https://www.tiktok.com/@u/video/1", false},
		{"https://example.com/video.mp4", true},
		{"https://notyoutube.com/watch", true},
		{"ftp://youtube.com/x", true},
		{"not-a-url", true},
		{"", true},
	}

	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			err := ValidateVideoURL(tc.url, DefaultVideoHosts)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHostAllowed_ExtraHost(t *testing.T) {
	t.Parallel()
	hosts := append([]string{"cdn.facefeed.test"}, DefaultVideoHosts...)
	assert.True(t, HostAllowed("cdn.facefeed.test", hosts))
	assert.False(t, HostAllowed("facefeed.test", hosts))
}
