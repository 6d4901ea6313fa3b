package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidPrivacy    = errors.New("invalid post privacy")
	ErrInvalidReaction   = errors.New("invalid reaction")
	ErrInvalidTargetType = errors.New("invalid like target type")
)

var (
	hashtagPattern = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_]+)`)
	mentionPattern = regexp.MustCompile(`(?:^|\s)@([A-Za-z0-9_]{1,30})`)
	linkPattern    = regexp.MustCompile(`https?://[^\s<>"]+`)
)

// PostContent is the body of a post.
type PostContent struct {
	Text      string   `json:"text,omitempty"`
	VideoURL  string   `json:"videoUrl,omitempty"`
	ImageURLs []string `json:"imageUrls,omitempty"`
	Hashtags  []string `json:"hashtags,omitempty"`
	Mentions  []string `json:"mentions,omitempty"`
	Links     []string `json:"links,omitempty"`
}

// Clone returns a deep copy.
func (c PostContent) Clone() PostContent {
	c.ImageURLs = cloneStrings(c.ImageURLs)
	c.Hashtags = cloneStrings(c.Hashtags)
	c.Mentions = cloneStrings(c.Mentions)
	c.Links = cloneStrings(c.Links)
	return c
}

// HasText reports whether the content carries non-blank text.
func (c PostContent) HasText() bool { return strings.TrimSpace(c.Text) != "" }

// HasVideo reports whether the content carries a video link.
func (c PostContent) HasVideo() bool { return strings.TrimSpace(c.VideoURL) != "" }

// BuildPostContent extracts hashtags, mentions and links from text and merges
// them with explicitly supplied ones. Tags and mentions are lowercased and
// de-duplicated in first-seen order.
func BuildPostContent(text, videoURL string, imageURLs, hashtags, mentions []string) PostContent {
	return PostContent{
		Text:      text,
		VideoURL:  strings.TrimSpace(videoURL),
		ImageURLs: cloneStrings(imageURLs),
		Hashtags:  mergeTokens(ExtractHashtags(text), hashtags),
		Mentions:  mergeTokens(ExtractMentions(text), mentions),
		Links:     ExtractLinks(text),
	}
}

// CommentContent is the body of a comment.
type CommentContent struct {
	Text     string   `json:"text"`
	Mentions []string `json:"mentions,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
	Links    []string `json:"links,omitempty"`
}

// Clone returns a deep copy.
func (c CommentContent) Clone() CommentContent {
	c.Mentions = cloneStrings(c.Mentions)
	c.Hashtags = cloneStrings(c.Hashtags)
	c.Links = cloneStrings(c.Links)
	return c
}

// BuildCommentContent extracts mentions, hashtags and links from text.
func BuildCommentContent(text string) CommentContent {
	return CommentContent{
		Text:     text,
		Mentions: ExtractMentions(text),
		Hashtags: ExtractHashtags(text),
		Links:    ExtractLinks(text),
	}
}

// ExtractHashtags returns the lowercased #tags in text without the leading '#'.
func ExtractHashtags(text string) []string {
	return extract(hashtagPattern, text)
}

// ExtractMentions returns the lowercased @handles in text without the leading '@'.
func ExtractMentions(text string) []string {
	return extract(mentionPattern, text)
}

// ExtractLinks returns the http(s) URLs in text, trailing punctuation trimmed.
func ExtractLinks(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range linkPattern.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;:!?)")
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func extract(re *regexp.Regexp, text string) []string {
	var tokens []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		tokens = append(tokens, m[1])
	}
	return mergeTokens(tokens, nil)
}

func mergeTokens(a, b []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			t = strings.ToLower(strings.TrimSpace(strings.TrimLeft(t, "#@")))
			if t == "" {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// PostType is derived from the content and never set directly.
type PostType string

const (
	PostTypeText  PostType = "text"
	PostTypeVideo PostType = "video"
	PostTypeMixed PostType = "mixed"
)

// DerivePostType computes the post type: mixed when text and video are both
// present, video when only video is, text otherwise.
func DerivePostType(c PostContent) PostType {
	switch {
	case c.HasText() && c.HasVideo():
		return PostTypeMixed
	case c.HasVideo():
		return PostTypeVideo
	default:
		return PostTypeText
	}
}

// Privacy controls who can see a post.
type Privacy string

const (
	PrivacyPublic  Privacy = "public"
	PrivacyPrivate Privacy = "private"
	PrivacyFriends Privacy = "friends"
)

// ParsePrivacy validates s; the empty string means public.
func ParsePrivacy(s string) (Privacy, error) {
	p := Privacy(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return PrivacyPublic, nil
	case PrivacyPublic, PrivacyPrivate, PrivacyFriends:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPrivacy, s)
}

// ModerationStatus is shared by posts and comments.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
	ModerationFlagged  ModerationStatus = "flagged"
)

// Edit is one entry of an edit history: the text as it was before the edit.
type Edit struct {
	PreviousText string    `json:"previousText"`
	EditedAt     time.Time `json:"editedAt"`
}

func cloneEdits(in []Edit) []Edit {
	if len(in) == 0 {
		return nil
	}
	out := make([]Edit, len(in))
	copy(out, in)
	return out
}
