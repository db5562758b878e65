package store

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", ContentType("logo.png", nil))
	assert.Equal(t, "image/png", ContentType("LOGO.PNG", nil))
	assert.Contains(t, ContentType("notes.txt", nil), "text/plain")
	assert.Equal(t, DefaultContentType, ContentType("blob", nil))

	// Unknown extension falls back to sniffing the content
	pdf := []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	assert.Equal(t, "application/pdf", ContentType("report.unknownext", pdf))
}

func TestRenditionFor(t *testing.T) {
	image := &Info{Path: "/a.png", ContentType: "image/png"}
	text := &Info{Path: "/a.txt", ContentType: "text/plain; charset=utf-8"}
	blob := &Info{Path: "/a.bin", ContentType: DefaultContentType}

	ct, limit, err := RenditionFor(RenditionThumbnail, image, 0)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, int64(-1), limit)

	_, _, err = RenditionFor(RenditionThumbnail, text, 0)
	assert.ErrorIs(t, err, ErrNotSupported)

	ct, limit, err = RenditionFor(RenditionPreview, text, 0)
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", ct)
	assert.Equal(t, int64(DefaultPreviewBytes), limit)

	_, limit, err = RenditionFor(RenditionPreview, text, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), limit)

	_, _, err = RenditionFor(RenditionPreview, blob, 0)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestPatternMatch(t *testing.T) {
	literal := LiteralPattern("port")
	assert.True(t, literal.Match("report.pdf"))
	assert.False(t, literal.Match("notes.txt"))

	// Regex metacharacters in a literal are not interpreted
	assert.False(t, LiteralPattern("a.c").Match("abc"))
	assert.True(t, LiteralPattern("a.c").Match("xa.cx"))

	re := RegexpPattern(regexp.MustCompile(`^img_\d+\.png$`))
	assert.True(t, re.Match("img_42.png"))
	assert.False(t, re.Match("img_x.png"))

	assert.True(t, Pattern{}.Match("anything"))
}

func TestInfoPatch(t *testing.T) {
	info := &Info{Type: NodeTypeAsset}
	assert.True(t, InfoPatch{}.Empty())

	out := true
	who := "alice"
	patch := InfoPatch{CheckedOut: &out, CheckedOutBy: &who}
	assert.False(t, patch.Empty())

	patch.Apply(info)
	assert.True(t, info.CheckedOut)
	assert.Equal(t, "alice", info.CheckedOutBy)

	in := false
	InfoPatch{CheckedOut: &in}.Apply(info)
	assert.False(t, info.CheckedOut)
	assert.Equal(t, "alice", info.CheckedOutBy)
}

func TestNextModified(t *testing.T) {
	prev := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	later := prev.Add(time.Second)
	assert.Equal(t, later, NextModified(prev, later))

	next := NextModified(prev, prev)
	assert.True(t, next.After(prev))
}
