package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `<html><body>
<div id="list" class="meetings upcoming">
  <div class="row">
    <span class="title"> City  Council </span>
    <a href="/agenda/1">Agenda</a>
    <a href="https://other.example/packet.pdf">Packet</a>
  </div>
  <div class="row cancelled">
    <span class="title">Planning Commission (CANCELLED)</span>
  </div>
</div>
</body></html>`

func TestFindAllAndText(t *testing.T) {
	root, err := Parse(doc)
	require.NoError(t, err)

	rows := FindAll(root, ByTagClass("div", "row"))
	require.Len(t, rows, 2)

	title := FindFirst(rows[0], ByTagClass("span", "title"))
	require.NotNil(t, title)
	assert.Equal(t, "City Council", Text(title))
}

func TestFindByID(t *testing.T) {
	root, err := Parse(doc)
	require.NoError(t, err)
	list := FindFirst(root, ByID("list"))
	require.NotNil(t, list)
	assert.True(t, HasClass(list, "upcoming"))
	assert.False(t, HasClass(list, "past"))
}

func TestLinks(t *testing.T) {
	root, err := Parse(doc)
	require.NoError(t, err)
	links := Links(root)
	require.Len(t, links, 2)
	assert.Equal(t, "/agenda/1", links[0][0])
	assert.Equal(t, "Agenda", links[0][1])
}

func TestAbsoluteURL(t *testing.T) {
	cases := []struct {
		base, href, want string
	}{
		{"https://x.example/cal", "/agenda/1", "https://x.example/agenda/1"},
		{"https://x.example", "agenda/1", "https://x.example/agenda/1"},
		{"https://x.example", "https://y.example/p.pdf", "https://y.example/p.pdf"},
		{"https://x.example", "//cdn.example/p.pdf", "https://cdn.example/p.pdf"},
		{"https://x.example", "", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, AbsoluteURL(c.base, c.href), "%s + %s", c.base, c.href)
	}
}
