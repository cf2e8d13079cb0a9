package document

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabora-online/kitworker/internal/engine/enginefake"
	"github.com/collabora-online/kitworker/internal/session"
	"github.com/collabora-online/kitworker/internal/tilequeue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDocument(t *testing.T, office *enginefake.Office) (*Document, *session.Registry) {
	t.Helper()
	registry := session.New(nil)
	queue := tilequeue.New()
	doc := New(discardLogger(), office, "file:///test.odt", "/jail/test.odt", "dockey", registry, queue)
	return doc, registry
}

func TestFirstLoadSucceeds(t *testing.T) {
	office := enginefake.New()
	doc, _ := newTestDocument(t, office)

	res := doc.Load(nil, "alice")
	require.Nil(t, res.Err)
	assert.Equal(t, 1, res.ViewID)
	assert.Equal(t, 1, doc.ClientViews())
}

func TestSecondViewJoinsExistingDocument(t *testing.T) {
	office := enginefake.New()
	doc, _ := newTestDocument(t, office)

	res1 := doc.Load(nil, "alice")
	require.Nil(t, res1.Err)
	res2 := doc.Load(nil, "bob")
	require.Nil(t, res2.Err)

	assert.NotEqual(t, res1.ViewID, res2.ViewID)
	assert.Equal(t, 2, doc.ClientViews())
}

func TestPasswordRequiredOnFirstLoad(t *testing.T) {
	office := enginefake.New()
	office.Password = "secret"
	doc, _ := newTestDocument(t, office)

	res := doc.Load(nil, "alice")
	require.NotNil(t, res.Err)
	assert.Equal(t, "passwordrequired:to-view", res.Err.Kind)
}

func TestWrongPasswordSecondAttempt(t *testing.T) {
	office := enginefake.New()
	office.Password = "secret"
	doc, _ := newTestDocument(t, office)

	wrong := "nope"
	res := doc.Load(&wrong, "alice")
	require.NotNil(t, res.Err)
	assert.Equal(t, "wrongpassword", res.Err.Kind)
}

func TestUnloadRemovesView(t *testing.T) {
	office := enginefake.New()
	doc, _ := newTestDocument(t, office)

	res := doc.Load(nil, "alice")
	require.Nil(t, res.Err)
	assert.Equal(t, 1, doc.ClientViews())

	doc.Unload(res.ViewID)
	assert.Equal(t, 0, doc.ClientViews())
}

func TestCursorPayloadParsing(t *testing.T) {
	x, _, _, h, ok := parseCommaCursor("10,20,30,40")
	require.True(t, ok)
	assert.Equal(t, int64(10), x)
	assert.Equal(t, int64(40), h)

	_, _, _, _, ok = parseCommaCursor("EMPTY")
	assert.False(t, ok)

	_, _, _, _, ok = parseCommaCursor("1,2,3")
	assert.False(t, ok)

	view, part, x2, y2, w2, h2, ok := parseJSONCursor(`{"viewId":3,"part":1,"rectangle":"1,2,3,4"}`)
	require.True(t, ok)
	assert.Equal(t, 3, view)
	assert.Equal(t, 1, part)
	assert.Equal(t, int64(1), x2)
	assert.Equal(t, int64(4), h2)
	_ = y2
	_ = w2
}
