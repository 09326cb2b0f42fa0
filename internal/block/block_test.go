package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_PreservesKeyOrderAndSkipsMetadata(t *testing.T) {
	doc := []byte(`
MainMenu:
  _data:
    user: "@.models.zSchema.users"
  A: zDisplay text a
  "M~*":
    zDisplay:
      event: menu
  B: zDisplay text b
`)
	blocks, err := Load(doc)
	require.NoError(t, err)
	b := blocks["MainMenu"]
	require.NotNil(t, b)

	assert.Equal(t, []string{"_data", "A", "M~*", "B"}, b.Keys())
	assert.Equal(t, []string{"A", "M~*", "B"}, b.ExecutableKeys())
}

func TestClassifyKey(t *testing.T) {
	s := ClassifyKey("~Admin*")
	assert.True(t, s.Anchored)
	assert.True(t, s.Menu)
	assert.False(t, s.Gate)

	s = ClassifyKey("askPassword!")
	assert.True(t, s.Gate)
	assert.False(t, s.Menu)

	s = ClassifyKey("^Form")
	assert.True(t, s.Interactive)
}

func TestIsAnchoredMenu(t *testing.T) {
	assert.True(t, IsAnchoredMenu("Home~*"))
	assert.False(t, IsAnchoredMenu("Home~"))
	assert.False(t, IsAnchoredMenu("Home*"))
}

func TestShorthandExpansion_Header(t *testing.T) {
	doc := []byte(`
Page:
  zH3:
    content: "Section"
`)
	blocks, err := Load(doc)
	require.NoError(t, err)
	step, ok := blocks["Page"].Get("zH3")
	require.True(t, ok)
	require.True(t, step.IsDispatch())
	assert.Equal(t, KindDisplay, step.Dispatch.Kind)
	assert.Equal(t, "header", step.Dispatch.Fields["event"])
	assert.Equal(t, 3, step.Dispatch.Fields["indent"])
	assert.Equal(t, "Section", step.Dispatch.Fields["content"])
}

func TestShorthandExpansion_UserIndentWins(t *testing.T) {
	doc := []byte(`
Page:
  zH2:
    indent: 5
`)
	blocks, err := Load(doc)
	require.NoError(t, err)
	step, _ := blocks["Page"].Get("zH2")
	assert.Equal(t, 5, step.Dispatch.Fields["indent"])
}

func TestShorthandExpansion_PluralPassesThrough(t *testing.T) {
	doc := []byte(`
Page:
  zUL:
    zTexts: ["a", "b"]
`)
	blocks, err := Load(doc)
	require.NoError(t, err)
	step, ok := blocks["Page"].Get("zUL")
	require.True(t, ok)
	require.True(t, step.IsNested(), "plural shorthand must pass through unwrapped")
}

func TestDispatchObjectShapes(t *testing.T) {
	doc := []byte(`
Block:
  goLink:
    zLink: "@.UI.zUI.index"
  showUser:
    zData:
      model: users
`)
	blocks, err := Load(doc)
	require.NoError(t, err)
	link, _ := blocks["Block"].Get("goLink")
	require.True(t, link.IsDispatch())
	assert.Equal(t, KindLink, link.Dispatch.Kind)

	data, _ := blocks["Block"].Get("showUser")
	assert.Equal(t, KindData, data.Dispatch.Kind)
}

func TestRBACAttachedToNestedBlock(t *testing.T) {
	doc := []byte(`
Block:
  "^Admin":
    zRBAC:
      require_role: admin
    zDisplay:
      event: text
`)
	blocks, err := Load(doc)
	require.NoError(t, err)
	step, ok := blocks["Block"].Get("^Admin")
	require.True(t, ok)
	rbac := step.RBAC()
	require.NotNil(t, rbac)
	assert.Equal(t, []string{"admin"}, rbac.RequireRole)
}
