package navigation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/session"
)

func TestParseZLinkExpression_BarePath(t *testing.T) {
	path, perms, err := ParseZLinkExpression(`zLink("@.UI.zUI.index")`)
	require.NoError(t, err)
	assert.Equal(t, "@.UI.zUI.index", path)
	assert.Empty(t, perms)
}

func TestParseZLinkExpression_WithPermissions(t *testing.T) {
	path, perms, err := ParseZLinkExpression(`zLink("@.Admin.Panel.index", {role: "admin", active: true})`)
	require.NoError(t, err)
	assert.Equal(t, "@.Admin.Panel.index", path)
	assert.Equal(t, "admin", perms["role"])
	assert.Equal(t, true, perms["active"])
}

func TestParseZLinkExpression_NotAzLinkReturnsError(t *testing.T) {
	_, _, err := ParseZLinkExpression(`"@.UI.zUI.index"`)
	assert.Error(t, err)
}

func TestParseZLinkExpression_UnterminatedPermissionBlockErrors(t *testing.T) {
	_, _, err := ParseZLinkExpression(`zLink("@.UI.zUI.index", {role: "admin"`)
	assert.Error(t, err)
}

func TestCheckPermissions_EmptyRequirementAlwaysPasses(t *testing.T) {
	assert.True(t, CheckPermissions(nil, session.Auth{}))
}

func TestCheckPermissions_AllKeysMustMatch(t *testing.T) {
	required := map[string]interface{}{"role": "admin", "dept": "eng"}
	auth := session.Auth{Claims: map[string]interface{}{"role": "admin", "dept": "eng"}}
	assert.True(t, CheckPermissions(required, auth))
}

func TestCheckPermissions_AnyMismatchDenies(t *testing.T) {
	required := map[string]interface{}{"role": "admin", "dept": "eng"}
	auth := session.Auth{Claims: map[string]interface{}{"role": "admin", "dept": "sales"}}
	assert.False(t, CheckPermissions(required, auth))
}

func TestCheckPermissions_MissingClaimDenies(t *testing.T) {
	required := map[string]interface{}{"role": "admin"}
	auth := session.Auth{Claims: map[string]interface{}{}}
	assert.False(t, CheckPermissions(required, auth))
}

func TestResolveZPath_DeepPathSplitsFolderFileBlock(t *testing.T) {
	zpath := ResolveZPath("@.UI.Admin.Panel.index")
	assert.Equal(t, "@.UI", zpath.Folder)
	assert.Equal(t, "Admin.Panel", zpath.File)
	assert.Equal(t, "index", zpath.Block)
}

func TestResolveZPath_ShortPathHasEmptyFolder(t *testing.T) {
	zpath := ResolveZPath("Panel.index")
	assert.Equal(t, "", zpath.Folder)
	assert.Equal(t, "Panel", zpath.File)
	assert.Equal(t, "index", zpath.Block)
}

func TestResolve_GrantsWhenPermissionsMatch(t *testing.T) {
	auth := session.Auth{Claims: map[string]interface{}{"role": "admin"}}
	zpath, err := Resolve(`zLink("@.UI.Admin.Panel.index", {role: "admin"})`, auth)
	require.NoError(t, err)
	assert.Equal(t, "index", zpath.Block)
}

func TestResolve_DeniesWhenPermissionsMismatch(t *testing.T) {
	auth := session.Auth{Claims: map[string]interface{}{"role": "viewer"}}
	_, err := Resolve(`zLink("@.UI.Admin.Panel.index", {role: "admin"})`, auth)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestScopeToZPath_RoundTripsResolveZPathOutput(t *testing.T) {
	want := session.ZPath{Folder: "@.UI", File: "Admin.Panel", Block: "index"}
	got, ok := ScopeToZPath("@.UI.Admin.Panel.index")
	require.True(t, ok)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ScopeToZPath mismatch (-want +got):\n%s", diff)
	}
}

func TestScopeToZPath_TwoSegmentScopeReportsNotOK(t *testing.T) {
	got, ok := ScopeToZPath("Panel.index")
	require.False(t, ok) // fewer than 3 dotted segments
	if diff := cmp.Diff(session.ZPath{}, got); diff != "" {
		t.Errorf("ScopeToZPath mismatch (-want +got):\n%s", diff)
	}
}

func TestScopeToZPath_SingleSegmentReportsNotOK(t *testing.T) {
	_, ok := ScopeToZPath("index")
	assert.False(t, ok)
}
