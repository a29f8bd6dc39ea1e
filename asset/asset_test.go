package asset

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestAddVersionAppendsAtNextNumber(t *testing.T) {
	vh := NewVersionHistory([]byte("v1"))
	v2 := vh.AddVersion([]byte("v2"))
	require.Equal(t, 2, v2.VersionNumber)

	v3 := vh.AddVersion([]byte("v3"))
	require.Equal(t, 3, v3.VersionNumber)

	latest, ok := vh.Latest()
	require.True(t, ok)
	require.Equal(t, 3, latest.VersionNumber)
	require.Equal(t, []byte("v3"), latest.Content)
}

func TestUpdateLatestVersionOverwritesInPlace(t *testing.T) {
	vh := NewVersionHistory([]byte("v1"))
	vh.AddVersion([]byte("v2"))

	updated := vh.UpdateLatestVersion([]byte("v2-edited"))
	require.Equal(t, 2, updated.VersionNumber)

	require.Equal(t, []int{1, 2}, vh.VersionNumbers())

	latest, ok := vh.Latest()
	require.True(t, ok)
	require.Equal(t, []byte("v2-edited"), latest.Content)
}

func TestUpdateLatestVersionOnEmptyHistoryCreatesVersionOne(t *testing.T) {
	vh := NewVersionHistoryFromVersions(nil)
	v := vh.UpdateLatestVersion([]byte("first"))
	require.Equal(t, 1, v.VersionNumber)
	require.True(t, vh.IsDense())
}

func TestGetVersionNotFound(t *testing.T) {
	vh := NewVersionHistory([]byte("v1"))
	_, err := vh.GetVersion(99)
	require.ErrorIs(t, err, ErrVersionNotFound)
}

// TestVersionHistoryStaysDense verifies property 3 from spec.md §8: after any
// sequence of AddVersion/UpdateLatestVersion operations, the version numbers
// form a dense 1..N sequence and the latest version number equals N.
func TestVersionHistoryStaysDense(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	// true = AddVersion, false = UpdateLatestVersion
	opsGen := gen.SliceOf(gen.Bool())

	properties.Property("version history stays dense under add/update sequences", prop.ForAll(
		func(ops []bool) bool {
			vh := NewVersionHistoryFromVersions(nil)
			for _, addNew := range ops {
				if addNew {
					vh.AddVersion([]byte("x"))
				} else {
					vh.UpdateLatestVersion([]byte("y"))
				}
			}
			if !vh.IsDense() {
				return false
			}
			latest, ok := vh.Latest()
			if !ok {
				return len(ops) == 0
			}
			nums := vh.VersionNumbers()
			return latest.VersionNumber == nums[len(nums)-1]
		},
		opsGen,
	))

	properties.TestingRun(t)
}

func TestNewAssetRejectsUnsupportedType(t *testing.T) {
	_, err := NewAsset("org-1", "NotAType", "user-1", []byte("x"))
	require.Error(t, err)
}

func TestShareLinkPasswordRoundTrip(t *testing.T) {
	sl := &ShareLink{PubliclyAccessible: true}
	require.NoError(t, sl.SetSharePassword("correct horse"))

	require.NoError(t, sl.CheckSharePassword("correct horse"))
	require.ErrorIs(t, sl.CheckSharePassword("wrong"), ErrWrongSharePassword)
}

func TestShareLinkNotPublicRejectsAnyPassword(t *testing.T) {
	sl := &ShareLink{PubliclyAccessible: false}
	require.ErrorIs(t, sl.CheckSharePassword("anything"), ErrShareLinkNotPublic)
}

func TestValidateMessageFileAssetType(t *testing.T) {
	require.NoError(t, ValidateMessageFileAssetType(TypeMetricFile))
	require.NoError(t, ValidateMessageFileAssetType(TypeDashboardFile))
	require.ErrorIs(t, ValidateMessageFileAssetType(TypeReportFile), ErrUnsupportedAssetType)
	require.ErrorIs(t, ValidateMessageFileAssetType(TypeChat), ErrUnsupportedAssetType)
}
