package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func combined(itag int, bitrate int64) Variant {
	return Variant{Itag: itag, MimeType: "video/mp4", Bitrate: bitrate, HasVideo: true, HasAudio: true}
}

func videoOnly(itag, height int, bitrate int64, mime string) Variant {
	return Variant{Itag: itag, MimeType: mime, Height: height, Bitrate: bitrate, HasVideo: true}
}

func audioOnly(itag int, bitrate int64, mime string) Variant {
	return Variant{Itag: itag, MimeType: mime, Bitrate: bitrate, HasAudio: true}
}

func TestSelect_ExplicitItag(t *testing.T) {
	variants := []Variant{combined(18, 500000), combined(22, 1500000)}

	v, ok := Select(variants, Constraint{Itag: 18})
	require.True(t, ok)
	assert.Equal(t, 18, v.Itag)

	_, ok = Select(variants, Constraint{Itag: 999})
	assert.False(t, ok)
}

func TestSelect_ExplicitItagRoleMismatch(t *testing.T) {
	variants := []Variant{combined(22, 1500000)}

	_, ok := Select(variants, Constraint{Itag: 22, Role: RoleAudioOnly})
	assert.False(t, ok, "role mismatch must return none, never a different variant")
}

func TestSelect_CombinedHighestBitrate(t *testing.T) {
	// Scenario from the drawing board: 18 vs 22, combined role.
	variants := []Variant{combined(18, 500000), combined(22, 1500000)}

	v, ok := Select(variants, Constraint{Role: RoleCombined})
	require.True(t, ok)
	assert.Equal(t, 22, v.Itag)
}

func TestSelect_EmptyListing(t *testing.T) {
	for _, c := range []Constraint{{}, {Role: RoleCombined}, {Itag: 22}, {QualityLabel: "720p"}} {
		_, ok := Select(nil, c)
		assert.False(t, ok)
	}
}

func TestSelect_RolePredicates(t *testing.T) {
	variants := []Variant{
		combined(22, 1500000),
		videoOnly(137, 1080, 4000000, "video/mp4"),
		audioOnly(140, 128000, "audio/mp4"),
	}

	v, ok := Select(variants, Constraint{Role: RoleVideoOnly})
	require.True(t, ok)
	assert.True(t, v.HasVideo && !v.HasAudio)

	v, ok = Select(variants, Constraint{Role: RoleAudioOnly})
	require.True(t, ok)
	assert.True(t, v.HasAudio && !v.HasVideo)

	v, ok = Select(variants, Constraint{Role: RoleCombined})
	require.True(t, ok)
	assert.True(t, v.HasVideo && v.HasAudio)
}

func TestSelect_VideoRanking(t *testing.T) {
	variants := []Variant{
		videoOnly(134, 360, 300000, "video/mp4"),
		videoOnly(137, 1080, 4000000, "video/mp4"),
		videoOnly(136, 720, 2000000, "video/mp4"),
	}

	v, ok := Select(variants, Constraint{Role: RoleVideoOnly})
	require.True(t, ok)
	assert.Equal(t, 137, v.Itag)
}

func TestSelect_VideoRankingBitrateTiebreak(t *testing.T) {
	variants := []Variant{
		videoOnly(247, 720, 1200000, "video/webm"),
		videoOnly(136, 720, 2000000, "video/mp4"),
	}

	v, ok := Select(variants, Constraint{Role: RoleVideoOnly})
	require.True(t, ok)
	assert.Equal(t, 136, v.Itag)
}

func TestSelect_AudioRankingPrefersAudioBitrate(t *testing.T) {
	variants := []Variant{
		{Itag: 249, MimeType: "audio/webm", Bitrate: 60000, HasAudio: true},
		{Itag: 140, MimeType: "audio/mp4", Bitrate: 50000, AudioBitrate: 131000, HasAudio: true},
	}

	v, ok := Select(variants, Constraint{Role: RoleAudioOnly})
	require.True(t, ok)
	assert.Equal(t, 140, v.Itag)
}

func TestSelect_TiesBreakByListingOrder(t *testing.T) {
	variants := []Variant{combined(18, 1000000), combined(59, 1000000)}

	for range 5 {
		v, ok := Select(variants, Constraint{Role: RoleCombined})
		require.True(t, ok)
		assert.Equal(t, 18, v.Itag, "equal rank must resolve to the earlier listing position")
	}
}

func TestSelect_Deterministic(t *testing.T) {
	variants := []Variant{
		videoOnly(137, 1080, 4000000, "video/mp4"),
		videoOnly(248, 1080, 4000000, "video/webm"),
		videoOnly(136, 720, 2000000, "video/mp4"),
	}
	c := Constraint{Role: RoleVideoOnly}

	first, ok := Select(variants, c)
	require.True(t, ok)
	for range 10 {
		again, ok := Select(variants, c)
		require.True(t, ok)
		assert.Equal(t, first, again)
	}
}

func TestSelect_QualityLabelCaseInsensitive(t *testing.T) {
	variants := []Variant{
		videoOnly(136, 720, 2000000, "video/mp4"),
		videoOnly(137, 1080, 4000000, "video/mp4"),
	}
	variants[0].QualityLabel = "720p"
	variants[1].QualityLabel = "1080p"

	v, ok := Select(variants, Constraint{Role: RoleVideoOnly, QualityLabel: "720P"})
	require.True(t, ok)
	assert.Equal(t, 136, v.Itag)
}

func TestSelect_QualityLabelMissFallsBackToRanking(t *testing.T) {
	variants := []Variant{
		videoOnly(136, 720, 2000000, "video/mp4"),
		videoOnly(137, 1080, 4000000, "video/mp4"),
	}

	v, ok := Select(variants, Constraint{Role: RoleVideoOnly, QualityLabel: "4320p"})
	require.True(t, ok)
	assert.Equal(t, 137, v.Itag)
}

func TestSelect_ContainerSoftFilter(t *testing.T) {
	variants := []Variant{
		videoOnly(248, 1080, 4400000, "video/webm"),
		videoOnly(137, 1080, 4000000, "video/mp4"),
	}

	v, ok := Select(variants, Constraint{Role: RoleVideoOnly, Container: "mp4"})
	require.True(t, ok)
	assert.Equal(t, 137, v.Itag)

	// An impossible preference must not empty the candidate set.
	v, ok = Select(variants, Constraint{Role: RoleVideoOnly, Container: "3gpp"})
	require.True(t, ok)
	assert.Equal(t, 248, v.Itag)
}

func TestSelect_ReturnedCandidateSatisfiesRole(t *testing.T) {
	variants := []Variant{
		combined(22, 9000000),
		videoOnly(137, 1080, 100, "video/mp4"),
		audioOnly(140, 100, "audio/mp4"),
	}

	for _, role := range []Role{RoleCombined, RoleVideoOnly, RoleAudioOnly} {
		v, ok := Select(variants, Constraint{Role: role})
		require.True(t, ok)
		assert.True(t, role.Matches(v), "role %q returned non-matching variant %d", role, v.Itag)
	}
}
