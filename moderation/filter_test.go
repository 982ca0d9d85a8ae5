package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilter_BlocksDeniedWord(t *testing.T) {
	req := require.New(t)

	filter, err := NewFilter([]string{"idiot", "scam"})
	req.NoError(err)

	// When a message contains a denied word
	verdict := filter.Classify("what an idiot move")

	// Then it is blocked and the matched word is reported
	req.True(verdict.Blocked)
	req.Equal("idiot", verdict.Reason)
}

func TestFilter_CaseInsensitive(t *testing.T) {
	req := require.New(t)

	filter, err := NewFilter([]string{"stupid"})
	req.NoError(err)

	verdict := filter.Classify("that was a STUPID move")

	req.True(verdict.Blocked)
	req.Equal("stupid", verdict.Reason)
}

func TestFilter_MatchesInsideWords(t *testing.T) {
	req := require.New(t)

	filter, err := NewFilter([]string{"scam"})
	req.NoError(err)

	// Substring matches count: "scammer" contains "scam"
	verdict := filter.Classify("this looks like a scammer to me")

	req.True(verdict.Blocked)
}

func TestFilter_AllowsCleanText(t *testing.T) {
	req := require.New(t)

	filter, err := NewFilter([]string{"idiot", "stupid"})
	req.NoError(err)

	verdict := filter.Classify("heavy traffic near the bridge, avoid the area")

	req.False(verdict.Blocked)
	req.Empty(verdict.Reason)
}

func TestNewEmbeddedFilter_LoadsAllLanguages(t *testing.T) {
	req := require.New(t)

	filter, err := NewEmbeddedFilter()
	req.NoError(err)

	// English and Hindi lists are both embedded
	req.True(filter.Classify("you fool").Blocked)
	req.True(filter.Classify("kya bewakoof ho").Blocked)
	req.False(filter.Classify("road is flooded near sector 12").Blocked)
}

func TestNewFilter_EmptyDenylist(t *testing.T) {
	req := require.New(t)

	_, err := NewFilter(nil)

	req.Error(err)
}
