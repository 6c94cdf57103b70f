package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/wbws/internal/htf"
	"github.com/sawpanic/wbws/internal/reversal"
)

func TestComposeAlignment(t *testing.T) {
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		require bool
		side    Side
		bias    htf.Bias
		want    bool
	}{
		{"strict buy up", true, Buy, htf.Up, true},
		{"strict buy neutral", true, Buy, htf.Neutral, false},
		{"strict buy down", true, Buy, htf.Down, false},
		{"strict sell down", true, Sell, htf.Down, true},
		{"lenient buy neutral", false, Buy, htf.Neutral, true},
		{"lenient buy down", false, Buy, htf.Down, false},
		{"lenient sell up", false, Sell, htf.Up, false},
		{"lenient sell neutral", false, Sell, htf.Neutral, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Composer{RequireAlignment: tt.require}
			sig, ok := c.Compose(reversal.Candidate{Index: 4, Side: tt.side, Strength: 0.8}, ts, htf.Context{Bias: tt.bias})
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.True(t, sig.Survived)
				assert.Equal(t, 4, sig.Index)
				assert.Equal(t, tt.bias, sig.HTFBias)
			}
		})
	}
}

func TestWithVoteDoesNotMutateOriginal(t *testing.T) {
	base := Signal{Index: 1, Side: Buy, Survived: true}

	passed := base.WithVote(FilterVote{Name: "rsi", Decision: Pass})
	vetoed := passed.WithVote(FilterVote{Name: "bollinger", Decision: Veto, Reason: "above_upper_band"})

	assert.Empty(t, base.FilterVotes)
	require.Len(t, passed.FilterVotes, 1)
	assert.True(t, passed.Survived)

	require.Len(t, vetoed.FilterVotes, 2)
	assert.False(t, vetoed.Survived)
	assert.Equal(t, "bollinger", vetoed.RejectedBy)
}

func TestRejectedAndAnnotated(t *testing.T) {
	base := Signal{Survived: true}
	out := base.Rejected(RejectedBySession).Annotated("note")
	assert.False(t, out.Survived)
	assert.Equal(t, "session", out.RejectedBy)
	assert.Equal(t, []string{"note"}, out.Annotations)
	assert.Nil(t, base.Annotations)
}
