package conflict

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedcore/internal/model"
)

func TestAnalysis_JSONRoundTrip(t *testing.T) {
	a := candidate("a", at(9, 0), at(10, 0))
	a.Location = "Office"
	a.Resources = []string{"Room 4"}
	a.EnergyLevel = model.EnergyHigh
	b := candidate("b", at(9, 0), at(9, 30))
	b.Resources = []string{"Room 4"}
	c := candidate("c", at(10, 5), at(10, 30))
	c.Location = "Remote"
	c.EnergyLevel = model.EnergyLow
	e := candidate("e", at(11, 0), at(12, 0))
	f := candidate("f", at(11, 30), at(12, 30))
	g := candidate("g", at(13, 0), at(13, 30))
	h := candidate("h", at(13, 35), at(14, 0))

	an := NewDetector(Options{}).Analyze([]*model.EventCandidate{a, b, c, e, f, g, h})
	types := map[Type]bool{}
	for _, r := range an.Conflicts {
		types[r.Type] = true
	}
	for _, want := range []Type{TypeSameTime, TypeOverlap, TypeTravelTime, TypeInsufficientBreak, TypeEnergyMismatch, TypeResourceConflict} {
		require.True(t, types[want], "fixture produces %s", want)
	}

	data, err := json.Marshal(an)
	require.NoError(t, err)
	var back Analysis
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, an, back)
}

func TestRecord_UnmarshalRejectsUnknownType(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"type":"double_booked","detail":{}}`), &r)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"type":"overlap","detail":{"overlap_minutes":"ten"}}`), &r)
	assert.Error(t, err)
}
