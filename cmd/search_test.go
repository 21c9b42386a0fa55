package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ca-srg/halalfinder/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinateValue(t *testing.T) {
	var v coordinateValue
	assert.Equal(t, "", v.String())
	assert.Equal(t, "lat,lng", v.Type())

	require.NoError(t, v.Set("40.7128,-74.0060"))
	assert.True(t, v.set)
	assert.Equal(t, types.Coordinate{Lat: 40.7128, Lng: -74.006}, v.coord)
	assert.Equal(t, "40.712800,-74.006000", v.String())

	assert.Error(t, v.Set("north"))
	assert.Error(t, v.Set("95,0"))
}

func TestSearchFlagParsing(t *testing.T) {
	t.Cleanup(func() { searchAt = coordinateValue{} })

	require.NoError(t, searchCmd.Flags().Set("at", "51.5074,-0.1278"))
	assert.Equal(t, 51.5074, searchAt.coord.Lat)
	assert.Error(t, searchCmd.Flags().Set("at", "not,a-coordinate"))
}

func TestResolveSearchInput(t *testing.T) {
	at := coordinateValue{coord: types.Coordinate{Lat: 1, Lng: 2}, set: true}

	input, err := resolveSearchInput("Astoria", coordinateValue{}, false)
	require.NoError(t, err)
	assert.Equal(t, inputAddress, input)

	input, err = resolveSearchInput("", at, false)
	require.NoError(t, err)
	assert.Equal(t, inputCoordinate, input)

	input, err = resolveSearchInput("  ", coordinateValue{}, true)
	require.NoError(t, err)
	assert.Equal(t, inputDevice, input)

	_, err = resolveSearchInput("", coordinateValue{}, false)
	assert.Error(t, err)

	_, err = resolveSearchInput("Astoria", at, false)
	assert.Error(t, err)

	_, err = resolveSearchInput("Astoria", coordinateValue{}, true)
	assert.Error(t, err)
}

func sampleOutput() searchOutput {
	open := true
	return searchOutput{
		RunToken:        "run-1",
		Origin:          types.Coordinate{Lat: 40.7128, Lng: -74.006},
		ResolvedAddress: "New York, NY, USA",
		Count:           2,
		DurationMs:      42,
		Results: []types.ResultEntry{
			{
				CandidatePlace: types.CandidatePlace{ID: "a", Name: "Halal Guys", Address: "W 53rd St", Rating: 4.4, UserRatingsTotal: 900, OpenNow: &open, Phone: "(212) 555-0100"},
				DistanceMeters: 640,
			},
			{
				CandidatePlace: types.CandidatePlace{ID: "b", Name: "Kebab King"},
				DistanceMeters: 6288,
			},
		},
	}
}

func TestPrintSearchResults(t *testing.T) {
	var buf bytes.Buffer
	printSearchResults(&buf, sampleOutput())
	output := buf.String()

	assert.Contains(t, output, "Alcohol-free restaurants near New York, NY, USA (40.712800,-74.006000)")
	assert.Contains(t, output, "Found 2 restaurants in 42ms")
	assert.Contains(t, output, " 1. Halal Guys  [640 m]")
	assert.Contains(t, output, "rating 4.4 (900) | open now | (212) 555-0100")
	assert.Contains(t, output, " 2. Kebab King  [6.3 km]")
}

func TestWriteSearchJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSearchJSON(&buf, sampleOutput()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["run_token"])
	assert.Equal(t, float64(2), decoded["count"])

	buf.Reset()
	require.NoError(t, writeSearchJSON(&buf, searchOutput{}))
	assert.Contains(t, buf.String(), `"results": []`)
}

func TestLimitEntries(t *testing.T) {
	entries := sampleOutput().Results
	assert.Len(t, limitEntries(entries, 0), 2)
	assert.Len(t, limitEntries(entries, 1), 1)
	assert.Len(t, limitEntries(entries, 10), 2)
}

func TestSearchFailureMessage(t *testing.T) {
	se := types.NewSearchError(types.ErrorTypeLocationNotFound, types.MessageLocationNotFound, nil)
	se.Suggestion = "Check the spelling"

	err := searchFailure(se)
	assert.True(t, strings.HasPrefix(err.Error(), "Location not found. Check the spelling: "))
	assert.True(t, errors.Is(err, se))

	err = searchFailure(errors.New("boom"))
	assert.Contains(t, err.Error(), types.MessageProviderExhausted)
}
