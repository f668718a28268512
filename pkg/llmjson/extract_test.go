package llmjson

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractObjectIgnoresSurroundingProse(t *testing.T) {
	raw, err := ExtractObject("Sure! Here is the result:\n{\"confidence\": 0.7}\nHope that helps.")
	require.NoError(t, err)
	require.Equal(t, `{"confidence": 0.7}`, raw)
}

func TestExtractObjectIgnoresBracesInTrailingProse(t *testing.T) {
	raw, err := ExtractObject("{\"confidence\": 0.9}\nNote: I ignored {misleading} comments.")
	require.NoError(t, err)
	require.Equal(t, `{"confidence": 0.9}`, raw)

	var payload struct {
		Confidence Number `json:"confidence"`
	}
	require.NoError(t, Decode("Prefix {not json} then {\"confidence\": 0.4} and {more}", &payload))
	require.InDelta(t, 0.4, float64(payload.Confidence), 0.0001)
}

func TestExtractObjectPrefersFencedBlock(t *testing.T) {
	reply := "Note {not json}\n```json\n{\"total_score\": 3}\n```\ntrailing }"
	raw, err := ExtractObject(reply)
	require.NoError(t, err)
	require.Equal(t, `{"total_score": 3}`, raw)
}

func TestExtractObjectWithoutObject(t *testing.T) {
	_, err := ExtractObject("I cannot help with that")
	require.True(t, errors.Is(err, ErrNoJSONObject))
}

func TestDecodeAsReportsMalformedJSON(t *testing.T) {
	_, err := DecodeAs[map[string]interface{}]("{ broken: }")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNoJSONObject))
}

func TestTextNormalizesVariants(t *testing.T) {
	var payload struct {
		Plain  Text `json:"plain"`
		List   Text `json:"list"`
		Object Text `json:"object"`
		Empty  Text `json:"empty"`
	}
	err := Decode(`{"plain": "a", "list": ["x", "y"], "object": {"k": 1}, "empty": null}`, &payload)
	require.NoError(t, err)
	require.Equal(t, "a", payload.Plain.String())
	require.Equal(t, "x\ny", payload.List.String())
	require.Equal(t, "{\n  \"k\": 1\n}", payload.Object.String())
	require.Equal(t, "", payload.Empty.String())
}

func TestNumberAndFlagAcceptStrings(t *testing.T) {
	var payload struct {
		Marks     Number  `json:"marks"`
		Satisfied Flag    `json:"satisfied"`
		Issues    Strings `json:"issues"`
	}
	err := Decode(`{"marks": "2", "satisfied": "yes", "issues": "off by one"}`, &payload)
	require.NoError(t, err)
	require.InDelta(t, 2.0, float64(payload.Marks), 0.0001)
	require.True(t, bool(payload.Satisfied))
	require.Equal(t, Strings{"off by one"}, payload.Issues)
}
