package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput() *Input {
	return &Input{
		Utterances: []Utterance{
			{SpeakerRole: RoleCustomer, Text: "Hi, my order never arrived.", StartTime: 0, EndTime: 4, Confidence: 0.95},
			{SpeakerRole: RoleAgent, Text: "Thank you for calling Acme, let me look into that.", StartTime: 5, EndTime: 9, Confidence: 0.97},
			{SpeakerRole: RoleCustomer, Text: "It was supposed to arrive Monday.", StartTime: 10, EndTime: 13, Confidence: 0.92},
			{SpeakerRole: RoleAgent, Text: "I've reshipped it, you'll have it tomorrow.", StartTime: 20, EndTime: 24, Confidence: 0.96},
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, sampleInput().Validate())

	tests := []struct {
		name   string
		mutate func(in *Input)
	}{
		{"empty transcript", func(in *Input) { in.Utterances = nil }},
		{"missing speaker role", func(in *Input) { in.Utterances[1].SpeakerRole = "  " }},
		{"negative start", func(in *Input) { in.Utterances[0].StartTime = -1 }},
		{"end before start", func(in *Input) { in.Utterances[2].EndTime = 8 }},
		{"out of order", func(in *Input) { in.Utterances[3].StartTime = 7 }},
		{"sentiment length mismatch", func(in *Input) {
			in.UtteranceSentiments = []Sentiment{{Label: "neutral", Score: 0.8}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sampleInput()
			tt.mutate(in)
			var serr *StructuralError
			assert.ErrorAs(t, in.Validate(), &serr)
		})
	}
}

func TestBySpeaker(t *testing.T) {
	in := sampleInput()
	agent := in.BySpeaker(RoleAgent)
	require.Len(t, agent, 2)
	assert.Equal(t, 1, agent[0].Index)
	assert.Equal(t, 3, agent[1].Index)
	assert.Empty(t, in.BySpeaker("supervisor"))
}

func TestDerivedMeasurements(t *testing.T) {
	in := sampleInput()

	tests := []struct {
		field string
		want  float64
	}{
		{FieldGreetingLatency, 5},
		{FieldTotalSilence, 9}, // 1 + 1 + 7
		{FieldLongestSilence, 7},
		{FieldCallDuration, 24},
		{FieldAgentTalkRatio, 8.0 / 15.0},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, ok := in.Measurement(tt.field)
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestMeasurementCallerPrecedence(t *testing.T) {
	in := sampleInput()
	in.Measurements = map[string]float64{
		FieldGreetingLatency:    2.5,
		"hold_duration_seconds": 42,
	}

	got, ok := in.Measurement(FieldGreetingLatency)
	require.True(t, ok)
	assert.Equal(t, 2.5, got, "supplied value wins over derivation")

	got, ok = in.Measurement("hold_duration_seconds")
	require.True(t, ok)
	assert.Equal(t, 42.0, got)

	_, ok = in.Measurement("transfer_count")
	assert.False(t, ok, "unknown fields are unavailable, not zero")
}

func TestGreetingLatencyWithoutAgent(t *testing.T) {
	in := &Input{Utterances: []Utterance{
		{SpeakerRole: RoleCustomer, Text: "Hello?", StartTime: 0, EndTime: 1},
	}}
	_, ok := in.Measurement(FieldGreetingLatency)
	assert.False(t, ok)
}

func TestLongestSilenceSpan(t *testing.T) {
	in := sampleInput()
	before, after, ok := in.LongestSilenceSpan()
	require.True(t, ok)
	assert.Equal(t, 13.0, before.EndTime)
	assert.Equal(t, 20.0, after.StartTime)

	packed := &Input{Utterances: []Utterance{
		{SpeakerRole: RoleAgent, Text: "a", StartTime: 0, EndTime: 2},
		{SpeakerRole: RoleCustomer, Text: "b", StartTime: 2, EndTime: 4},
	}}
	_, _, ok = packed.LongestSilenceSpan()
	assert.False(t, ok)
}
