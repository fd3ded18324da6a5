package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicies(t *testing.T) {
	policies := DefaultPolicies()

	gen := policies[BucketGenerate]
	assert.NoError(t, gen.Validate())
	assert.Equal(t, "generate:hourly", gen.BucketFor(gen.Rules[0]))
	assert.Equal(t, 20, gen.Rules[0].Limit)
	assert.Equal(t, 60, gen.Rules[1].Limit)

	tr := policies[BucketTranscribe]
	assert.NoError(t, tr.Validate())
	assert.Equal(t, 15, tr.Rules[0].Limit)
	assert.Equal(t, 50, tr.Rules[1].Limit)
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		ok     bool
	}{
		{"valid", Policy{Bucket: "b", Rules: []Rule{{Name: "h", Limit: 1, Window: time.Hour}}}, true},
		{"no bucket", Policy{Rules: []Rule{{Name: "h", Limit: 1, Window: time.Hour}}}, false},
		{"no rules", Policy{Bucket: "b"}, false},
		{"unnamed rule", Policy{Bucket: "b", Rules: []Rule{{Limit: 1, Window: time.Hour}}}, false},
		{"duplicate rule", Policy{Bucket: "b", Rules: []Rule{{Name: "h", Limit: 1, Window: time.Hour}, {Name: "h", Limit: 2, Window: time.Hour}}}, false},
		{"zero limit", Policy{Bucket: "b", Rules: []Rule{{Name: "h", Window: time.Hour}}}, false},
		{"zero window", Policy{Bucket: "b", Rules: []Rule{{Name: "h", Limit: 1}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRule_DenialMessage(t *testing.T) {
	hourly := DefaultPolicies()[BucketGenerate].Rules[0]
	assert.Equal(t, "Too many requests. Please wait 42 seconds before generating again.", hourly.DenialMessage(42))

	daily := DefaultPolicies()[BucketTranscribe].Rules[1]
	assert.Equal(t, "Daily transcription limit reached. Please try again tomorrow.", daily.DenialMessage(3600))

	assert.Equal(t, "Too many requests. Please try again later.", Rule{}.DenialMessage(1))
}
