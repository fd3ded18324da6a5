package ratelimit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rule is one limit within a policy
type Rule struct {
	Name    string
	Limit   int
	Window  time.Duration
	Message string
}

// DenialMessage renders Message for a denied request. A "{retryAfter}"
// placeholder is replaced with the seconds until the window reopens.
func (r Rule) DenialMessage(retryAfter int) string {
	if r.Message == "" {
		return "Too many requests. Please try again later."
	}
	return strings.ReplaceAll(r.Message, "{retryAfter}", strconv.Itoa(retryAfter))
}

// Policy is the ordered set of rules applied to one metered action
type Policy struct {
	Bucket string
	Rules  []Rule
}

// BucketFor returns the namespaced bucket a rule counts against
func (p Policy) BucketFor(r Rule) string {
	return p.Bucket + ":" + r.Name
}

// Validate checks that every rule can actually admit traffic
func (p Policy) Validate() error {
	if p.Bucket == "" {
		return errors.New("bucket name is required")
	}
	if len(p.Rules) == 0 {
		return errors.New("at least one rule is required")
	}
	seen := make(map[string]bool, len(p.Rules))
	for _, r := range p.Rules {
		if r.Name == "" {
			return errors.New("rule name is required")
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate rule %q", r.Name)
		}
		seen[r.Name] = true
		if r.Limit < 1 {
			return fmt.Errorf("rule %q: limit must be at least 1", r.Name)
		}
		if r.Window <= 0 {
			return fmt.Errorf("rule %q: window must be positive", r.Name)
		}
	}
	return nil
}

// Bucket names for the metered actions
const (
	BucketGenerate   = "generate"
	BucketTranscribe = "transcribe"
)

// DefaultPolicies returns the production limits for each metered action
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		BucketGenerate: {
			Bucket: BucketGenerate,
			Rules: []Rule{
				{Name: "hourly", Limit: 20, Window: time.Hour, Message: "Too many requests. Please wait {retryAfter} seconds before generating again."},
				{Name: "daily", Limit: 60, Window: 24 * time.Hour, Message: "Daily generation limit reached. Please try again tomorrow."},
			},
		},
		BucketTranscribe: {
			Bucket: BucketTranscribe,
			Rules: []Rule{
				{Name: "hourly", Limit: 15, Window: time.Hour, Message: "Too many requests. Please wait {retryAfter} seconds before transcribing again."},
				{Name: "daily", Limit: 50, Window: 24 * time.Hour, Message: "Daily transcription limit reached. Please try again tomorrow."},
			},
		},
	}
}
