package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voicequote/meterd/pkg/ratelimit"
)

// policyFile is the on-disk rate limit override format:
//
//	buckets:
//	  generate:
//	    - name: hourly
//	      limit: 20
//	      window: 1h
//	      message: Too many requests.
type policyFile struct {
	Buckets map[string][]ruleEntry `yaml:"buckets"`
}

type ruleEntry struct {
	Name    string `yaml:"name"`
	Limit   int    `yaml:"limit"`
	Window  string `yaml:"window"`
	Message string `yaml:"message"`
}

// LoadPolicyFile reads bucket policies from a YAML file. Rules are kept in
// file order, which is the order they are checked.
func LoadPolicyFile(path string) (map[string]ratelimit.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate limit file: %w", err)
	}
	return ParsePolicies(data)
}

// ParsePolicies decodes the YAML policy format
func ParsePolicies(data []byte) (map[string]ratelimit.Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rate limit file: %w", err)
	}

	policies := make(map[string]ratelimit.Policy, len(file.Buckets))
	for bucket, entries := range file.Buckets {
		policy := ratelimit.Policy{Bucket: bucket}
		for _, e := range entries {
			window, err := time.ParseDuration(e.Window)
			if err != nil {
				return nil, fmt.Errorf("bucket %q rule %q: invalid window %q: %w", bucket, e.Name, e.Window, err)
			}
			policy.Rules = append(policy.Rules, ratelimit.Rule{
				Name:    e.Name,
				Limit:   e.Limit,
				Window:  window,
				Message: e.Message,
			})
		}
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("bucket %q: %w", bucket, err)
		}
		policies[bucket] = policy
	}
	return policies, nil
}
