package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Options are the choice lists offered by the profile form.
type Options struct {
	Roles    []string `yaml:"roles" json:"roles"`
	Clusters []string `yaml:"clusters" json:"clusters"`
}

// LoadOptions reads and validates options.yaml.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read options: %w", err)
	}

	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	if len(opts.Roles) == 0 {
		return nil, fmt.Errorf("options: at least one role required")
	}
	if len(opts.Clusters) == 0 {
		return nil, fmt.Errorf("options: at least one cluster required")
	}
	return &opts, nil
}

// Has reports whether v is one of list.
func Has(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// OptionsHolder keeps the latest options for concurrent readers.
type OptionsHolder struct {
	mu   sync.RWMutex
	opts Options
}

func NewOptionsHolder(initial Options) *OptionsHolder {
	return &OptionsHolder{opts: initial}
}

func (h *OptionsHolder) Get() Options {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.opts
}

func (h *OptionsHolder) Set(opts *Options) {
	if opts == nil {
		return
	}
	h.mu.Lock()
	h.opts = *opts
	h.mu.Unlock()
}
