// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package agg

import (
	"fmt"

	"sigs.k8s.io/yaml"
)

// Config is the engine-wide aggregation configuration. It is read
// once at plan construction; the values it carries (notably the
// null-handling mode) are threaded into factories explicitly
// rather than consulted through shared mutable state.
type Config struct {
	// NullHandling is "sql" (default) or "zero".
	NullHandling string `json:"null_handling,omitempty"`

	// SpillCompression names the codec used for spilled group
	// tables: "s2" (default), "zstd", or "zstd-better".
	SpillCompression string `json:"spill_compression,omitempty"`

	// GroupCapacity is the initial number of group slots a
	// GroupTable reserves; the table grows past it on demand.
	GroupCapacity int `json:"group_capacity,omitempty"`
}

// DefaultConfig returns the configuration used when no file is
// supplied.
func DefaultConfig() Config {
	return Config{
		NullHandling:     "sql",
		SpillCompression: "s2",
		GroupCapacity:    16,
	}
}

// LoadConfig parses a YAML configuration and applies defaults for
// absent fields.
func LoadConfig(buf []byte) (Config, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(buf, &c); err != nil {
		return Config{}, fmt.Errorf("agg: parsing config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the enum-shaped fields.
func (c *Config) Validate() error {
	switch c.NullHandling {
	case "", "sql", "zero":
	default:
		return fmt.Errorf("agg: unknown null_handling %q", c.NullHandling)
	}
	switch c.SpillCompression {
	case "", "s2", "zstd", "zstd-better":
	default:
		return fmt.Errorf("agg: unknown spill_compression %q", c.SpillCompression)
	}
	if c.GroupCapacity < 0 {
		return fmt.Errorf("agg: negative group_capacity %d", c.GroupCapacity)
	}
	return nil
}

// Nulls returns the configured null-handling mode.
func (c *Config) Nulls() NullHandling {
	if c.NullHandling == "zero" {
		return NullZero
	}
	return NullSQL
}
