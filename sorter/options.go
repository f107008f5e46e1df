// gtfsort: a high-performance tool for sorting GTF/GFF3 files.
// Copyright (c) 2024 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/gtfsort/blob/master/LICENSE.txt>.

package sorter

import "github.com/exascience/gtfsort/layers"

type options struct {
	disableMmap  bool
	policy       layers.DuplicatePolicy
	dropComments bool
}

// An Option configures a sort job.
type Option func(*options)

// WithoutMmap disables memory mapping of input and output files.
func WithoutMmap() Option {
	return func(o *options) {
		o.disableMmap = true
	}
}

// WithDuplicatePolicy sets how sub-features with the same key in the
// same transcript are handled. The default is layers.Replace.
func WithDuplicatePolicy(policy layers.DuplicatePolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithoutComments drops comment lines instead of writing them at the
// top of the output.
func WithoutComments() Option {
	return func(o *options) {
		o.dropComments = true
	}
}

func newOptions(opts []Option) *options {
	o := &options{policy: layers.Replace}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
