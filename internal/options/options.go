// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package options

import "iter"

// Apply yields every option in opts followed by rest that implements O,
// skipping nil entries. Callers name O explicitly so that a shared option list
// can be filtered down to the options one component understands.
func Apply[O any, T any](opts []T, rest ...T) iter.Seq[O] {
	return func(yield func(O) bool) {
		for _, list := range [][]T{opts, rest} {
			for _, opt := range list {
				o, ok := any(opt).(O)
				if !ok {
					continue
				}
				if !yield(o) {
					return
				}
			}
		}
	}
}
