// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cellmul

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// join waits for every worker of c in spawn order, then closes the guard.
// A worker panic fails the call with ErrIncomplete and the panic joined in.
// Worker threads with non-restorable scheduling have already exited locked
// by then, so the runtime discarded them.
func (e *Engine) join(c *call, cells int) error {
	err := c.group.Join()
	writes := c.guard.close()
	e.metrics.computed(writes)

	if err != nil || writes != cells {
		e.log.Error("result incomplete", zap.Int("writes", writes), zap.Int("cells", cells), zap.Error(err))
		return fmt.Errorf("%d of %d cells written: %w", writes, cells, multierr.Append(ErrIncomplete, err))
	}
	e.log.Debug("joined", zap.Int("workers", c.group.NumWorkers()), zap.Ints("processed", c.group.Processed()))
	return nil
}
