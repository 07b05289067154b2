// Copyright 2026 The cachesync Authors.
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

package keysync

import (
	"context"
	"fmt"
	"sync/atomic"
)

// owner identifies one logical holder of locks. It plays the role a thread
// plays for a reentrant mutex: every lock taken with a context carrying the
// same owner is reentrant for that owner.
type owner struct {
	id uint64
}

func (o *owner) String() string {
	return fmt.Sprintf("owner-%d", o.id)
}

var lastOwnerID atomic.Uint64

type ownerKey struct{}

// ownerFrom returns the owner carried by ctx, or nil.
func ownerFrom(ctx context.Context) *owner {
	o, _ := ctx.Value(ownerKey{}).(*owner)
	return o
}

// withOwner returns ctx and its owner, minting a new owner if ctx carries
// none.
func withOwner(ctx context.Context) (context.Context, *owner) {
	if o := ownerFrom(ctx); o != nil {
		return ctx, o
	}
	o := &owner{id: lastOwnerID.Add(1)}
	return context.WithValue(ctx, ownerKey{}, o), o
}

// ownerState is the per-owner bookkeeping a global acquirer uses to decide
// whether every other key holder is quiescent.
type ownerState struct {
	// held is the number of distinct keys the owner holds.
	held int

	// parked is the number of goroutines of the owner blocked inside the
	// synchronizer.
	parked int
}
