// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package hdiff implements the hierarchical state-diff encoding: a
// structural binary diff over non-balance state bytes plus a positional
// XOR diff over the balances list, each independently compressed.
package hdiff

import (
	"errors"
	"fmt"
)

// ErrInvalidHierarchy is returned when a HierarchyConfig's exponents are
// not strictly increasing or exceed the bit width of a uint64.
var ErrInvalidHierarchy = errors.New("hdiff: invalid hierarchy config")

// HierarchyConfig is a strictly increasing list of exponents e_0=0 < e_1 <
// ... < e_k defining the moduli m_i = 2^e_i (in epochs) used by
// StorageStrategy.
type HierarchyConfig struct {
	Exponents []uint8
}

// Validate enforces strict monotonicity and the e_i < 64 bound.
func (c HierarchyConfig) Validate() error {
	if len(c.Exponents) == 0 || c.Exponents[0] != 0 {
		return fmt.Errorf("%w: must start at exponent 0", ErrInvalidHierarchy)
	}
	for i := 1; i < len(c.Exponents); i++ {
		if c.Exponents[i] <= c.Exponents[i-1] {
			return fmt.Errorf("%w: exponents must strictly increase", ErrInvalidHierarchy)
		}
	}
	for _, e := range c.Exponents {
		if e >= 64 {
			return fmt.Errorf("%w: exponent %d overflows uint64", ErrInvalidHierarchy, e)
		}
	}
	return nil
}

func (c HierarchyConfig) moduli() []uint64 {
	out := make([]uint64, len(c.Exponents))
	for i, e := range c.Exponents {
		out[i] = uint64(1) << e
	}
	return out
}

// StrategyKind discriminates the role a slot's epoch plays in the cold
// hierarchical scheme.
type StrategyKind int

const (
	Snapshot StrategyKind = iota
	DiffFrom
	ReplayFrom
)

// Strategy is the result of StorageStrategy: either a full snapshot, a
// diff against Base, or a replay starting from Base (a strategy slot, not
// necessarily the immediately preceding one).
type Strategy struct {
	Kind StrategyKind
	Base uint64 // epoch; meaningful for DiffFrom and ReplayFrom
}

// StorageStrategy is a pure function of (config, epoch); writers and
// readers must agree on its result bit-for-bit.
func (c HierarchyConfig) StorageStrategy(epoch uint64) Strategy {
	moduli := c.moduli()
	largest := moduli[len(moduli)-1]

	if epoch%largest == 0 {
		return Strategy{Kind: Snapshot}
	}

	// Largest modulus strictly less than largest with epoch % m_i == 0.
	var best uint64
	found := false
	for _, m := range moduli[:len(moduli)-1] {
		if epoch%m == 0 && m > best {
			best = m
			found = true
		}
	}
	if found {
		base := ((epoch - 1) / best) * best
		return Strategy{Kind: DiffFrom, Base: base}
	}

	return Strategy{Kind: ReplayFrom, Base: c.nearestLowerStrategySlot(epoch)}
}

// nearestLowerStrategySlot finds the largest epoch < epoch that is itself
// a snapshot or diff epoch (i.e. not a ReplayFrom epoch).
func (c HierarchyConfig) nearestLowerStrategySlot(epoch uint64) uint64 {
	for e := epoch - 1; ; e-- {
		s := c.storageStrategyNonRecursive(e)
		if s.Kind != ReplayFrom {
			return e
		}
		if e == 0 {
			return 0
		}
	}
}

// storageStrategyNonRecursive computes Snapshot/DiffFrom without
// recursing into nearestLowerStrategySlot, used only to probe whether a
// given epoch is itself a strategy epoch.
func (c HierarchyConfig) storageStrategyNonRecursive(epoch uint64) Strategy {
	moduli := c.moduli()
	largest := moduli[len(moduli)-1]
	if epoch%largest == 0 {
		return Strategy{Kind: Snapshot}
	}
	for _, m := range moduli[:len(moduli)-1] {
		if epoch%m == 0 {
			return Strategy{Kind: DiffFrom, Base: ((epoch - 1) / m) * m}
		}
	}
	return Strategy{Kind: ReplayFrom}
}
