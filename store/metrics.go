// Copyright 2025 The ubt Authors
// This file is part of the ubt library.
//
// The ubt library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ubt library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ubt library. If not, see <http://www.gnu.org/licenses/>.

package store

import "github.com/ethereum/go-ethereum/metrics"

var (
	blocksProcessedCounter = metrics.NewRegisteredCounter("ubt/store/blocks", nil)
	blockEntriesMeter      = metrics.NewRegisteredMeter("ubt/store/entries", nil)
	stemsGauge             = metrics.NewRegisteredGauge("ubt/store/stems", nil)
	headBlockGauge         = metrics.NewRegisteredGauge("ubt/store/head", nil)
	persistTimer           = metrics.NewRegisteredTimer("ubt/store/persist", nil)

	revertsCounter     = metrics.NewRegisteredCounter("ubt/store/reverts", nil)
	revertEntriesMeter = metrics.NewRegisteredMeter("ubt/store/revertentries", nil)
)
