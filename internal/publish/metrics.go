// Copyright 2025 Tom Barlow
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

package publish

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flowgate",
			Subsystem: "publish",
			Name:      "attempts_total",
			Help:      "Workflow submissions by outcome",
		},
		[]string{"outcome"},
	)

	conflictRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "flowgate",
			Subsystem: "publish",
			Name:      "conflict_retries_total",
			Help:      "Submissions retried under a fresh identifier after a conflict",
		},
	)

	attemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flowgate",
			Subsystem: "publish",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of a single workflow submission",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flowgate",
			Subsystem: "execution",
			Name:      "finished_total",
			Help:      "Executions observed to reach a terminal state, by state",
		},
		[]string{"state"},
	)
)
