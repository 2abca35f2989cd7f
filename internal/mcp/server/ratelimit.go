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

package server

import (
	"golang.org/x/time/rate"
)

// RateLimiter bounds the rate of tool calls.
type RateLimiter struct {
	calls *rate.Limiter
}

// NewRateLimiter allows perSecond calls on average with bursts of up to burst.
// Non-positive values fall back to 5 per second and a burst of 10.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{calls: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// AllowCall reports whether a tool call may proceed now.
func (rl *RateLimiter) AllowCall() bool {
	return rl.calls.Allow()
}
