// Package domain models coastal weather telemetry and the client-side alert
// decisions derived from it.
//
// # Data Source
//
// Samples are pushed by the TideGuard backend as "weather_data" events, one
// JSON object per reading:
//
//	{"wind_speed": 95, "wave_height": 1.0, "temperature": 18.2,
//	 "humidity": 71.5, "pressure": 1013.4, "weather_condition": "Stormy",
//	 "timestamp": 1718000000, "alert_active": true}
//
// Every numeric key is required and must be finite. "timestamp" is whole
// seconds since the Unix epoch. A payload that fails either rule is rejected
// with [InvalidSampleError] by [ParseSample] and never reaches the store.
//
// # Classification
//
// [Classify] derives a severity from two fixed thresholds. A reading breaches
// only when it is strictly greater than the threshold:
//
//	Wind:  > 80 km/h
//	Waves: > 4 m
//
//	both breached   CRITICAL
//	one breached    WARNING
//	none            SAFE
//
// Readings in messages use the shortest exact decimal form (95, not 95.0).
//
// # Banner Latch
//
// The banner follows the upstream "alert_active" flag, which the backend may
// compute from criteria broader than the two thresholds above. [AlertLatch]
// tracks whether the user dismissed the current alert:
//
//	hidden     alert_active=false, or no sample yet
//	shown      alert_active=true and not dismissed
//	dismissed  alert_active=true after Dismiss
//
// With [ScopeEpisode] a dismissal lasts until alert_active clears or the
// connection is lost. [ScopeSession] keeps it until the latch is discarded.
// A banner is only visible while the connection is connected or reconnecting.
package domain
