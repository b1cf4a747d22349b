// Package ratelimit throttles the token API per client address.
//
// State lives in process memory and is not shared between replicas. The API
// sits on an internal listener, so the limiter mainly keeps a misbehaving
// seed job from hammering the token table.
package ratelimit
