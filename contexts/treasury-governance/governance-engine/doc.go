// Package governanceengine implements the treasury-governance engine: token
// holders propose treasury transfers, vote with weight proportional to their
// live token balance, and execute accepted proposals exactly once.
//
// Business rules live in the domain and application layers; stores, the
// token oracle and proposal locks are reached through ports and adapters.
package governanceengine
