// Package cli implements meterctl, the operator tool for the meterd account
// store.
//
// # Commands
//
// migrate: create or upgrade the accounts schema
//
//	meterctl migrate
//
// account: show an account with its remaining free quota
//
//	meterctl account --email owner@example.com
//
// set-plan: assign a plan by email, for support cases and refunds
//
//	meterctl set-plan --email owner@example.com --plan business
//
// restore: look up an active provider subscription and grant its plan
//
//	meterctl restore --provider lemonsqueezy --email owner@example.com
//
// meterctl reads the same METER_* environment as the server, so it talks to
// the same database and billing accounts.
package cli
