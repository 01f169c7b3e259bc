// Package sentry and its sub-packages implement the backend of a custodial SentryWallet deployment.
/*
sentry provides a wallet microservice (package wallet) with a RESTful API to get the custodial address and balance of
an account, send transfers and manage the nominee of the account.

Nominees

Each account designates a nominee: an email address kept in the account profile (off-chain) and a beneficiary address
with a share of the holdings kept by the inheritance registry contract (on-chain). Package nominee reconciles both
records. On load, both are read concurrently and merged into a single view. On save, the input is validated and then
the email is written followed by the registry transaction, whose confirmation is awaited. The two writes are not
atomic: when the registry transaction fails after the email was saved, the view reports a partial save and a new
submission writes both again.

Architecture

The off-chain records live behind a database product agnostic layer (package lib/store) with MongoDB, PostgreSQL and
in-memory implementations. A blockchain layer (package lib/block) connects to an ethereum-compatible JSON-RPC node, or
serves an in-memory demo chain. The result of every nominee save is published to a message broker (package lib/msg)
so other services can notify the users. All of them are selected in the JSON config file or the SENTRY_ OS ENV
variables read at startup (package lib/config).

The service can be monitored via a Prometheus API by setting the flag "-m" at startup.

Wallet

The wallet microservice can be started running cmd/wallet/main.go. Account ids are mapped to keys of a hierarchical
deterministic wallet (HD wallet) loaded from the configured seed, so the service signs the transfers and registry
transactions of its accounts.
*/
package sentry
