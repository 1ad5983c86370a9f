// Package core contains the canonical account-flow domain contracts: the
// correlation token store, shared account state with scope and expiry
// bookkeeping, the error taxonomy, and the dependency wiring used by the
// protocol packages. The oauth1 and oauth2 packages must depend on core;
// core must not depend on protocol-specific packages.
package core
