// Package accounts is the application service for identities: sign-up,
// credential checks, password changes and administrative actions.
//
// Authentication consults the lockout policy before any password work,
// and every failure is recorded as LOGIN_FAILED with a reason that never
// reveals whether the email exists. Administrative changes are audited
// with the admin as actor and then pushed to the profile store; a failed
// push is left for the periodic synchronizer.
package accounts
