// Package profile stores extended, non-authoritative user data: names,
// address, notification preferences and free-form metadata.
//
// A profile is linked 1:1 to an identity through IdentityID and never holds
// credentials. Its email, name, status, role and verified fields are
// mirrors written by the identity synchronizer; when they disagree with
// the identity store, the identity store wins.
package profile
