// Package identitysync keeps extended profiles consistent with the
// authoritative identity store.
//
// Identity and profile live in separate stores and are written without a
// shared transaction. Registration creates the profile best-effort; the
// Synchronizer repairs whatever that leaves behind:
//
//   - Synchronize links (creating if needed) the profile of one identity and
//     pushes email, name, status, role and verified into it. Data only ever
//     flows from identity to profile. Calling it twice changes nothing the
//     second time.
//   - SynchronizeAll runs Synchronize over every identity that has no
//     profile link. One identity failing does not stop the others, and
//     cancelling the context stops the run between items.
//   - ValidateIntegrity reports identities without a profile, profiles
//     without a reciprocal link, and email disagreements. It repairs
//     nothing; an email mismatch may be a racing update and needs a human.
package identitysync
