// Package users provides customizable user account management for web
// applications: registration, credential verification, email confirmation,
// password reset, and invitations.
//
// The package is composed of small collaborating pieces wired together
// through the Manager facade:
//
//   - PasswordHasher hashes and verifies passwords (bcrypt by default).
//   - TokenManager mints and verifies signed, expiring action tokens used
//     for confirmation, reset, and invitation links.
//   - Settings enumerates every feature flag with its defaults; Resolve
//     applies the feature dependency closure and validates hard requirements.
//   - RepositoryManager exposes the bun repositories for User, UserEmail,
//     and UserInvitation records.
//
// Session and identity tracking is delegated to the host application through
// the SessionManager interface; this package never manages cookies or login
// sessions itself.
package users
