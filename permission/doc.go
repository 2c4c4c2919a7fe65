// Package permission resolves what an account may do.
//
// Authorization is flat: an account holds roles and each role grants a set of
// permissions named "resource.action". There is no role inheritance.
//
// [Registry] assigns every known permission a bit so a [Resolver] can answer
// HasPermission with a mask test. Permissions outside the registry still
// resolve through a name set.
//
// [DefaultCatalog] returns the seed roles (owner, admin, user, service) and
// permissions that stores install on first start.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import lexauth, jwt, or session.
package permission
