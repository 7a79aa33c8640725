// Package rbac evaluates role based permissions with contextual conditions.
//
// A [Policy] is compiled once from a role to rule table and is immutable
// afterwards. Evaluation is a flat scan of the role's rules: there is no role
// hierarchy and no transitive grant, so a missing rule is always a deny.
//
// Each permission is assigned a bit and every role carries a mask of the
// permissions it has any rule for, so unconditional denies never scan.
package rbac
