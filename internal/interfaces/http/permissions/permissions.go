package permissions

import (
	"fmt"

	"gopkg.in/macaroon-bakery.v2/bakery"
)

const (
	EntityWallet    = "wallet"
	EntityApprovals = "approvals"
	EntityApps      = "apps"
	EntityTokens    = "tokens"
)

// ReadOnlyPermissions returns the permissions of the macaroon
// readonly.macaroon. This grants access to the read action for all entities.
func ReadOnlyPermissions() []bakery.Op {
	return []bakery.Op{
		{
			Entity: EntityWallet,
			Action: "read",
		},
		{
			Entity: EntityApprovals,
			Action: "read",
		},
		{
			Entity: EntityApps,
			Action: "read",
		},
	}
}

// AdminPermissions returns the permissions of the macaroon admin.macaroon.
// This grants access to all actions for all entities.
func AdminPermissions() []bakery.Op {
	return []bakery.Op{
		{
			Entity: EntityWallet,
			Action: "read",
		},
		{
			Entity: EntityWallet,
			Action: "write",
		},
		{
			Entity: EntityApprovals,
			Action: "read",
		},
		{
			Entity: EntityApprovals,
			Action: "write",
		},
		{
			Entity: EntityApps,
			Action: "read",
		},
		{
			Entity: EntityApps,
			Action: "write",
		},
		{
			Entity: EntityTokens,
			Action: "write",
		},
	}
}

// AllPermissionsByRoute returns a mapping of the operator routes to the
// permissions they require.
func AllPermissionsByRoute() map[string][]bakery.Op {
	return map[string][]bakery.Op{
		"/v1/wallet/genseed": {{
			Entity: EntityWallet,
			Action: "write",
		}},
		"/v1/wallet/init": {{
			Entity: EntityWallet,
			Action: "write",
		}},
		"/v1/wallet/restore": {{
			Entity: EntityWallet,
			Action: "write",
		}},
		"/v1/wallet/unlock": {{
			Entity: EntityWallet,
			Action: "write",
		}},
		"/v1/wallet/lock": {{
			Entity: EntityWallet,
			Action: "write",
		}},
		"/v1/wallet/changepin": {{
			Entity: EntityWallet,
			Action: "write",
		}},
		"/v1/wallet/status": {{
			Entity: EntityWallet,
			Action: "read",
		}},
		"/v1/wallet/info": {{
			Entity: EntityWallet,
			Action: "read",
		}},
		"/v1/wallet/account": {{
			Entity: EntityWallet,
			Action: "write",
		}},
		"/v1/wallet/network": {{
			Entity: EntityWallet,
			Action: "write",
		}},
		"/v1/approvals": {{
			Entity: EntityApprovals,
			Action: "read",
		}},
		"/v1/approvals/approve": {{
			Entity: EntityApprovals,
			Action: "write",
		}},
		"/v1/approvals/reject": {{
			Entity: EntityApprovals,
			Action: "write",
		}},
		"/v1/apps": {{
			Entity: EntityApps,
			Action: "read",
		}},
		"/v1/apps/disconnect": {{
			Entity: EntityApps,
			Action: "write",
		}},
		"/v1/tokens": {{
			Entity: EntityTokens,
			Action: "write",
		}},
	}
}

// Validate checks that every route requires only operations granted by the
// admin macaroon.
func Validate() error {
	granted := make(map[bakery.Op]bool)
	for _, op := range AdminPermissions() {
		granted[op] = true
	}
	for route, ops := range AllPermissionsByRoute() {
		for _, op := range ops {
			if !granted[op] {
				return fmt.Errorf(
					"route %s requires %s:%s, not granted to admin",
					route, op.Entity, op.Action,
				)
			}
		}
	}
	return nil
}
