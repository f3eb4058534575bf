package view

import "github.com/nexe/nexe-backend/pkg/access"

type NavKey string

const (
	NavHome     NavKey = "home"
	NavProducts NavKey = "products"
	NavCart     NavKey = "cart"
	NavCheckout NavKey = "checkout"
	NavAdmin    NavKey = "admin"
	NavSignIn   NavKey = "sign_in"
	NavSignOut  NavKey = "sign_out"
)

type NavEntry struct {
	Key  NavKey `json:"key"`
	Path string `json:"path"`
}

// Navigation returns the visible entries for identity, in display order. It only
// reads the identity; it never fetches or touches cart state.
func Navigation(identity access.Identity) []NavEntry {
	role := identity.Role
	if !identity.Authenticated() {
		role = access.RoleNone
	}

	nav := []NavEntry{
		{Key: NavHome, Path: "/"},
		{Key: NavProducts, Path: "/products"},
	}
	if access.Can(access.ViewCart, role) {
		nav = append(nav, NavEntry{Key: NavCart, Path: "/cart"})
	}
	if access.Can(access.Checkout, role) {
		nav = append(nav, NavEntry{Key: NavCheckout, Path: "/checkout"})
	}
	if access.Can(access.ManageCatalog, role) {
		nav = append(nav, NavEntry{Key: NavAdmin, Path: "/admin/products"})
	}
	if identity.Authenticated() {
		nav = append(nav, NavEntry{Key: NavSignOut, Path: "/signout"})
	} else {
		nav = append(nav, NavEntry{Key: NavSignIn, Path: "/signin"})
	}
	return nav
}

// Keys is a convenience for comparing navigation sets.
func Keys(nav []NavEntry) []NavKey {
	keys := make([]NavKey, len(nav))
	for i, e := range nav {
		keys[i] = e.Key
	}
	return keys
}
