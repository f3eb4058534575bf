// Package access holds the storefront's role rules. Both the server and the
// client-side renderer and navigation ask Can instead of comparing roles inline.
package access

type Action string

const (
	ViewCatalog    Action = "view_catalog"
	AddToCart      Action = "add_to_cart"
	RemoveFromCart Action = "remove_from_cart"
	ViewCart       Action = "view_cart"
	Checkout       Action = "checkout"
	ManageCatalog  Action = "manage_catalog"
	SignIn         Action = "sign_in"
	SignOut        Action = "sign_out"
)

// Anonymous visitors are offered AddToCart; the cart API answers them with 401 and
// the client turns that into a sign-in redirect.
var rules = map[Action]map[Role]bool{
	ViewCatalog:    {RoleNone: true, RoleUser: true, RoleAdmin: true},
	AddToCart:      {RoleNone: true, RoleUser: true},
	RemoveFromCart: {RoleNone: true, RoleUser: true, RoleAdmin: true},
	ViewCart:       {RoleUser: true},
	Checkout:       {RoleUser: true},
	ManageCatalog:  {RoleAdmin: true},
	SignIn:         {RoleNone: true},
	SignOut:        {RoleUser: true, RoleAdmin: true},
}

// Can reports whether role may perform action. Unknown actions and roles are denied.
func Can(action Action, role Role) bool {
	return rules[action][role]
}

// Actions lists every known action, in declaration order.
func Actions() []Action {
	return []Action{ViewCatalog, AddToCart, RemoveFromCart, ViewCart, Checkout, ManageCatalog, SignIn, SignOut}
}
