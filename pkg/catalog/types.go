package catalog

import "github.com/nimburion/docsync/pkg/discount"

// Collection names.
const (
	CollProducts        = "products"
	CollCollections     = "collections"
	CollDiscounts       = "discounts"
	CollStorefronts     = "storefronts"
	CollShippingMethods = "shipping_methods"
	CollPosts           = "posts"
	CollImages          = "images"
	CollCustomers       = "customers"
	CollOrders          = "orders"
	CollTags            = "tags"
	CollNotifications   = "notifications"
	CollAuthUsers       = "auth_users"
)

// Relation names. Explicit relations share the name of the payload field
// that lists them.
const (
	RelCollections     = "collections"
	RelDiscounts       = "discounts"
	RelVariants        = "variants"
	RelProducts        = "products"
	RelShippingMethods = "shipping_methods"
	RelPosts           = "posts"
)

// Base carries the fields every stored entity has.
type Base struct {
	ID          string   `bson:"id" json:"id"`
	Handle      string   `bson:"handle,omitempty" json:"handle,omitempty"`
	Title       string   `bson:"title,omitempty" json:"title,omitempty"`
	Description string   `bson:"description,omitempty" json:"description,omitempty"`
	Active      bool     `bson:"active" json:"active"`
	Media       []string `bson:"media,omitempty" json:"media,omitempty"`
	Tags        []string `bson:"tags,omitempty" json:"tags,omitempty"`
	CreatedAt   string   `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt   string   `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Product is a sellable item. A product with ParentHandle (or ParentID) set
// is a variant of that parent.
type Product struct {
	Base         `bson:",inline"`
	Price        float64         `bson:"price" json:"price"`
	Compare      float64         `bson:"compare_at_price,omitempty" json:"compare_at_price,omitempty"`
	Qty          int             `bson:"qty" json:"qty"`
	ParentID     string          `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	ParentHandle string          `bson:"parent_handle,omitempty" json:"parent_handle,omitempty"`
	VariantHint  []VariantOption `bson:"variant_hint,omitempty" json:"variant_hint,omitempty"`

	// Collections is written as the product's collection membership and
	// read back when expanded.
	Collections []Collection `bson:"collections" json:"collections,omitempty"`
	// Discounts and Variants are maintained from the other side and only
	// populated by expansion.
	Discounts []discount.Discount `bson:"discounts,omitempty" json:"discounts,omitempty"`
	Variants  []Product           `bson:"variants,omitempty" json:"variants,omitempty"`
}

// VariantOption selects one value of a variant option, e.g. size=M.
type VariantOption struct {
	OptionID string `bson:"option_id" json:"option_id"`
	ValueID  string `bson:"value_id" json:"value_id"`
}

// Collection groups products.
type Collection struct {
	Base `bson:",inline"`
}

// ShippingMethod is a delivery option.
type ShippingMethod struct {
	Base  `bson:",inline"`
	Name  string  `bson:"name,omitempty" json:"name,omitempty"`
	Price float64 `bson:"price" json:"price"`
}

// Post is a content page.
type Post struct {
	Base `bson:",inline"`
	Text string `bson:"text,omitempty" json:"text,omitempty"`
}

// Storefront bundles products, collections, discounts, shipping methods and
// posts for one sales channel.
type Storefront struct {
	Base            `bson:",inline"`
	VideoURL        string              `bson:"video,omitempty" json:"video,omitempty"`
	Products        []Product           `bson:"products" json:"products,omitempty"`
	Collections     []Collection        `bson:"collections" json:"collections,omitempty"`
	Discounts       []discount.Discount `bson:"discounts" json:"discounts,omitempty"`
	ShippingMethods []ShippingMethod    `bson:"shipping_methods" json:"shipping_methods,omitempty"`
	Posts           []Post              `bson:"posts" json:"posts,omitempty"`
}

// Image is an entry of the media usage index.
type Image struct {
	ID        string `bson:"id" json:"id"`
	Handle    string `bson:"handle,omitempty" json:"handle,omitempty"`
	Name      string `bson:"name,omitempty" json:"name,omitempty"`
	URL       string `bson:"url" json:"url"`
	CreatedAt string `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt string `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Customer is a buyer account.
type Customer struct {
	ID        string `bson:"id" json:"id"`
	Handle    string `bson:"handle,omitempty" json:"handle,omitempty"`
	AuthID    string `bson:"auth_id,omitempty" json:"auth_id,omitempty"`
	Firstname string `bson:"firstname,omitempty" json:"firstname,omitempty"`
	Lastname  string `bson:"lastname,omitempty" json:"lastname,omitempty"`
	Email     string `bson:"email,omitempty" json:"email,omitempty"`
	CreatedAt string `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt string `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// LineItem is one product line of an order.
type LineItem struct {
	ID    string  `bson:"id" json:"id"`
	Qty   int     `bson:"qty" json:"qty"`
	Price float64 `bson:"price" json:"price"`
}

// Contact identifies who placed an order.
type Contact struct {
	CustomerID string `bson:"customer_id,omitempty" json:"customer_id,omitempty"`
	Email      string `bson:"email,omitempty" json:"email,omitempty"`
	Firstname  string `bson:"firstname,omitempty" json:"firstname,omitempty"`
	Lastname   string `bson:"lastname,omitempty" json:"lastname,omitempty"`
}

// OrderStatus tracks checkout, payment and fulfillment.
type OrderStatus struct {
	Checkout    string `bson:"checkout,omitempty" json:"checkout,omitempty"`
	Payment     string `bson:"payment,omitempty" json:"payment,omitempty"`
	Fulfillment string `bson:"fulfillment,omitempty" json:"fulfillment,omitempty"`
}

// Order is a placed order. Pricing is computed elsewhere and stored as is.
type Order struct {
	ID        string      `bson:"id" json:"id"`
	Contact   Contact     `bson:"contact" json:"contact"`
	LineItems []LineItem  `bson:"line_items,omitempty" json:"line_items,omitempty"`
	Status    OrderStatus `bson:"status" json:"status"`
	Total     float64     `bson:"total" json:"total"`
	CreatedAt string      `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt string      `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Tag is a named list of values.
type Tag struct {
	ID        string   `bson:"id" json:"id"`
	Handle    string   `bson:"handle" json:"handle"`
	Values    []string `bson:"values,omitempty" json:"values,omitempty"`
	CreatedAt string   `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt string   `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Notification is a dashboard message.
type Notification struct {
	ID        string   `bson:"id" json:"id"`
	Message   string   `bson:"message" json:"message"`
	Author    string   `bson:"author,omitempty" json:"author,omitempty"`
	Search    []string `bson:"search,omitempty" json:"search,omitempty"`
	CreatedAt string   `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt string   `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// AuthUser is a login identity. Its handle is the email address.
type AuthUser struct {
	ID            string   `bson:"id" json:"id"`
	Handle        string   `bson:"handle,omitempty" json:"handle,omitempty"`
	Email         string   `bson:"email" json:"email"`
	Password      string   `bson:"password,omitempty" json:"-"`
	ConfirmedMail bool     `bson:"confirmed_mail" json:"confirmed_mail"`
	Roles         []string `bson:"roles,omitempty" json:"roles,omitempty"`
	CreatedAt     string   `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt     string   `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}
