package catalog

import (
	"context"
	"strings"

	"github.com/nimburion/docsync/pkg/ids"
	"github.com/nimburion/docsync/pkg/query"
	"github.com/nimburion/docsync/pkg/repository"
	"github.com/nimburion/docsync/pkg/synchronizer"
	"go.mongodb.org/mongo-driver/bson"
)

const customerIDField = "contact.customer_id"

// Customers stores buyer accounts.
type Customers struct {
	*repository.Crud[Customer]
	d *Driver
}

func newCustomers(d *Driver) *Customers {
	e := synchronizer.Entity{
		Collection: CollCustomers,
		BeforeSave: func(_ context.Context, dr *synchronizer.Draft) error {
			for _, f := range []string{"email", "firstname", "lastname", "auth_id"} {
				if v, ok := dr.Doc[f].(string); ok {
					dr.AddTokens(strings.ToLower(v))
				}
			}
			return nil
		},
	}
	d.sync.RegisterEntity(e)
	return &Customers{Crud: repository.NewCrud[Customer](d.sync, e, ids.PrefixCustomer, d.limits), d: d}
}

// ListOrders lists the orders placed by a customer.
func (c *Customers) ListOrders(ctx context.Context, customerID string, q query.Query) ([]Order, error) {
	return c.d.Orders.ListWhere(ctx, bson.M{customerIDField: customerID}, q)
}

// CountOrders counts the orders placed by a customer.
func (c *Customers) CountOrders(ctx context.Context, customerID string, q query.Query) (int64, error) {
	return c.d.Orders.CountWhere(ctx, bson.M{customerIDField: customerID}, q)
}

// Orders stores placed orders.
type Orders struct {
	*repository.Crud[Order]
}

func newOrders(d *Driver) *Orders {
	e := synchronizer.Entity{
		Collection: CollOrders,
		BeforeSave: func(_ context.Context, dr *synchronizer.Draft) error {
			contact := asDoc(dr.Doc["contact"])
			if id, ok := contact["customer_id"].(string); ok {
				dr.AddTokens(id, synchronizer.Token("customer", id))
			}
			if email, ok := contact["email"].(string); ok {
				dr.AddTokens(strings.ToLower(email))
			}
			status := asDoc(dr.Doc["status"])
			for _, k := range []string{"checkout", "payment", "fulfillment"} {
				if v, ok := status[k].(string); ok {
					dr.AddTokens(synchronizer.Token(k, v))
				}
			}
			for _, li := range synchronizer.RefList(dr.Doc["line_items"]) {
				dr.AddTokens(li)
			}
			return nil
		},
	}
	d.sync.RegisterEntity(e)
	return &Orders{repository.NewCrud[Order](d.sync, e, ids.PrefixOrder, d.limits)}
}

func asDoc(v any) bson.M {
	switch m := v.(type) {
	case bson.M:
		return m
	case map[string]any:
		return m
	case bson.D:
		return m.Map()
	}
	return nil
}
