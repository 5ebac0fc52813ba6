package database

import "go.mongodb.org/mongo-driver/mongo"

// Collection names as constants to prevent typos
const (
	UsersCollection          = "users"
	PlansCollection          = "plans"
	UsageCollection          = "usage"
	CreditAccountsCollection = "credit_accounts"
	TopupPackagesCollection  = "topup_packages"
	PaymentsCollection       = "payments"
	OperationsCollection     = "operations"
	EditSessionsCollection   = "edit_sessions"
)

// Collections provides typed access to all collections
type Collections struct {
	manager *Manager
}

func NewCollections(manager *Manager) *Collections {
	return &Collections{manager: manager}
}

func (c *Collections) Users() *mongo.Collection {
	return c.manager.Collection(UsersCollection)
}

func (c *Collections) Plans() *mongo.Collection {
	return c.manager.Collection(PlansCollection)
}

func (c *Collections) Usage() *mongo.Collection {
	return c.manager.Collection(UsageCollection)
}

func (c *Collections) CreditAccounts() *mongo.Collection {
	return c.manager.Collection(CreditAccountsCollection)
}

func (c *Collections) TopupPackages() *mongo.Collection {
	return c.manager.Collection(TopupPackagesCollection)
}

func (c *Collections) Payments() *mongo.Collection {
	return c.manager.Collection(PaymentsCollection)
}

func (c *Collections) Operations() *mongo.Collection {
	return c.manager.Collection(OperationsCollection)
}

func (c *Collections) EditSessions() *mongo.Collection {
	return c.manager.Collection(EditSessionsCollection)
}
