package persistence

import "context"

// NetworkRepository reads and writes network equipment in the network file.
type NetworkRepository interface {
	PutBreaker(ctx context.Context, breaker Breaker) error
	GetBreaker(ctx context.Context, mrid string) (Breaker, error)
	ListBreakers(ctx context.Context) ([]Breaker, error)

	PutPowerTransformer(ctx context.Context, transformer PowerTransformer) error
	GetPowerTransformer(ctx context.Context, mrid string) (PowerTransformer, error)

	PutPowerTransformerEnd(ctx context.Context, end PowerTransformerEnd) error
	GetPowerTransformerEnd(ctx context.Context, mrid string) (PowerTransformerEnd, error)
	ListPowerTransformerEnds(ctx context.Context, transformerMRID string) ([]PowerTransformerEnd, error)

	PutProtectionRelayFunction(ctx context.Context, function ProtectionRelayFunction) error
	ListProtectionRelayFunctions(ctx context.Context) ([]ProtectionRelayFunction, error)
}

// CustomerRepository reads and writes customers in the customer file.
type CustomerRepository interface {
	PutCustomer(ctx context.Context, customer Customer) error
	GetCustomer(ctx context.Context, mrid string) (Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)

	PutCustomerAgreement(ctx context.Context, agreement CustomerAgreement) error
	ListCustomerAgreements(ctx context.Context, customerMRID string) ([]CustomerAgreement, error)
}
