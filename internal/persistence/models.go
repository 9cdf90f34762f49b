package persistence

// Breaker is a switch able to interrupt fault current.
type Breaker struct {
	MRID          string
	Name          *string
	NormalOpen    bool
	Open          bool
	RatedCurrent  *float64
	InTransitTime *float64
}

// PowerTransformerEnd is one winding of a power transformer.
type PowerTransformerEnd struct {
	MRID                 string
	Name                 *string
	EndNumber            int
	PowerTransformerMRID *string
	RatedS               *int64
	RatedU               *int64
}

// PowerTransformer is a transformer with its construction and function kinds.
type PowerTransformer struct {
	MRID                   string
	Name                   *string
	VectorGroup            string
	TransformerUtilisation *float64
	ConstructionKind       string
	FunctionKind           string
}

// ProtectionRelayFunction is a protection function of a relay.
type ProtectionRelayFunction struct {
	MRID           string
	Name           *string
	Kind           string
	Directable     *bool
	PowerDirection string
}

// Customer is an organisation receiving energy.
type Customer struct {
	MRID          string
	Name          *string
	Kind          string
	NumEndDevices int
}

// CustomerAgreement links a customer to its service agreement.
type CustomerAgreement struct {
	MRID         string
	Name         *string
	CustomerMRID *string
}
