package workflow

import "github.com/odyssey-erp/papertrail/internal/shared"

// Material request statuses.
const (
	RequestPending      Status = "pending"
	RequestAcknowledged Status = "acknowledged"
	RequestRejected     Status = "rejected"
	RequestDispatched   Status = "dispatched"
	RequestFulfilled    Status = "fulfilled"
)

// Challan statuses.
const (
	ChallanPending    Status = "pending"
	ChallanDispatched Status = "dispatched"
	ChallanReceived   Status = "received"
)

// Bill and invoice statuses.
const (
	BillingPending Status = "pending"
	BillingPaid    Status = "paid"
)

// Actions.
const (
	ActionAcknowledge Action = "acknowledge"
	ActionReject      Action = "reject"
	ActionDispatch    Action = "dispatch"
	ActionFulfil      Action = "fulfil"
	ActionReceive     Action = "receive"
	ActionPay         Action = "pay"
)

// NewMaterialRequestMachine: pending -> {acknowledged, rejected, dispatched} -> fulfilled,
// driven by the named supplier only. Item quantities may be confirmed while leaving pending.
func NewMaterialRequestMachine() *Machine {
	return &Machine{
		doc:      shared.DocMaterialRequest,
		initial:  RequestPending,
		statuses: []Status{RequestPending, RequestAcknowledged, RequestRejected, RequestDispatched, RequestFulfilled},
		rules: map[Action]Rule{
			ActionAcknowledge: {
				From: []Status{RequestPending}, To: RequestAcknowledged, Actor: ActorNamedSupplier,
				Fields: []Field{FieldNotes, FieldDispatchDate, FieldItems},
			},
			ActionReject: {
				From: []Status{RequestPending}, To: RequestRejected, Actor: ActorNamedSupplier,
				Fields: []Field{FieldNotes},
			},
			ActionDispatch: {
				From: []Status{RequestPending}, To: RequestDispatched, Actor: ActorNamedSupplier,
				Fields: []Field{FieldNotes, FieldDispatchDate, FieldItems},
			},
			ActionFulfil: {
				From: []Status{RequestAcknowledged, RequestDispatched}, To: RequestFulfilled, Actor: ActorNamedSupplier,
				Fields: []Field{FieldNotes, FieldDispatchDate},
			},
		},
		editable: map[Status][]Field{},
	}
}

// NewChallanMachine: pending -> dispatched -> received, company only. Content is
// editable while pending.
func NewChallanMachine() *Machine {
	return &Machine{
		doc:      shared.DocChallan,
		initial:  ChallanPending,
		statuses: []Status{ChallanPending, ChallanDispatched, ChallanReceived},
		rules: map[Action]Rule{
			ActionDispatch: {From: []Status{ChallanPending}, To: ChallanDispatched, Actor: ActorCompany},
			ActionReceive:  {From: []Status{ChallanDispatched}, To: ChallanReceived, Actor: ActorCompany},
		},
		editable: map[Status][]Field{
			ChallanPending: {FieldItems, FieldSupplier, FieldNumber},
		},
	}
}

// NewBillingMachine: pending -> paid for bills and invoices, company only.
func NewBillingMachine(doc shared.DocumentType) *Machine {
	return &Machine{
		doc:      doc,
		initial:  BillingPending,
		statuses: []Status{BillingPending, BillingPaid},
		rules: map[Action]Rule{
			ActionPay: {From: []Status{BillingPending}, To: BillingPaid, Actor: ActorCompany},
		},
		editable: map[Status][]Field{
			BillingPending: {FieldItems, FieldCounterparty},
		},
	}
}
