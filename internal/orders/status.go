package orders

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// InventoryEffect is what a status transition does to the stock of the order's instock lines.
type InventoryEffect int

const (
	EffectNone    InventoryEffect = iota
	EffectRestock                 // give the reserved quantities back
	EffectReserve                 // take the quantities again
)

func (e InventoryEffect) String() string {
	switch e {
	case EffectRestock:
		return "restock"
	case EffectReserve:
		return "reserve"
	default:
		return "none"
	}
}

type transition struct{ from, to Status }

// Any move between two known statuses is allowed. Only moves into and out of cancelled
// touch inventory; every other pair is EffectNone.
var effects = map[transition]InventoryEffect{
	{StatusPending, StatusCancelled}:    EffectRestock,
	{StatusConfirmed, StatusCancelled}:  EffectRestock,
	{StatusProcessing, StatusCancelled}: EffectRestock,
	{StatusShipped, StatusCancelled}:    EffectRestock,
	{StatusDelivered, StatusCancelled}:  EffectRestock,
	{StatusCancelled, StatusPending}:    EffectReserve,
	{StatusCancelled, StatusConfirmed}:  EffectReserve,
	{StatusCancelled, StatusProcessing}: EffectReserve,
	{StatusCancelled, StatusShipped}:    EffectReserve,
	{StatusCancelled, StatusDelivered}:  EffectReserve,
}

// AllStatuses lists the order lifecycle in its usual forward order.
var AllStatuses = []Status{
	StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled,
}

func CanTransition(from, to Status) bool {
	return from.Valid() && to.Valid()
}

// Transition reports whether from -> to is allowed and which inventory effect it carries.
// A same-status update is allowed and has no effect.
func Transition(from, to Status) (InventoryEffect, bool) {
	if !CanTransition(from, to) {
		return EffectNone, false
	}
	return effects[transition{from, to}], true
}

// Sign converts an effect into the multiplier applied to line quantities.
func (e InventoryEffect) Sign() int {
	switch e {
	case EffectRestock:
		return 1
	case EffectReserve:
		return -1
	default:
		return 0
	}
}
