package enum

// OrderSide buy, sell
type OrderSide uint8

const (
	_order_side_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_order_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _order_side_beg && s < _order_side_end
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "buy"
	case OrderSideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderKind market, stop, target
type OrderKind uint8

const (
	_order_kind_beg OrderKind = iota
	OrderKindMarket
	OrderKindStop
	OrderKindTarget
	_order_kind_end
)

func (k OrderKind) IsAvailable() bool {
	return k > _order_kind_beg && k < _order_kind_end
}

func (k OrderKind) String() string {
	switch k {
	case OrderKindMarket:
		return "market"
	case OrderKindStop:
		return "stop"
	case OrderKindTarget:
		return "target"
	default:
		return "unknown"
	}
}

// OrderStatus placed, partial filled, filled, canceled, rejected
type OrderStatus uint8

const (
	_order_status_beg OrderStatus = iota
	OrderStatusPlaced
	OrderStatusPartialFilled
	OrderStatusFilled
	OrderStatusCanceled
	OrderStatusRejected
	_order_status_end
)

func (s OrderStatus) IsAvailable() bool {
	return s > _order_status_beg && s < _order_status_end
}

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// PositionSide long, short
type PositionSide uint8

const (
	_position_side_beg PositionSide = iota
	PositionSideLong
	PositionSideShort
	_position_side_end
)

func (s PositionSide) IsAvailable() bool {
	return s > _position_side_beg && s < _position_side_end
}

func (s PositionSide) String() string {
	switch s {
	case PositionSideLong:
		return "long"
	case PositionSideShort:
		return "short"
	default:
		return "unknown"
	}
}
