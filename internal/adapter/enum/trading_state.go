package enum

// TradingState active, paused, recovery
type TradingState uint8

const (
	_trading_state_beg TradingState = iota
	TradingStateActive
	TradingStatePaused
	TradingStateRecovery
	_trading_state_end
)

func (s TradingState) IsAvailable() bool {
	return s > _trading_state_beg && s < _trading_state_end
}

func (s TradingState) String() string {
	switch s {
	case TradingStateActive:
		return "active"
	case TradingStatePaused:
		return "paused"
	case TradingStateRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// ContainerStatus active, suspended, closed
type ContainerStatus uint8

const (
	_container_status_beg ContainerStatus = iota
	ContainerStatusActive
	ContainerStatusSuspended
	ContainerStatusClosed
	_container_status_end
)

func (s ContainerStatus) IsAvailable() bool {
	return s > _container_status_beg && s < _container_status_end
}

func (s ContainerStatus) String() string {
	switch s {
	case ContainerStatusActive:
		return "active"
	case ContainerStatusSuspended:
		return "suspended"
	case ContainerStatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}
