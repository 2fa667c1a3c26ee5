package logic

// Decide returns the relay signal for the upper-tank fill relay. Outside a
// schedule window the relay is always off. Inside one it runs only while the
// upper tank is not full and the lower reservoir is not depleted.
func Decide(active bool, upper, lower TankState) Signal {
	if !active {
		return SignalOff
	}
	if upper == TankHigh {
		return SignalOff
	}
	if lower != TankLow {
		return SignalOn
	}
	return SignalOff
}
