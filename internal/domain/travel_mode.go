package domain

// ModeOfTravel is how a trip segment is travelled.
type ModeOfTravel string

const (
	ModeWalk   ModeOfTravel = "walk"
	ModeBike   ModeOfTravel = "bike"
	ModeCar    ModeOfTravel = "car"
	ModeTrain  ModeOfTravel = "train"
	ModeBus    ModeOfTravel = "bus"
	ModeFlight ModeOfTravel = "flight"
)

var modeOfTravelLabels = map[ModeOfTravel]string{
	ModeWalk:   "🚶 Walk",
	ModeBike:   "🚴 Bike",
	ModeCar:    "🚗 Car",
	ModeTrain:  "🚆 Train",
	ModeBus:    "🚌 Bus",
	ModeFlight: "✈️ Flight",
}

// Label returns the emoji-prefixed display label for m.
// Tags outside the enumeration yield "".
func (m ModeOfTravel) Label() string {
	return modeOfTravelLabels[m]
}

// ModesOfTravel lists every mode in display order.
func ModesOfTravel() []ModeOfTravel {
	return []ModeOfTravel{ModeWalk, ModeBike, ModeCar, ModeTrain, ModeBus, ModeFlight}
}

func ParseModeOfTravel(s string) (ModeOfTravel, bool) {
	m := ModeOfTravel(s)
	_, ok := modeOfTravelLabels[m]
	return m, ok
}
