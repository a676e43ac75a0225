package powersystem

// Handles into the PowerSystem arena. -1 means "none".
type (
	BusID        int
	LineID       int
	SwitchID     int
	ISwitchID    int
	SensorID     int
	BatteryID    int
	EVParkID     int
	ProductionID int
	SectionID    int
	NetworkID    int
)

const (
	NoBus        BusID        = -1
	NoLine       LineID       = -1
	NoSwitch     SwitchID     = -1
	NoISwitch    ISwitchID    = -1
	NoSensor     SensorID     = -1
	NoBattery    BatteryID    = -1
	NoEVPark     EVParkID     = -1
	NoProduction ProductionID = -1
	NoSection    SectionID    = -1
	NoNetwork    NetworkID    = -1
)
