package epd

// SSD1681 command opcodes used by this driver.
const (
	driverOutputControl            byte = 0x01
	deepSleepMode                  byte = 0x10
	dataEntryModeSetting           byte = 0x11
	swReset                        byte = 0x12
	temperatureSensorControl       byte = 0x18
	masterActivation               byte = 0x20
	displayUpdateControl2          byte = 0x22
	writeRAM                       byte = 0x24
	writeLUTRegister               byte = 0x32
	borderWaveformControl          byte = 0x3C
	setRAMXAddressStartEndPosition byte = 0x44
	setRAMYAddressStartEndPosition byte = 0x45
)

// Update sequence selectors for displayUpdateControl2. sequenceLoadLUT loads
// the factory waveform during configuration; the other two pick the waveform
// a refresh runs with.
const (
	sequenceLoadLUT byte = 0xB1
	sequenceFull    byte = 0xF7
	sequencePartial byte = 0xFF
)

// deepSleepMode operand: deep sleep mode 1.
const deepSleepMode1 byte = 0x01
