package as3935

// register map (AS3935 datasheet, table 17)
const (
	regAFEGain     = 0x00
	regThreshold   = 0x01
	regLightning   = 0x02
	regInterrupt   = 0x03
	regEnergyLSB   = 0x04
	regEnergyMSB   = 0x05
	regEnergyMMSB  = 0x06
	regDistance    = 0x07
	regIRQDisplay  = 0x08
	regCalibTRCO   = 0x3A
	regCalibSRCO   = 0x3B
	regPresetReset = 0x3C
)

const (
	addrMask = 0x3F
	readBit  = 0x40

	cmdDirect = 0x96

	maskIndoor     = 0x20 // AFE_GB[5]
	maskNoiseFloor = 0x70 // NF_LEV[6:4]
	maskWatchdog   = 0x0F // WDTH[3:0]
	maskSpike      = 0x0F // SREJ[3:0]
	maskClearStat  = 0x40 // CL_STAT
	maskInterrupt  = 0x0F // INT[3:0]
	maskDistance   = 0x3F // DISTANCE[5:0]
	maskEnergyMMSB = 0x1F // S_LIG_MM[4:0]

	displayTRCO = 0x80 // DISP_TRCO

	calibDone = 0x80
	calibNOK  = 0x40
)

// RegisterCount is the number of configuration and result registers returned by Registers.
const RegisterCount = regIRQDisplay + 1
