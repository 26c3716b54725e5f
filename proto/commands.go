package proto

// System subsystem command ids.
const (
	SysVersion byte = 0x00
)

// Video subsystem command ids, as numbered by the camera firmware.
const (
	VidGetUCtls   byte = 0x00
	VidGetUCtl    byte = 0x01
	VidSetUCtl    byte = 0x02
	VidSetUCs2Def byte = 0x03
	VidGetFrmSiz  byte = 0x10
	VidGetFmt     byte = 0x11
	VidReqFrame   byte = 0x20
)

// SizePrefix is the length of the u32 byte count that leads the bulk responses
// (VidGetUCtls, VidReqFrame). The bulk bytes follow the frame and are not counted
// by its length byte.
const SizePrefix = 4
