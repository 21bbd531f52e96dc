package avrc

// KeyCode is a passthrough operation id.
type KeyCode uint8

const (
	KeyPlay        KeyCode = 0x44
	KeyStop        KeyCode = 0x45
	KeyPause       KeyCode = 0x46
	KeyRewind      KeyCode = 0x48
	KeyFastForward KeyCode = 0x49
	KeyForward     KeyCode = 0x4B
	KeyBackward    KeyCode = 0x4C
)

// KeyState is the button state of a passthrough command.
type KeyState uint8

const (
	KeyPressed KeyState = iota
	KeyReleased
)

// AttrMask selects the metadata attributes requested by SendMetadataCmd.
type AttrMask uint8

const (
	AttrTitle AttrMask = 1 << iota
	AttrArtist
	AttrAlbum
	AttrTrackNum
	AttrNumTracks
	AttrGenre
	AttrPlayingTime
)

// NotifyEvent is a register notification event id.
type NotifyEvent uint8

const (
	NotifyPlayStatusChange NotifyEvent = iota + 1
	NotifyTrackChange
	NotifyTrackReachedEnd
	NotifyTrackReachedStart
	NotifyPlayPosChanged
	NotifyBatteryStatusChange
	NotifySystemStatusChange
	NotifyAppSettingChange

	maxNotifyEvent = NotifyAppSettingChange
)

// PlayerAttr is a player application setting attribute.
type PlayerAttr uint8

const (
	PlayerEqualizer PlayerAttr = iota + 1
	PlayerRepeatMode
	PlayerShuffleMode
	PlayerScanMode

	maxPlayerAttr = PlayerScanMode
)

// Feature bits reported by RemoteFeatures.
const (
	FeatTarget     uint32 = 0x0001
	FeatController uint32 = 0x0002
	FeatVendor     uint32 = 0x0008
	FeatBrowse     uint32 = 0x0010
	FeatMetadata   uint32 = 0x0040
	FeatAdvCtrl    uint32 = 0x0200
)

// transaction labels are 4 bits
const maxLabel = 15
