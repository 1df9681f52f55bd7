package table

import (
	"errors"

	"gptedit/internal/human"
	"gptedit/internal/parttype"
)

var (
	ErrPartitionCountImplausible = errors.New("partition count implausible")
	ErrCRCInvalid                = errors.New("CRC invalid")
	ErrLBAMismatch               = errors.New("primary and alternate header locations disagree")
	ErrHeaderMismatch            = errors.New("primary and alternate headers disagree")
	ErrMBRSignature              = errors.New("MBR boot signature missing")
	ErrDeviceTooSmall            = errors.New("device too small for a GPT")

	ErrNoFreeSpace  = errors.New("no free space")
	ErrTableFull    = errors.New("partition table full")
	ErrInvalidIndex = errors.New("invalid partition index")
	ErrOutOfRange   = errors.New("partition outside usable range")
	ErrOverlap      = errors.New("partitions overlap")
	ErrInvalidAttr  = errors.New("invalid attribute mask")
	ErrImportFormat = errors.New("import format error")
	ErrInvalidType  = parttype.ErrInvalidType
	ErrInvalidSize  = human.ErrInvalidSize

	ErrMBRAlreadySynced = errors.New("MBR already in sync")
	ErrNotRepresentable = errors.New("partition cannot be represented in the MBR")
	ErrNoMBREquivalent  = errors.New("partition type has no MBR equivalent")
	ErrMBRFull          = errors.New("no free MBR slot")
)
