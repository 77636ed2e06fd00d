// Package errs defines the stable error contract shared by every layer of
// the storage core: buffer pool, block buffer, catalog cache, B+ tree, block
// access and the algebra facade all return one of these sentinels (or nil).
package errs

import "errors"

// Sentinel errors matching the stable error-code contract. Layers return
// these directly; callers compare with errors.Is or recover the stable name
// with Code.
var (
	ErrOutOfBound         = errors.New("out of bound")
	ErrDiskFull           = errors.New("disk full")
	ErrCacheFull          = errors.New("cache full")
	ErrBlockNotInBuffer   = errors.New("block not in buffer")
	ErrNotFound           = errors.New("not found")
	ErrRelNotOpen         = errors.New("relation not open")
	ErrRelNotExist        = errors.New("relation does not exist")
	ErrRelExist           = errors.New("relation already exists")
	ErrAttrNotExist       = errors.New("attribute does not exist")
	ErrAttrExist          = errors.New("attribute already exists")
	ErrAttrTypeMismatch   = errors.New("attribute type mismatch")
	ErrNAttrMismatch      = errors.New("attribute count mismatch")
	ErrDuplicateAttr      = errors.New("duplicate attribute name")
	ErrNotPermitted       = errors.New("operation not permitted")
	ErrNoIndex            = errors.New("no index on attribute")
	ErrIndexBlocksReleased = errors.New("index blocks released")
	ErrMaxRelations       = errors.New("relation catalog is full")
	ErrInvalidBlock       = errors.New("invalid block")
)

// codes maps every sentinel back to the stable name from the external error
// contract, so a CLI or test can log/assert on the contract string instead of
// the (friendlier, but unstable) Error() text.
var codes = map[error]string{
	ErrOutOfBound:          "OUTOFBOUND",
	ErrDiskFull:            "DISKFULL",
	ErrCacheFull:           "CACHEFULL",
	ErrBlockNotInBuffer:    "BLOCKNOTINBUFFER",
	ErrNotFound:            "NOTFOUND",
	ErrRelNotOpen:          "RELNOTOPEN",
	ErrRelNotExist:         "RELNOTEXIST",
	ErrRelExist:            "RELEXIST",
	ErrAttrNotExist:        "ATTRNOTEXIST",
	ErrAttrExist:           "ATTREXIST",
	ErrAttrTypeMismatch:    "ATTRTYPEMISMATCH",
	ErrNAttrMismatch:       "NATTRMISMATCH",
	ErrDuplicateAttr:       "DUPLICATEATTR",
	ErrNotPermitted:        "NOTPERMITTED",
	ErrNoIndex:             "NOINDEX",
	ErrIndexBlocksReleased: "INDEX_BLOCKS_RELEASED",
	ErrMaxRelations:        "MAXRELATIONS",
	ErrInvalidBlock:        "INVALIDBLOCK",
}

// Code returns the stable contract name for err, or "SUCCESS" for nil, or
// "UNKNOWN" for an error this package didn't mint.
func Code(err error) string {
	if err == nil {
		return "SUCCESS"
	}
	if name, ok := codes[err]; ok {
		return name
	}
	return "UNKNOWN"
}
