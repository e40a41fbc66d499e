package escrowd

import (
	"github.com/google/uuid"
	"github.com/pandodao/mtg/mtgpack"
)

func buildIndexKey(prefix []byte, values ...any) []byte {
	enc := mtgpack.NewEncoder()
	if err := enc.EncodeValues(values...); err != nil {
		panic(err)
	}

	return append(prefix, enc.Bytes()...)
}

// ownerID collapses an address to a fixed-width key component.
func ownerID(owner string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(owner))
}
