package redbank

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

var (
	configKey      = []byte("redbank/config")
	globalStateKey = []byte("redbank/global")

	marketPrefix      = []byte("redbank/market/")
	marketIndexPrefix = []byte("redbank/market-index/")
	marketTokenPrefix = []byte("redbank/market-token/")
	userPrefix        = []byte("redbank/user/")
	debtPrefix        = []byte("redbank/debt/")
	limitPrefix       = []byte("redbank/limit/")
)

func marketKey(ref []byte) []byte {
	return append(append([]byte{}, marketPrefix...), ref...)
}

func marketIndexKey(index uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], index)
	return append(append([]byte{}, marketIndexPrefix...), buf[:]...)
}

func marketTokenKey(token common.Address) []byte {
	return append(append([]byte{}, marketTokenPrefix...), token.Bytes()...)
}

func userKey(addr common.Address) []byte {
	return append(append([]byte{}, userPrefix...), addr.Bytes()...)
}

func debtKey(ref []byte, addr common.Address) []byte {
	key := append(append([]byte{}, debtPrefix...), ref...)
	key = append(key, '/')
	return append(key, addr.Bytes()...)
}

func limitKey(ref []byte, addr common.Address) []byte {
	key := append(append([]byte{}, limitPrefix...), ref...)
	key = append(key, '/')
	return append(key, addr.Bytes()...)
}
