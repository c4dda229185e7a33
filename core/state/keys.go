package state

import "nftstake/native/staking"

var (
	stakingPrefix = []byte("staking/")
	custodyPrefix = []byte("custody/")

	governanceKey        = []byte("staking/governance")
	positionPrefix       = []byte("staking/position/")
	accountPrefix        = []byte("staking/account/")
	ownerIndexPrefix     = []byte("staking/owner/")
	pendingChangePrefix  = []byte("staking/pending/")
	custodyHolderPrefix  = []byte("custody/holder/")
	custodyBalancePrefix = []byte("custody/balance/")
)

func prefixed(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return buf
}

func positionKey(id staking.PositionID) []byte { return prefixed(positionPrefix, id[:]) }

func accountKey(owner [20]byte) []byte { return prefixed(accountPrefix, owner[:]) }

func ownerIndexKey(owner [20]byte, id staking.PositionID) []byte {
	return prefixed(ownerIndexPrefix, owner[:], id[:])
}

func ownerIndexPrefixFor(owner [20]byte) []byte { return prefixed(ownerIndexPrefix, owner[:]) }

func pendingChangeKey(tag staking.ChangeTag) []byte {
	return prefixed(pendingChangePrefix, []byte(tag))
}

func custodyHolderKey(item [32]byte) []byte { return prefixed(custodyHolderPrefix, item[:]) }

func custodyBalanceKey(owner [20]byte) []byte { return prefixed(custodyBalancePrefix, owner[:]) }
