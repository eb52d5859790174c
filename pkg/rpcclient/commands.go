package rpcclient

import (
	"sort"
	"strings"
)

// commands is the set of node methods that can be forwarded to bitcoind.
// Names are stored lower-cased.
var commands = map[string]struct{}{}

func init() {
	for _, name := range []string{
		"addMultiSigAddress",
		"backupWallet",
		"createRawTransaction",
		"decodeRawTransaction",
		"dumpPrivKey",
		"encryptWallet",
		"getAccount",
		"getAccountAddress",
		"getAddressesByAccount",
		"getBalance",
		"getBestBlockHash",
		"getBlock",
		"getBlockCount",
		"getBlockHash",
		"getBlockTemplate",
		"getConnectionCount",
		"getDifficulty",
		"getGenerate",
		"getHashesPerSec",
		"getInfo",
		"getMemoryPool",
		"getMiningInfo",
		"getNewAddress",
		"getPeerInfo",
		"getRawMemPool",
		"getRawTransaction",
		"getReceivedByAccount",
		"getReceivedByAddress",
		"getTransaction",
		"getTxOut",
		"getTxOutSetInfo",
		"getWork",
		"help",
		"importPrivKey",
		"keyPoolRefill",
		"listAccounts",
		"listAddressGroupings",
		"listLockUnspent",
		"listReceivedByAccount",
		"listReceivedByAddress",
		"listSinceBlock",
		"listTransactions",
		"listUnspent",
		"lockUnspent",
		"move",
		"sendFrom",
		"sendMany",
		"sendRawTransaction",
		"sendToAddress",
		"setAccount",
		"setGenerate",
		"setTxFee",
		"signMessage",
		"signRawTransaction",
		"stop",
		"submitBlock",
		"validateAddress",
		"verifyMessage",
		"walletLock",
		"walletPassphrase",
		"walletPassphraseChange",
	} {
		commands[strings.ToLower(name)] = struct{}{}
	}
}

// IsCommand checks whether the given method (in any case) can be forwarded
// to the node.
func IsCommand(method string) bool {
	_, ok := commands[strings.ToLower(method)]
	return ok
}

// Commands returns a sorted list of lower-cased node methods that can be
// forwarded.
func Commands() []string {
	res := make([]string, 0, len(commands))
	for c := range commands {
		res = append(res, c)
	}
	sort.Strings(res)
	return res
}
