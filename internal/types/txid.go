package types

// TxId is a strictly monotonically increasing transaction identifier.
// Zero is the sentinel "no transaction" value.
type TxId uint64

// NoTx is the sentinel meaning "no transaction" / "never committed".
const NoTx TxId = 0

// Infinity is the open upper bound used by the currently-live version
// in a chain (end_tx = ∞ in the spec's notation).
const Infinity TxId = ^TxId(0)
