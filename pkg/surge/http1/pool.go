package http1

import "sync"

// Context pools. A busy endpoint churns through one Rx/Tx pair per request;
// pooling keeps the steady state allocation-free the same way the parser
// pools its scratch buffers.

var rxPool = sync.Pool{
	New: func() interface{} {
		return NewRx()
	},
}

var txPool = sync.Pool{
	New: func() interface{} {
		return NewTx()
	},
}

// GetRx returns a reset receive context from the pool.
func GetRx() *Rx {
	return rxPool.Get().(*Rx)
}

// PutRx resets rx and returns it to the pool. The caller must not retain
// references into it afterwards.
func PutRx(rx *Rx) {
	rx.reset()
	rxPool.Put(rx)
}

// GetTx returns a reset transmit context from the pool.
func GetTx() *Tx {
	return txPool.Get().(*Tx)
}

// PutTx resets tx and returns it to the pool.
func PutTx(tx *Tx) {
	tx.reset()
	txPool.Put(tx)
}
